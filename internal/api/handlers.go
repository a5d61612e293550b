package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/slok/meshforge/internal/app/generate"
	"github.com/slok/meshforge/internal/app/list"
	"github.com/slok/meshforge/internal/app/pipeline"
	"github.com/slok/meshforge/internal/app/status"
	"github.com/slok/meshforge/internal/model"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"

	errMsgInvalidInput     = "Invalid input parameters"
	errMsgGenerationFailed = "Failed to generate 3D model"
	errMsgInternal         = "Internal server error"
	eventsWriteTimeout     = 5 * time.Second
	eventsCloseReasonDone  = "job finished"
)

func (h handler) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	gen, err := parseGenerationForm(w, r, h.limits)
	if err != nil {
		h.writeError(ctx, w, err, errMsgGenerationFailed)
		return
	}

	res, err := h.gen.Run(ctx, generate.Request{
		Generation:     gen,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		h.writeError(ctx, w, err, errMsgGenerationFailed)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponseFromModel(*res))
}

func (h handler) capabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CapabilitiesFromModel(h.gen.Capabilities()))
}

func (h handler) createJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	gen, err := parseGenerationForm(w, r, h.limits)
	if err != nil {
		h.writeError(ctx, w, err, errMsgInternal)
		return
	}

	job, err := h.jobs.Start(ctx, pipeline.StartRequest{
		Generation:     gen,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		h.writeError(ctx, w, err, errMsgInternal)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, JobFromModel(*job))
}

func (h handler) listJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	req := list.Request{}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		st := model.JobStatus(s)
		req.StatusFilter = &st
	}
	if l := strings.TrimSpace(q.Get("limit")); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errMsgInvalidInput, Details: []string{"limit must be a number"}})
			return
		}
		req.Limit = limit
	}

	jobs, err := h.list.Run(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err, errMsgInternal)
		return
	}

	resp := JobList{Jobs: make([]Job, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, JobFromModel(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h handler) getJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.status.Run(ctx, status.Request{ID: r.PathValue("id")})
	if err != nil {
		h.writeError(ctx, w, err, errMsgInternal)
		return
	}

	writeJSON(w, http.StatusOK, JobFromModel(res.Job))
}

func (h handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := h.jobs.Cancel(ctx, r.PathValue("id"))
	if err != nil {
		h.writeError(ctx, w, err, errMsgInternal)
		return
	}

	writeJSON(w, http.StatusOK, JobFromModel(*job))
}

func (h handler) jobTrace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.status.Run(ctx, status.Request{ID: r.PathValue("id"), WithTrace: true})
	if err != nil {
		h.writeError(ctx, w, err, errMsgInternal)
		return
	}

	writeJSON(w, http.StatusOK, TraceFromModel(res.Job.ID, *res.Trace))
}

// jobEvents streams the job states over a websocket until the job finishes or the
// client goes away.
func (h handler) jobEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	// Subscribe before upgrading so missing jobs get a regular HTTP error.
	updates, unsubscribe, err := h.jobs.Subscribe(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err, errMsgInternal)
		return
	}
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithCtxValues(ctx).Warningf("Could not accept websocket: %s", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen, reading handles their close frames.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, eventsCloseReasonDone)
				return
			}

			wctx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
			err := wsjson.Write(wctx, conn, JobFromModel(j))
			cancel()
			if err != nil {
				h.logger.WithCtxValues(ctx).Debugf("Could not write job event: %s", err)
				return
			}
		}
	}
}

func (h handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.readiness(ctx); err != nil {
		h.logger.WithCtxValues(ctx).Warningf("Not ready: %s", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeError maps the application errors to HTTP responses. Unknown errors are
// logged and answered with the generic message.
func (h handler) writeError(ctx context.Context, w http.ResponseWriter, err error, genericMsg string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errMsgInvalidInput, Details: verr.Details})
	case errors.Is(err, model.ErrNotValid):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errMsgInvalidInput, Details: []string{err.Error()}})
	case errors.Is(err, errBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: errMsgInvalidInput, Details: []string{err.Error()}})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Details: []string{err.Error()}})
	case errors.Is(err, model.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Conflict", Details: []string{err.Error()}})
	case errors.Is(err, context.Canceled):
		// Client went away.
		w.WriteHeader(499)
	default:
		h.logger.WithCtxValues(ctx).Errorf("Request failed: %s", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: genericMsg})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
