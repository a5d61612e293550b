package api

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h with the middlewares, the first one is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID of the context, empty if missing.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// requestID keeps the client request ID or generates a new one, sets it on the
// response and adds it to the context log values.
func requestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if id == "" || len(id) > 128 {
				id = ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			ctx = log.CtxWithValues(ctx, log.Kv{"request-id": id})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// recovery returns a generic error on handler panics.
func recovery(logger log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.WithCtxValues(r.Context()).Errorf("panic recovered on %s %s: %v", r.Method, r.URL.Path, rec)
					writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: errMsgInternal})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack is required by the websocket upgrades.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer doesn't support hijacking")
	}
	return h.Hijack()
}

// observe logs and measures every request.
func observe(logger log.Logger, rec metrics.Recorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			duration := time.Since(start)

			path := normalizePath(r.URL.Path)
			rec.ObserveHTTPRequest(r.Context(), r.Method, path, sw.status, duration)

			l := logger.WithCtxValues(r.Context()).WithValues(log.Kv{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sw.status,
				"duration": duration.String(),
			})
			if sw.status >= http.StatusInternalServerError {
				l.Warningf("Request failed")
				return
			}
			l.Debugf("Request handled")
		})
	}
}

// pathOther is the metrics path of the requests that don't match any route.
const pathOther = "other"

// normalizePath maps the request path to its route so the metrics have a bounded
// cardinality. Unknown paths are grouped.
func normalizePath(path string) string {
	switch path {
	case "/api/generate", "/api/jobs", "/healthz", "/readyz":
		return path
	}

	const jobsPrefix = "/api/jobs/"
	if !strings.HasPrefix(path, jobsPrefix) {
		return pathOther
	}
	id, sub, hasSub := strings.Cut(strings.TrimPrefix(path, jobsPrefix), "/")
	switch {
	case id == "":
		return pathOther
	case !hasSub:
		return jobsPrefix + "{id}"
	case sub == "events" || sub == "trace":
		return jobsPrefix + "{id}/" + sub
	}
	return pathOther
}

// rateLimit limits the requests per client IP with a token bucket. Idle clients
// are forgotten after a while.
func rateLimit(ctx context.Context, rps float64, burst int, logger log.Logger) Middleware {
	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = map[string]*visitor{}
	)

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				mu.Lock()
				for ip, v := range visitors {
					if time.Since(v.lastSeen) > 3*time.Minute {
						delete(visitors, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Probes are never limited.
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			mu.Lock()
			v, ok := visitors[ip]
			if !ok {
				v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				visitors[ip] = v
			}
			v.lastSeen = time.Now()
			mu.Unlock()

			if !v.limiter.Allow() {
				logger.WithCtxValues(r.Context()).Debugf("Rate limited client %s", ip)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(rps)))
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(rps float64) int {
	if rps <= 0 || rps >= 1 {
		return 1
	}
	return int(1/rps + 0.5)
}
