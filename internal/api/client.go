package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
)

const (
	// DefaultServerURL is the address the server listens on by default.
	DefaultServerURL = "http://127.0.0.1:3000"

	eventsReadLimit = 1024 * 1024
)

// ResponseError is returned by the client when the server answers with an error status.
// It matches the model errors of its status code with errors.Is.
type ResponseError struct {
	StatusCode int
	Message    string
	Details    []string
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	return msg
}

func (e *ResponseError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return target == model.ErrNotValid
	case http.StatusNotFound:
		return target == model.ErrNotFound
	case http.StatusConflict:
		return target == model.ErrConflict
	}
	return false
}

// Upload is an image sent with a generation request.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// UploadRequest is a generation request sent by the client.
type UploadRequest struct {
	Type           model.GenerationType
	Prompt         string
	Quality        model.Quality
	Images         []Upload
	IdempotencyKey string
}

// ListJobsRequest filters the listed jobs.
type ListJobsRequest struct {
	Status model.JobStatus
	Limit  int
}

// ClientConfig is the configuration of the API client.
type ClientConfig struct {
	// ServerURL is the base URL of the server (e.g. http://127.0.0.1:3000).
	ServerURL  string
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("server url host is required")
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Client"})
	return nil
}

// Client is the HTTP client of the generation API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     log.Logger
}

// NewClient returns a new API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	u, _ := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	return &Client{
		baseURL:    u,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

// Generate runs a one shot generation.
func (c *Client) Generate(ctx context.Context, req UploadRequest) (*model.GenerationResult, error) {
	var resp GenerateResponse
	if err := c.doForm(ctx, "/api/generate", req, &resp); err != nil {
		return nil, err
	}
	res := resp.ToModel()
	return &res, nil
}

// Capabilities returns the generation API capabilities.
func (c *Client) Capabilities(ctx context.Context) (*model.Capabilities, error) {
	var resp CapabilitiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/generate", nil, &resp); err != nil {
		return nil, err
	}
	caps := resp.ToModel()
	return &caps, nil
}

// CreateJob starts a pipeline job.
func (c *Client) CreateJob(ctx context.Context, req UploadRequest) (*model.Job, error) {
	var resp Job
	if err := c.doForm(ctx, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	j := resp.ToModel()
	return &j, nil
}

// GetJob returns a pipeline job.
func (c *Client) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var resp Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &resp); err != nil {
		return nil, err
	}
	j := resp.ToModel()
	return &j, nil
}

// ListJobs returns the pipeline jobs, newest first.
func (c *Client) ListJobs(ctx context.Context, req ListJobsRequest) ([]model.Job, error) {
	q := url.Values{}
	if req.Status != "" {
		q.Set("status", string(req.Status))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	var resp JobList
	if err := c.do(ctx, http.MethodGet, "/api/jobs", q, &resp); err != nil {
		return nil, err
	}

	jobs := make([]model.Job, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		jobs = append(jobs, j.ToModel())
	}
	return jobs, nil
}

// CancelJob cancels a pipeline job.
func (c *Client) CancelJob(ctx context.Context, id string) (*model.Job, error) {
	var resp Job
	if err := c.do(ctx, http.MethodDelete, "/api/jobs/"+id, nil, &resp); err != nil {
		return nil, err
	}
	j := resp.ToModel()
	return &j, nil
}

// GetJobTrace returns the display trace of a pipeline job.
func (c *Client) GetJobTrace(ctx context.Context, id string) (*model.Trace, error) {
	var resp Trace
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id+"/trace", nil, &resp); err != nil {
		return nil, err
	}
	tr := resp.ToModel()
	return &tr, nil
}

// WatchJob calls fn with every job state streamed by the server until the job
// finishes, the context ends or fn returns an error.
func (c *Client) WatchJob(ctx context.Context, id string, fn func(model.Job) error) error {
	u := c.endpoint("/api/jobs/"+id+"/events", nil)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	// Streams are bounded by the context, not by the client timeout.
	hc := *c.httpClient
	hc.Timeout = 0

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: &hc})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return responseError(resp)
		}
		return fmt.Errorf("could not connect to job events: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(eventsReadLimit)

	for {
		var j Job
		err := wsjson.Read(ctx, conn, &j)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read job event: %w", err)
		}

		if err := fn(j.ToModel()); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}

func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := *c.baseURL
	u.Path = u.Path + path
	u.RawQuery = query.Encode()
	return &u
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query).String(), nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req, out)
}

// doForm posts the generation request as a multipart form, streaming the images.
func (c *Client) doForm(ctx context.Context, path string, greq UploadRequest, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, greq))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil).String(), pr)
	if err != nil {
		_ = pr.Close()
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if greq.IdempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, greq.IdempotencyKey)
	}

	return c.send(req, out)
}

func writeForm(mw *multipart.Writer, req UploadRequest) error {
	fields := [][2]string{
		{"type", string(req.Type)},
		{"prompt", req.Prompt},
		{"quality", string(req.Quality)},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	for i, img := range req.Images {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s%d"; filename=%q`, imageFieldPrefix, i, img.Filename))
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, img.Content); err != nil {
			return fmt.Errorf("could not read image %s: %w", img.Filename, err)
		}
	}

	return mw.Close()
}

func (c *Client) send(req *http.Request, out any) error {
	logger := c.logger.WithValues(log.Kv{"method": req.Method, "url": req.URL.Path})
	logger.Debugf("Sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ResponseError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &ResponseError{StatusCode: resp.StatusCode, Message: er.Error, Details: er.Details}
}
