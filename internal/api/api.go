package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slok/meshforge/internal/app/generate"
	"github.com/slok/meshforge/internal/app/list"
	"github.com/slok/meshforge/internal/app/pipeline"
	"github.com/slok/meshforge/internal/app/status"
	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/metrics"
	"github.com/slok/meshforge/internal/model"
)

// GenerateService runs one shot generations.
type GenerateService interface {
	Run(ctx context.Context, req generate.Request) (*model.GenerationResult, error)
	Capabilities() model.Capabilities
}

// JobService runs pipeline jobs.
type JobService interface {
	Start(ctx context.Context, req pipeline.StartRequest) (*model.Job, error)
	Cancel(ctx context.Context, id string) (*model.Job, error)
	Subscribe(ctx context.Context, id string) (<-chan model.Job, func(), error)
}

// ListService lists pipeline jobs.
type ListService interface {
	Run(ctx context.Context, req list.Request) ([]model.Job, error)
}

// StatusService gets pipeline jobs.
type StatusService interface {
	Run(ctx context.Context, req status.Request) (*status.Result, error)
}

// ReadinessCheck returns an error when the application can't serve requests.
type ReadinessCheck func(ctx context.Context) error

// HandlerConfig is the configuration of the API handler.
type HandlerConfig struct {
	GenerateService GenerateService
	JobService      JobService
	ListService     ListService
	StatusService   StatusService
	// ReadinessCheck is optional.
	ReadinessCheck ReadinessCheck
	// RateLimitRPS enables the per client rate limit when greater than 0.
	RateLimitRPS   float64
	RateLimitBurst int
	// Ctx stops the handler background tasks.
	Ctx             context.Context
	MetricsRecorder metrics.Recorder
	Logger          log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.GenerateService == nil {
		return fmt.Errorf("generate service is required")
	}
	if c.JobService == nil {
		return fmt.Errorf("job service is required")
	}
	if c.ListService == nil {
		return fmt.Errorf("list service is required")
	}
	if c.StatusService == nil {
		return fmt.Errorf("status service is required")
	}
	if c.ReadinessCheck == nil {
		c.ReadinessCheck = func(context.Context) error { return nil }
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit can't be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	if c.Ctx == nil {
		c.Ctx = context.Background()
	}
	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})
	return nil
}

type handler struct {
	gen       GenerateService
	jobs      JobService
	list      ListService
	status    StatusService
	readiness ReadinessCheck
	limits    model.GenerationLimits
	logger    log.Logger
}

// NewHandler returns the HTTP API handler.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{
		gen:       cfg.GenerateService,
		jobs:      cfg.JobService,
		list:      cfg.ListService,
		status:    cfg.StatusService,
		readiness: cfg.ReadinessCheck,
		limits:    cfg.GenerateService.Capabilities().Limits.WithDefaults(),
		logger:    cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", h.generate)
	mux.HandleFunc("GET /api/generate", h.capabilities)
	mux.HandleFunc("POST /api/jobs", h.createJob)
	mux.HandleFunc("GET /api/jobs", h.listJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.getJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.cancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/events", h.jobEvents)
	mux.HandleFunc("GET /api/jobs/{id}/trace", h.jobTrace)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)

	middlewares := []Middleware{
		requestID(),
		observe(cfg.Logger, cfg.MetricsRecorder),
		recovery(cfg.Logger),
	}
	if cfg.RateLimitRPS > 0 {
		middlewares = append(middlewares, rateLimit(cfg.Ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Logger))
	}

	return Chain(mux, middlewares...), nil
}
