package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/meshforge/internal/generator"
	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/metrics"
	"github.com/slok/meshforge/internal/model"
)

// ServiceConfig is the configuration for the generate service.
type ServiceConfig struct {
	Generator       generator.Generator
	Limits          model.GenerationLimits
	MetricsRecorder metrics.Recorder
	Logger          log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Generator == nil {
		return fmt.Errorf("generator is required")
	}
	c.Limits = c.Limits.WithDefaults()
	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Generate"})
	return nil
}

// Service handles one shot 3D generations.
type Service struct {
	gen     generator.Generator
	limits  model.GenerationLimits
	metrics metrics.Recorder
	logger  log.Logger
}

// NewService creates a new generate service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		gen:     cfg.Generator,
		limits:  cfg.Limits,
		metrics: cfg.MetricsRecorder,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the generate request parameters.
type Request struct {
	Generation model.GenerationRequest
	// IdempotencyKey is accepted for tracing only, requests are never deduplicated.
	IdempotencyKey string
}

// Run validates the request and generates the 3D model.
func (s *Service) Run(ctx context.Context, req Request) (*model.GenerationResult, error) {
	gen := req.Generation
	if err := gen.Validate(s.limits); err != nil {
		return nil, err
	}
	// Images are only an input of the image generation types.
	if !gen.Type.IsImage() {
		gen.Images = nil
	}

	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"type": gen.Type, "quality": gen.Quality})
	if req.IdempotencyKey != "" {
		logger = logger.WithValues(log.Kv{"idempotency-key": req.IdempotencyKey})
	}
	logger.Debugf("Generating 3D model from %d images", len(gen.Images))

	start := time.Now()
	res, err := s.gen.Generate(ctx, gen)
	s.metrics.ObserveGeneration(ctx, gen.Type, gen.Quality, err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("could not generate 3D model: %w", err)
	}

	logger.Infof("Generated 3D model with %d vertices and %d faces", res.Metrics.Vertices, res.Metrics.Faces)

	return res, nil
}

// Capabilities returns what the generation supports.
func (s *Service) Capabilities() model.Capabilities {
	return model.DefaultCapabilities(s.limits)
}
