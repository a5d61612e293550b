package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/storage"
	"github.com/slok/meshforge/internal/trace"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Repository storage.JobRepository
	TimeNow    func() time.Time
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Status"})

	return nil
}

// Service retrieves the detailed state of a pipeline job.
type Service struct {
	repo   storage.JobRepository
	now    func() time.Time
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		now:    cfg.TimeNow,
		logger: cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	ID string
	// WithTrace includes the display trace of the job.
	WithTrace bool
}

// Result is the status of a job.
type Result struct {
	Job   model.Job
	Trace *model.Trace
}

// Run retrieves the status of a job by ID.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, fmt.Errorf("job id is required: %w", model.ErrNotValid)
	}

	s.logger.Debugf("getting status for job: %s", id)

	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("job not found: %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get job status: %w", err)
	}

	res := &Result{Job: *job}
	if req.WithTrace {
		// Finished jobs keep their trace stable.
		base := s.now().UTC()
		if job.FinishedAt != nil {
			base = job.FinishedAt.UTC()
		}
		tr := trace.Build(*job, base)
		res.Trace = &tr
	}

	return res, nil
}
