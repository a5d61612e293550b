package list

import (
	"context"
	"fmt"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/storage"
)

const maxLimit = 1000

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.JobRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.List"})

	return nil
}

// Service lists pipeline jobs with optional filtering.
type Service struct {
	repo   storage.JobRepository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// StatusFilter is an optional filter to only show jobs with this status.
	StatusFilter *model.JobStatus
	// Limit caps the returned jobs, 0 means no limit.
	Limit int
}

// Run lists the jobs newest first, optionally filtered by status.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Job, error) {
	if req.StatusFilter != nil && !model.ValidJobStatus(*req.StatusFilter) {
		return nil, fmt.Errorf("unknown job status %q: %w", *req.StatusFilter, model.ErrNotValid)
	}
	if req.Limit < 0 || req.Limit > maxLimit {
		return nil, fmt.Errorf("limit must be in the [0, %d] range: %w", maxLimit, model.ErrNotValid)
	}

	s.logger.Debugf("listing jobs with filter: %v", req.StatusFilter)

	jobs, err := s.repo.ListJobs(ctx, storage.ListJobsOpts{Status: req.StatusFilter, Limit: req.Limit})
	if err != nil {
		return nil, fmt.Errorf("could not list jobs: %w", err)
	}

	s.logger.Debugf("found %d jobs", len(jobs))
	return jobs, nil
}
