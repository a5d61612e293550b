package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.JobRepository.
type Repository struct {
	jobs   map[string]model.Job
	mu     sync.RWMutex
	logger log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		jobs:   make(map[string]model.Job),
		logger: cfg.Logger,
	}, nil
}

// CreateJob stores a new job.
func (r *Repository) CreateJob(ctx context.Context, j model.Job) error {
	if j.ID == "" {
		return fmt.Errorf("job id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("job with id %s: %w", j.ID, model.ErrAlreadyExists)
	}

	r.jobs[j.ID] = j.Clone()
	r.logger.Debugf("Created job in repository: %s", j.ID)

	return nil
}

// GetJob retrieves a job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}

	jobCopy := j.Clone()
	return &jobCopy, nil
}

// ListJobs returns the jobs newest first.
func (r *Repository) ListJobs(ctx context.Context, opts storage.ListJobsOpts) ([]model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]model.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if opts.Status != nil && j.Status != *opts.Status {
			continue
		}
		jobs = append(jobs, j.Clone())
	}

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID > jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}

	return jobs, nil
}

// UpdateJob updates an existing job.
func (r *Repository) UpdateJob(ctx context.Context, j model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; !ok {
		return fmt.Errorf("job %s: %w", j.ID, model.ErrNotFound)
	}

	r.jobs[j.ID] = j.Clone()
	r.logger.Debugf("Updated job in repository: %s", j.ID)

	return nil
}
