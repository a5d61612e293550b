package storage

import (
	"context"

	"github.com/slok/meshforge/internal/model"
)

// ListJobsOpts are the options to filter the listed jobs.
type ListJobsOpts struct {
	// Status filters by job status when set.
	Status *model.JobStatus
	// Limit caps the number of returned jobs, 0 means no limit.
	Limit int
}

// JobRepository is the interface for pipeline job persistence.
// Jobs are listed newest first.
type JobRepository interface {
	CreateJob(ctx context.Context, j model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, opts ListJobsOpts) ([]model.Job, error)
	UpdateJob(ctx context.Context, j model.Job) error
}
