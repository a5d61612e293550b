package lib

import (
	"context"
	"fmt"

	"github.com/slok/meshforge/internal/model"
)

// CreateJob starts an asynchronous pipeline job and returns it in its initial state.
//
// Returns an error matching [ErrConflict] when the server is running its
// maximum number of jobs.
func (c *Client) CreateJob(ctx context.Context, opts GenerateOpts) (*Job, error) {
	j, err := c.api.CreateJob(ctx, toUploadRequest(opts))
	if err != nil {
		return nil, fmt.Errorf("could not create job: %w", mapError(err))
	}

	job := fromInternalJob(*j)
	return &job, nil
}

// GetJob returns the current state of a job.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := c.api.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get job %q: %w", id, mapError(err))
	}

	job := fromInternalJob(*j)
	return &job, nil
}

// ListJobs returns the jobs, newest first. opts can be nil.
func (c *Client) ListJobs(ctx context.Context, opts *ListJobsOpts) ([]Job, error) {
	js, err := c.api.ListJobs(ctx, toInternalListRequest(opts))
	if err != nil {
		return nil, fmt.Errorf("could not list jobs: %w", mapError(err))
	}

	return fromInternalJobList(js), nil
}

// CancelJob cancels a pending or running job.
//
// Cancelling a finished job returns an error matching [ErrConflict].
func (c *Client) CancelJob(ctx context.Context, id string) (*Job, error) {
	j, err := c.api.CancelJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not cancel job %q: %w", id, mapError(err))
	}

	job := fromInternalJob(*j)
	return &job, nil
}

// GetJobTrace returns the display logs and API calls recorded for a job.
func (c *Client) GetJobTrace(ctx context.Context, id string) (*Trace, error) {
	t, err := c.api.GetJobTrace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get job %q trace: %w", id, mapError(err))
	}

	tr := fromInternalTrace(*t)
	return &tr, nil
}

// WatchJob streams the job state changes to fn until the job finishes.
//
// fn is called with the current state first. Intermediate states may be
// skipped by the server when the client is slow, the final state is always
// delivered. Returning an error from fn stops the watch and returns that error.
// The method blocks until the job finishes or ctx is cancelled.
func (c *Client) WatchJob(ctx context.Context, id string, fn func(Job) error) error {
	err := c.api.WatchJob(ctx, id, func(j model.Job) error {
		return fn(fromInternalJob(j))
	})
	if err != nil {
		return fmt.Errorf("could not watch job %q: %w", id, mapError(err))
	}

	return nil
}
