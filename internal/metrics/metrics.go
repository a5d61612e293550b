package metrics

import (
	"context"
	"time"

	"github.com/slok/meshforge/internal/model"
)

// Job lifecycle events.
const (
	JobEventStarted     = "started"
	JobEventCompleted   = "completed"
	JobEventCancelled   = "cancelled"
	JobEventFailed      = "failed"
	JobEventInterrupted = "interrupted"
)

// Recorder knows how to record the application metrics.
type Recorder interface {
	ObserveHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
	ObserveGeneration(ctx context.Context, t model.GenerationType, q model.Quality, success bool, duration time.Duration)
	AddJobEvent(ctx context.Context, event string)
	ObserveStageDuration(ctx context.Context, stageID string, duration time.Duration)
	SetRunningJobs(ctx context.Context, n int)
}

// Noop is a recorder that doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) ObserveHTTPRequest(context.Context, string, string, int, time.Duration) {}
func (noop) ObserveGeneration(context.Context, model.GenerationType, model.Quality, bool, time.Duration) {
}
func (noop) AddJobEvent(context.Context, string)                         {}
func (noop) ObserveStageDuration(context.Context, string, time.Duration) {}
func (noop) SetRunningJobs(context.Context, int)                         {}
