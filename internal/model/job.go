package model

import "time"

// JobStatus represents the state of a pipeline job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true when the job will not change anymore.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled || s == JobStatusFailed
}

// ValidJobStatus returns true if the status is a known job status.
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}

// Job is a simulated 3D generation pipeline run.
type Job struct {
	ID             string
	Request        GenerationRequest
	IdempotencyKey string
	Status         JobStatus
	Stages         []Stage
	CurrentStage   int
	Artifact       *Artifact
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FinishedAt     *time.Time
}

// Progress returns the overall job progress percentage.
func (j Job) Progress() float64 {
	if j.Status == JobStatusCompleted {
		return 100
	}
	return OverallProgress(j.Stages)
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	c := j
	c.Stages = CloneStages(j.Stages)
	if j.Request.Images != nil {
		c.Request.Images = append([]ImageInput(nil), j.Request.Images...)
	}
	if j.Artifact != nil {
		a := *j.Artifact
		c.Artifact = &a
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return c
}
