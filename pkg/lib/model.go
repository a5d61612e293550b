package lib

import (
	"io"
	"time"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/model"
)

// GenerationType is the kind of input a generation starts from.
type GenerationType string

const (
	// GenerationTypeText generates a model from a text prompt.
	GenerationTypeText GenerationType = "text"
	// GenerationTypeSingleImage generates a model from exactly one image.
	GenerationTypeSingleImage GenerationType = "single_image"
	// GenerationTypeMultiImage generates a model from several views of the same object.
	GenerationTypeMultiImage GenerationType = "multi_image"
)

// Quality is the requested output quality.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Image is an image uploaded with a generation request.
type Image struct {
	// Filename is reported back by the server on validation errors.
	Filename string
	// ContentType is the image media type (image/png, image/jpeg or image/webp).
	// When empty the server detects it from the content.
	ContentType string
	// Content is streamed to the server, the caller owns closing it.
	Content io.Reader
}

// GenerateOpts are the options of a generation or a pipeline job.
type GenerateOpts struct {
	// Type is required.
	Type GenerationType
	// Prompt is required for text generations, at most 500 characters.
	Prompt string
	// Quality defaults to medium.
	Quality Quality
	// Images are required for image generations, single_image accepts exactly one.
	Images []Image
	// IdempotencyKey is optional and stored on pipeline jobs.
	IdempotencyKey string
}

// Metrics are the mesh statistics of a generated model.
type Metrics struct {
	Vertices  int
	Faces     int
	Materials int
	Textures  int
}

// GenerationResult is the output of a generation.
type GenerationResult struct {
	// ArtifactURL is the location of the generated model.
	ArtifactURL string
	Metrics     Metrics
	// ThumbnailURL is the location of the model preview.
	ThumbnailURL   string
	ProcessingTime time.Duration
	Quality        Quality
	// FileSize is a human readable size (e.g. "2.4 MB").
	FileSize string
}

// Capabilities describes what the server generation API supports.
type Capabilities struct {
	Types             []GenerationType
	ImageFormats      []string
	Qualities         []Quality
	MaxImages         int
	MaxImageSizeBytes int64
	MaxPromptLength   int
}

// JobStatus represents the lifecycle state of a pipeline job.
//
// The typical lifecycle is:
//
//	pending -> running -> completed
//
// A job can be cancelled or fail (e.g. interrupted by a server shutdown) before completing.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// StageStatus represents the state of a pipeline stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusError     StageStatus = "error"
)

// Stage is a single step of a pipeline job.
type Stage struct {
	ID          string
	Name        string
	Description string
	Status      StageStatus
	// Progress is the completion percentage in the [0, 100] range.
	Progress float64
	// Duration is set when the stage completes.
	Duration time.Duration
	Details  string
}

// Artifact is the result of a completed pipeline job.
type Artifact struct {
	ModelURL  string
	Vertices  int
	Triangles int
	FileSize  string
	Format    string
}

// JobImage describes an image uploaded with a job.
type JobImage struct {
	Filename    string
	ContentType string
	Size        int64
}

// Job is a pipeline job returned by the SDK.
//
// This is a read-only snapshot of the job state at the time of the API call.
// Use [Client.GetJob] or [Client.WatchJob] to get the latest state.
type Job struct {
	ID             string
	Type           GenerationType
	Prompt         string
	Quality        Quality
	Images         []JobImage
	IdempotencyKey string
	Status         JobStatus
	// Progress is the overall completion percentage in the [0, 100] range.
	Progress float64
	// CurrentStage is the index of the running stage, equal to the number of
	// stages once completed.
	CurrentStage int
	Stages       []Stage
	// Artifact is set once the job completes.
	Artifact   *Artifact
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// IsFinished returns true when the job will not change anymore.
func (j Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled || j.Status == JobStatusFailed
}

// ListJobsOpts filters the listed jobs.
type ListJobsOpts struct {
	// Status filters by job status when set.
	Status *JobStatus
	// Limit caps the number of jobs, 0 uses the server default.
	Limit int
}

// LogLevel is the severity of a trace log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
)

// LogEntry is a display log record of a pipeline job.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Details   string
}

// APICall is a display record of a backend API call made by a pipeline job.
type APICall struct {
	ID        string
	Method    string
	Endpoint  string
	Status    int
	Duration  time.Duration
	Timestamp time.Time
	Request   map[string]any
	Response  map[string]any
}

// Trace groups the display records of a pipeline job.
type Trace struct {
	Logs     []LogEntry
	APICalls []APICall
}

// --- Conversion helpers ---

func toUploadRequest(opts GenerateOpts) api.UploadRequest {
	req := api.UploadRequest{
		Type:           model.GenerationType(opts.Type),
		Prompt:         opts.Prompt,
		Quality:        model.Quality(opts.Quality),
		IdempotencyKey: opts.IdempotencyKey,
	}
	for _, img := range opts.Images {
		req.Images = append(req.Images, api.Upload{
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Content:     img.Content,
		})
	}
	return req
}

func fromInternalGenerationResult(r model.GenerationResult) GenerationResult {
	return GenerationResult{
		ArtifactURL: r.Artifact,
		Metrics: Metrics{
			Vertices:  r.Metrics.Vertices,
			Faces:     r.Metrics.Faces,
			Materials: r.Metrics.Materials,
			Textures:  r.Metrics.Textures,
		},
		ThumbnailURL:   r.Thumbnail,
		ProcessingTime: r.ProcessingTime,
		Quality:        Quality(r.Quality),
		FileSize:       r.FileSize,
	}
}

func fromInternalCapabilities(c model.Capabilities) Capabilities {
	caps := Capabilities{
		ImageFormats:      c.Formats,
		MaxImages:         c.Limits.MaxImages,
		MaxImageSizeBytes: c.Limits.MaxImageSizeBytes,
		MaxPromptLength:   c.Limits.MaxPromptLength,
	}
	for _, t := range c.Types {
		caps.Types = append(caps.Types, GenerationType(t))
	}
	for _, q := range c.Quality {
		caps.Qualities = append(caps.Qualities, Quality(q))
	}
	return caps
}

func fromInternalJob(j model.Job) Job {
	job := Job{
		ID:             j.ID,
		Type:           GenerationType(j.Request.Type),
		Prompt:         j.Request.Prompt,
		Quality:        Quality(j.Request.Quality),
		IdempotencyKey: j.IdempotencyKey,
		Status:         JobStatus(j.Status),
		Progress:       j.Progress(),
		CurrentStage:   j.CurrentStage,
		Stages:         make([]Stage, 0, len(j.Stages)),
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		FinishedAt:     j.FinishedAt,
	}

	for _, img := range j.Request.Images {
		job.Images = append(job.Images, JobImage{
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Size:        img.Size,
		})
	}

	for _, s := range j.Stages {
		job.Stages = append(job.Stages, Stage{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Status:      StageStatus(s.Status),
			Progress:    s.Progress,
			Duration:    s.Duration,
			Details:     s.Details,
		})
	}

	if a := j.Artifact; a != nil {
		job.Artifact = &Artifact{
			ModelURL:  a.ModelURL,
			Vertices:  a.Vertices,
			Triangles: a.Triangles,
			FileSize:  a.FileSize,
			Format:    a.Format,
		}
	}

	return job
}

func fromInternalJobList(js []model.Job) []Job {
	jobs := make([]Job, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, fromInternalJob(j))
	}
	return jobs
}

func fromInternalTrace(t model.Trace) Trace {
	tr := Trace{
		Logs:     make([]LogEntry, 0, len(t.Logs)),
		APICalls: make([]APICall, 0, len(t.APICalls)),
	}
	for _, l := range t.Logs {
		tr.Logs = append(tr.Logs, LogEntry{
			Timestamp: l.Timestamp,
			Level:     LogLevel(l.Level),
			Message:   l.Message,
			Details:   l.Details,
		})
	}
	for _, c := range t.APICalls {
		tr.APICalls = append(tr.APICalls, APICall(c))
	}
	return tr
}

func toInternalListRequest(opts *ListJobsOpts) api.ListJobsRequest {
	if opts == nil {
		return api.ListJobsRequest{}
	}
	req := api.ListJobsRequest{Limit: opts.Limit}
	if opts.Status != nil {
		req.Status = model.JobStatus(*opts.Status)
	}
	return req
}
