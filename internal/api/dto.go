package api

import (
	"time"

	"github.com/slok/meshforge/internal/model"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// GenerateMetrics are the mesh statistics of a generation.
type GenerateMetrics struct {
	Verts     int `json:"verts"`
	Faces     int `json:"faces"`
	Materials int `json:"materials"`
	Textures  int `json:"textures"`
}

// GenerateResponse is the body of a successful generation.
type GenerateResponse struct {
	Artifact  string          `json:"artifact"`
	Metrics   GenerateMetrics `json:"metrics"`
	Thumbnail string          `json:"thumbnail"`
	// ProcessingTime is in seconds.
	ProcessingTime float64 `json:"processing_time"`
	Quality        string  `json:"quality"`
	FileSize       string  `json:"file_size"`
}

// CapabilitiesResponse is the generation API capability document.
type CapabilitiesResponse struct {
	Message           string            `json:"message"`
	Endpoints         map[string]string `json:"endpoints"`
	SupportedTypes    []string          `json:"supported_types"`
	SupportedFormats  []string          `json:"supported_formats"`
	SupportedQuality  []string          `json:"supported_quality"`
	MaxImages         int               `json:"max_images"`
	MaxImageSizeBytes int64             `json:"max_image_size_bytes"`
	MaxPromptLength   int               `json:"max_prompt_length"`
}

// Image is an uploaded image description.
type Image struct {
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Stage is a pipeline job stage.
type Stage struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	DurationMS  int64   `json:"duration_ms,omitempty"`
	Details     string  `json:"details,omitempty"`
}

// Artifact is the result of a completed pipeline job.
type Artifact struct {
	ModelURL  string `json:"model_url"`
	Vertices  int    `json:"vertices"`
	Triangles int    `json:"triangles"`
	FileSize  string `json:"file_size"`
	Format    string `json:"format"`
}

// Job is a pipeline job.
type Job struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Prompt         string     `json:"prompt,omitempty"`
	Quality        string     `json:"quality"`
	Images         []Image    `json:"images,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	Status         string     `json:"status"`
	Progress       float64    `json:"progress"`
	CurrentStage   int        `json:"current_stage"`
	Stages         []Stage    `json:"stages"`
	Artifact       *Artifact  `json:"artifact,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// JobList is a list of pipeline jobs.
type JobList struct {
	Jobs []Job `json:"jobs"`
}

// LogEntry is a trace log record.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// APICall is a trace API call record.
type APICall struct {
	ID         string         `json:"id"`
	Method     string         `json:"method"`
	Endpoint   string         `json:"endpoint"`
	Status     int            `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
	Request    map[string]any `json:"request,omitempty"`
	Response   map[string]any `json:"response,omitempty"`
}

// Trace is the display trace of a pipeline job.
type Trace struct {
	JobID    string     `json:"job_id"`
	Logs     []LogEntry `json:"logs"`
	APICalls []APICall  `json:"api_calls"`
}

// GenerateResponseFromModel maps a generation result to its API representation.
func GenerateResponseFromModel(r model.GenerationResult) GenerateResponse {
	return GenerateResponse{
		Artifact: r.Artifact,
		Metrics: GenerateMetrics{
			Verts:     r.Metrics.Vertices,
			Faces:     r.Metrics.Faces,
			Materials: r.Metrics.Materials,
			Textures:  r.Metrics.Textures,
		},
		Thumbnail:      r.Thumbnail,
		ProcessingTime: r.ProcessingTime.Seconds(),
		Quality:        string(r.Quality),
		FileSize:       r.FileSize,
	}
}

// CapabilitiesFromModel maps the capabilities to the API capability document.
func CapabilitiesFromModel(c model.Capabilities) CapabilitiesResponse {
	types := make([]string, 0, len(c.Types))
	for _, t := range c.Types {
		types = append(types, string(t))
	}
	qualities := make([]string, 0, len(c.Quality))
	for _, q := range c.Quality {
		qualities = append(qualities, string(q))
	}

	return CapabilitiesResponse{
		Message: "3D Generation API",
		Endpoints: map[string]string{
			"POST":                      "/api/generate - Generate 3D model from text or images",
			"GET":                       "/api/generate - Generation API capabilities",
			"POST /api/jobs":            "Start a simulated generation pipeline job",
			"GET /api/jobs":             "List pipeline jobs",
			"GET /api/jobs/{id}":        "Get a pipeline job",
			"DELETE /api/jobs/{id}":     "Cancel a pipeline job",
			"GET /api/jobs/{id}/events": "Stream pipeline job updates over a websocket",
			"GET /api/jobs/{id}/trace":  "Get the pipeline job logs and API calls",
		},
		SupportedTypes:    types,
		SupportedFormats:  c.Formats,
		SupportedQuality:  qualities,
		MaxImages:         c.Limits.MaxImages,
		MaxImageSizeBytes: c.Limits.MaxImageSizeBytes,
		MaxPromptLength:   c.Limits.MaxPromptLength,
	}
}

// JobFromModel maps a pipeline job to its API representation.
func JobFromModel(j model.Job) Job {
	job := Job{
		ID:             j.ID,
		Type:           string(j.Request.Type),
		Prompt:         j.Request.Prompt,
		Quality:        string(j.Request.Quality),
		IdempotencyKey: j.IdempotencyKey,
		Status:         string(j.Status),
		Progress:       j.Progress(),
		CurrentStage:   j.CurrentStage,
		Stages:         make([]Stage, 0, len(j.Stages)),
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		FinishedAt:     j.FinishedAt,
	}

	for _, img := range j.Request.Images {
		job.Images = append(job.Images, Image{
			Field:       img.Field,
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
			Status:      string(s.Status),
			Progress:    s.Progress,
			DurationMS:  s.Duration.Milliseconds(),
			Details:     s.Details,
		})
	}

	if j.Artifact != nil {
		job.Artifact = &Artifact{
			ModelURL:  j.Artifact.ModelURL,
			Vertices:  j.Artifact.Vertices,
			Triangles: j.Artifact.Triangles,
			FileSize:  j.Artifact.FileSize,
			Format:    j.Artifact.Format,
		}
	}

	return job
}

// TraceFromModel maps a job trace to its API representation.
func TraceFromModel(jobID string, t model.Trace) Trace {
	tr := Trace{
		JobID:    jobID,
		Logs:     make([]LogEntry, 0, len(t.Logs)),
		APICalls: make([]APICall, 0, len(t.APICalls)),
	}
	for _, l := range t.Logs {
		tr.Logs = append(tr.Logs, LogEntry{
			Timestamp: l.Timestamp,
			Level:     string(l.Level),
			Message:   l.Message,
			Details:   l.Details,
		})
	}
	for _, c := range t.APICalls {
		tr.APICalls = append(tr.APICalls, APICall{
			ID:         c.ID,
			Method:     c.Method,
			Endpoint:   c.Endpoint,
			Status:     c.Status,
			DurationMS: c.Duration.Milliseconds(),
			Timestamp:  c.Timestamp,
			Request:    c.Request,
			Response:   c.Response,
		})
	}
	return tr
}

// ToModel maps the API generation result to the domain result.
func (r GenerateResponse) ToModel() model.GenerationResult {
	return model.GenerationResult{
		Artifact: r.Artifact,
		Metrics: model.GenerationMetrics{
			Vertices:  r.Metrics.Verts,
			Faces:     r.Metrics.Faces,
			Materials: r.Metrics.Materials,
			Textures:  r.Metrics.Textures,
		},
		Thumbnail:      r.Thumbnail,
		ProcessingTime: time.Duration(r.ProcessingTime * float64(time.Second)),
		Quality:        model.Quality(r.Quality),
		FileSize:       r.FileSize,
	}
}

// ToModel maps the API capability document to the domain capabilities.
func (c CapabilitiesResponse) ToModel() model.Capabilities {
	caps := model.Capabilities{
		Formats: c.SupportedFormats,
		Limits: model.GenerationLimits{
			MaxPromptLength:   c.MaxPromptLength,
			MaxImages:         c.MaxImages,
			MaxImageSizeBytes: c.MaxImageSizeBytes,
		},
	}
	for _, t := range c.SupportedTypes {
		caps.Types = append(caps.Types, model.GenerationType(t))
	}
	for _, q := range c.SupportedQuality {
		caps.Quality = append(caps.Quality, model.Quality(q))
	}
	return caps
}

// ToModel maps the API job to the domain job.
func (j Job) ToModel() model.Job {
	job := model.Job{
		ID: j.ID,
		Request: model.GenerationRequest{
			Type:    model.GenerationType(j.Type),
			Prompt:  j.Prompt,
			Quality: model.Quality(j.Quality),
		},
		IdempotencyKey: j.IdempotencyKey,
		Status:         model.JobStatus(j.Status),
		Stages:         make([]model.Stage, 0, len(j.Stages)),
		CurrentStage:   j.CurrentStage,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		FinishedAt:     j.FinishedAt,
	}

	for _, img := range j.Images {
		job.Request.Images = append(job.Request.Images, model.ImageInput{
			Field:       img.Field,
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Size:        img.Size,
		})
	}

	for _, s := range j.Stages {
		job.Stages = append(job.Stages, model.Stage{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Status:      model.StageStatus(s.Status),
			Progress:    s.Progress,
			Duration:    time.Duration(s.DurationMS) * time.Millisecond,
			Details:     s.Details,
		})
	}

	if j.Artifact != nil {
		job.Artifact = &model.Artifact{
			ModelURL:  j.Artifact.ModelURL,
			Vertices:  j.Artifact.Vertices,
			Triangles: j.Artifact.Triangles,
			FileSize:  j.Artifact.FileSize,
			Format:    j.Artifact.Format,
		}
	}

	return job
}

// ToModel maps the API trace to the domain trace.
func (t Trace) ToModel() model.Trace {
	tr := model.Trace{
		Logs:     make([]model.LogEntry, 0, len(t.Logs)),
		APICalls: make([]model.APICall, 0, len(t.APICalls)),
	}
	for _, l := range t.Logs {
		tr.Logs = append(tr.Logs, model.LogEntry{
			Timestamp: l.Timestamp,
			Level:     model.LogLevel(l.Level),
			Message:   l.Message,
			Details:   l.Details,
		})
	}
	for _, c := range t.APICalls {
		tr.APICalls = append(tr.APICalls, model.APICall{
			ID:        c.ID,
			Method:    c.Method,
			Endpoint:  c.Endpoint,
			Status:    c.Status,
			Duration:  time.Duration(c.DurationMS) * time.Millisecond,
			Timestamp: c.Timestamp,
			Request:   c.Request,
			Response:  c.Response,
		})
	}
	return tr
}
