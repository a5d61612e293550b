// Package codec has the JSON storage representation of the pipeline jobs shared by
// the repository implementations that persist documents.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/slok/meshforge/internal/model"
)

// JobV1 is the v1 persisted representation of a job.
type JobV1 struct {
	Version        string      `json:"version"`
	ID             string      `json:"id"`
	Request        RequestV1   `json:"request"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
	Status         string      `json:"status"`
	Stages         []StageV1   `json:"stages"`
	CurrentStage   int         `json:"current_stage"`
	Artifact       *ArtifactV1 `json:"artifact,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
}

// RequestV1 is the persisted generation request, only image metadata is kept.
type RequestV1 struct {
	Type    string    `json:"type"`
	Prompt  string    `json:"prompt,omitempty"`
	Quality string    `json:"quality,omitempty"`
	Images  []ImageV1 `json:"images,omitempty"`
}

type ImageV1 struct {
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type StageV1 struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	DurationMS  int64   `json:"duration_ms,omitempty"`
	Details     string  `json:"details,omitempty"`
}

type ArtifactV1 struct {
	ModelURL  string `json:"model_url"`
	Vertices  int    `json:"vertices"`
	Triangles int    `json:"triangles"`
	FileSize  string `json:"file_size"`
	Format    string `json:"format"`
}

const jobVersionV1 = "v1"

// EncodeJob returns the JSON document of a job.
func EncodeJob(j model.Job) ([]byte, error) {
	data, err := json.Marshal(JobFromModel(j))
	if err != nil {
		return nil, fmt.Errorf("could not marshal job: %w", err)
	}
	return data, nil
}

// DecodeJob parses a JSON job document.
func DecodeJob(data []byte) (*model.Job, error) {
	var doc JobV1
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not unmarshal job: %w", err)
	}
	if doc.Version != jobVersionV1 {
		return nil, fmt.Errorf("unsupported job document version %q", doc.Version)
	}

	j := doc.ToModel()
	return &j, nil
}

// JobFromModel maps a job to its storage representation.
func JobFromModel(j model.Job) JobV1 {
	doc := JobV1{
		Version:        jobVersionV1,
		ID:             j.ID,
		Request:        RequestFromModel(j.Request),
		IdempotencyKey: j.IdempotencyKey,
		Status:         string(j.Status),
		Stages:         StagesFromModel(j.Stages),
		CurrentStage:   j.CurrentStage,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt.UTC(),
		UpdatedAt:      j.UpdatedAt.UTC(),
	}
	if j.Artifact != nil {
		a := ArtifactFromModel(*j.Artifact)
		doc.Artifact = &a
	}
	if j.FinishedAt != nil {
		t := j.FinishedAt.UTC()
		doc.FinishedAt = &t
	}
	return doc
}

// ToModel maps the storage representation to the domain job.
func (d JobV1) ToModel() model.Job {
	j := model.Job{
		ID:             d.ID,
		Request:        d.Request.ToModel(),
		IdempotencyKey: d.IdempotencyKey,
		Status:         model.JobStatus(d.Status),
		Stages:         StagesToModel(d.Stages),
		CurrentStage:   d.CurrentStage,
		Error:          d.Error,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if d.Artifact != nil {
		a := d.Artifact.ToModel()
		j.Artifact = &a
	}
	if d.FinishedAt != nil {
		t := d.FinishedAt.UTC()
		j.FinishedAt = &t
	}
	return j
}

func RequestFromModel(r model.GenerationRequest) RequestV1 {
	req := RequestV1{
		Type:    string(r.Type),
		Prompt:  r.Prompt,
		Quality: string(r.Quality),
	}
	for _, img := range r.Images {
		req.Images = append(req.Images, ImageV1{
			Field:       img.Field,
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Size:        img.Size,
		})
	}
	return req
}

func (r RequestV1) ToModel() model.GenerationRequest {
	req := model.GenerationRequest{
		Type:    model.GenerationType(r.Type),
		Prompt:  r.Prompt,
		Quality: model.Quality(r.Quality),
	}
	for _, img := range r.Images {
		req.Images = append(req.Images, model.ImageInput{
			Field:       img.Field,
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Size:        img.Size,
		})
	}
	return req
}

func StagesFromModel(stages []model.Stage) []StageV1 {
	res := make([]StageV1, 0, len(stages))
	for _, s := range stages {
		res = append(res, StageV1{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Status:      string(s.Status),
			Progress:    s.Progress,
			DurationMS:  s.Duration.Milliseconds(),
			Details:     s.Details,
		})
	}
	return res
}

func StagesToModel(stages []StageV1) []model.Stage {
	res := make([]model.Stage, 0, len(stages))
	for _, s := range stages {
		res = append(res, model.Stage{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Status:      model.StageStatus(s.Status),
			Progress:    s.Progress,
			Duration:    time.Duration(s.DurationMS) * time.Millisecond,
			Details:     s.Details,
		})
	}
	return res
}

func ArtifactFromModel(a model.Artifact) ArtifactV1 {
	return ArtifactV1{
		ModelURL:  a.ModelURL,
		Vertices:  a.Vertices,
		Triangles: a.Triangles,
		FileSize:  a.FileSize,
		Format:    a.Format,
	}
}

func (a ArtifactV1) ToModel() model.Artifact {
	return model.Artifact{
		ModelURL:  a.ModelURL,
		Vertices:  a.Vertices,
		Triangles: a.Triangles,
		FileSize:  a.FileSize,
		Format:    a.Format,
	}
}
