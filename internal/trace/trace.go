package trace

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/slok/meshforge/internal/model"
)

const assetsBaseURL = "https://assets.lidvizion.com"

// Build returns the display trace of a pipeline job, anchored at base (the time of
// the newest record). Records describe the run as the backend workflow API would
// have seen it and depend on the job mode and status.
func Build(j model.Job, base time.Time) model.Trace {
	return model.Trace{
		Logs:     logs(j, base),
		APICalls: apiCalls(j, base),
	}
}

func logs(j model.Job, base time.Time) []model.LogEntry {
	at := func(offset time.Duration) time.Time { return base.Add(-offset).UTC() }
	mode := j.Request.Type.Mode()

	entries := []model.LogEntry{
		{
			Timestamp: at(10 * time.Second),
			Level:     model.LogLevelInfo,
			Message:   "Job started",
			Details:   fmt.Sprintf("Mode: %s, Request ID: %s", mode, j.ID),
		},
		{
			Timestamp: at(9 * time.Second),
			Level:     model.LogLevelInfo,
			Message:   "Input validation completed",
			Details:   "All input parameters validated successfully",
		},
		{
			Timestamp: at(7 * time.Second),
			Level:     model.LogLevelInfo,
			Message:   "Processing pipeline initialized",
			Details:   fmt.Sprintf("%d stages configured for execution", len(j.Stages)),
		},
	}

	switch j.Request.Type {
	case model.GenerationTypeSingleImage:
		entries = append(entries,
			model.LogEntry{Timestamp: at(6 * time.Second), Level: model.LogLevelInfo, Message: "Image preprocessed", Details: "Background removed, normalized to 512x512"},
			model.LogEntry{Timestamp: at(4 * time.Second), Level: model.LogLevelInfo, Message: "Depth estimation completed", Details: "MiDaS depth map generated with 0.92 confidence"},
		)
	case model.GenerationTypeMultiImage:
		entries = append(entries,
			model.LogEntry{Timestamp: at(6 * time.Second), Level: model.LogLevelInfo, Message: "Multi-view images processed", Details: fmt.Sprintf("%d images aligned and calibrated", len(j.Request.Images))},
			model.LogEntry{Timestamp: at(4 * time.Second), Level: model.LogLevelInfo, Message: "NeRF training initialized", Details: "Training with 10k iterations, batch size 1024"},
		)
	default:
		entries = append(entries,
			model.LogEntry{Timestamp: at(6 * time.Second), Level: model.LogLevelInfo, Message: "Text prompt processed", Details: "Prompt tokenized and embedded successfully"},
			model.LogEntry{Timestamp: at(4 * time.Second), Level: model.LogLevelInfo, Message: "3D generation model loaded", Details: "Using Text2Mesh v2.1 with guidance scale 7.5"},
		)
	}

	switch j.Status {
	case model.JobStatusCompleted:
		verts, tris := 0, 0
		if j.Artifact != nil {
			verts, tris = j.Artifact.Vertices, j.Artifact.Triangles
		}
		entries = append(entries,
			model.LogEntry{Timestamp: at(2 * time.Second), Level: model.LogLevelSuccess, Message: "Mesh generation completed", Details: fmt.Sprintf("Generated mesh with %s vertices and %s triangles", humanize.Comma(int64(verts)), humanize.Comma(int64(tris)))},
			model.LogEntry{Timestamp: at(time.Second), Level: model.LogLevelSuccess, Message: "Texture baking finished", Details: "4K PBR textures generated (albedo, normal, roughness)"},
			model.LogEntry{Timestamp: at(0), Level: model.LogLevelSuccess, Message: "Export completed", Details: "Model exported in GLB, USDZ, OBJ, and PLY formats"},
		)
	case model.JobStatusCancelled:
		entries = append(entries, model.LogEntry{Timestamp: at(0), Level: model.LogLevelWarning, Message: "Job cancelled", Details: fmt.Sprintf("Stopped at stage %s", currentStageID(j))})
	case model.JobStatusFailed:
		entries = append(entries, model.LogEntry{Timestamp: at(0), Level: model.LogLevelError, Message: "Job failed", Details: j.Error})
	}

	return entries
}

func apiCalls(j model.Job, base time.Time) []model.APICall {
	at := func(offset time.Duration) time.Time { return base.Add(-offset).UTC() }
	mode := j.Request.Type.Mode()

	req := map[string]any{"mode": mode}
	switch j.Request.Type {
	case model.GenerationTypeSingleImage:
		name := "uploaded_image.jpg"
		if len(j.Request.Images) > 0 && j.Request.Images[0].Filename != "" {
			name = j.Request.Images[0].Filename
		}
		req["image_url"] = name
		req["background_removal"] = true
	case model.GenerationTypeMultiImage:
		frames := make([]string, 0, len(j.Request.Images))
		for i := range j.Request.Images {
			frames = append(frames, fmt.Sprintf("frame_%03d.jpg", i+1))
		}
		req["frame_urls"] = frames
		req["target_format"] = "glb"
	default:
		req["prompt"] = j.Request.Prompt
		req["guidance"] = 7.5
		req["seed"] = 42
	}

	calls := []model.APICall{
		{
			ID:        "1",
			Method:    "POST",
			Endpoint:  "/v1/workflows/demo_workflow_id/run",
			Status:    201,
			Duration:  1250 * time.Millisecond,
			Timestamp: at(10 * time.Second),
			Request:   req,
			Response: map[string]any{
				"job_id":             j.ID,
				"status":             "queued",
				"estimated_duration": "5-10 minutes",
			},
		},
	}

	statusEndpoint := fmt.Sprintf("/v1/jobs/%s/status", j.ID)
	if j.Status != model.JobStatusCompleted {
		calls = append(calls, model.APICall{
			ID:        "2",
			Method:    "GET",
			Endpoint:  statusEndpoint,
			Status:    200,
			Duration:  180 * time.Millisecond,
			Timestamp: at(0),
			Response: map[string]any{
				"job_id":        j.ID,
				"status":        remoteStatus(j.Status),
				"progress":      int(j.Progress()),
				"current_stage": currentStageID(j),
				"artifacts":     []map[string]any{},
			},
		})
		return calls
	}

	metrics := map[string]any{
		"processing_time": totalDuration(j.Stages).Seconds(),
		"quality_score":   0.89,
	}
	if j.Artifact != nil {
		metrics["vertices"] = j.Artifact.Vertices
		metrics["triangles"] = j.Artifact.Triangles
	}
	size := ""
	if j.Artifact != nil {
		size = j.Artifact.FileSize
	}

	calls = append(calls,
		model.APICall{
			ID:        "2",
			Method:    "GET",
			Endpoint:  statusEndpoint,
			Status:    200,
			Duration:  180 * time.Millisecond,
			Timestamp: at(5 * time.Second),
			Response: map[string]any{
				"job_id":        j.ID,
				"status":        "processing",
				"progress":      65,
				"current_stage": "mesh_generation",
				"artifacts":     []map[string]any{},
			},
		},
		model.APICall{
			ID:        "3",
			Method:    "GET",
			Endpoint:  statusEndpoint,
			Status:    200,
			Duration:  195 * time.Millisecond,
			Timestamp: at(time.Second),
			Response: map[string]any{
				"job_id":        j.ID,
				"status":        "completed",
				"progress":      100,
				"current_stage": "export",
				"artifacts": []map[string]any{
					{"type": "model_glb", "url": fmt.Sprintf("%s/%s/model.glb", assetsBaseURL, j.ID), "size": size},
					{"type": "model_usdz", "url": fmt.Sprintf("%s/%s/model.usdz", assetsBaseURL, j.ID), "size": "3.1 MB"},
					{"type": "preview_image", "url": fmt.Sprintf("%s/%s/preview.jpg", assetsBaseURL, j.ID), "size": "256 KB"},
				},
				"metrics": metrics,
			},
		},
	)

	return calls
}

func remoteStatus(s model.JobStatus) string {
	switch s {
	case model.JobStatusPending:
		return "queued"
	case model.JobStatusRunning:
		return "processing"
	default:
		return string(s)
	}
}

func currentStageID(j model.Job) string {
	if j.CurrentStage >= 0 && j.CurrentStage < len(j.Stages) {
		return j.Stages[j.CurrentStage].ID
	}
	if len(j.Stages) > 0 {
		return j.Stages[len(j.Stages)-1].ID
	}
	return ""
}

func totalDuration(stages []model.Stage) time.Duration {
	var d time.Duration
	for _, s := range stages {
		d += s.Duration
	}
	return d
}
