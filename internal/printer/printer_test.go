package printer_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/printer"
)

func jobFixture() model.Job {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	finishedAt := createdAt.Add(30 * time.Second)
	return model.Job{
		ID:      "01JOB",
		Request: model.GenerationRequest{Type: model.GenerationTypeText, Prompt: "a red chair", Quality: model.QualityHigh},
		Status:  model.JobStatusCompleted,
		Stages: []model.Stage{
			{ID: "mesh", Name: "Mesh", Status: model.StageStatusCompleted, Progress: 100, Duration: 2300 * time.Millisecond},
			{ID: "export", Name: "Export", Status: model.StageStatusCompleted, Progress: 100, Duration: 1200 * time.Millisecond},
		},
		CurrentStage: 2,
		Artifact: &model.Artifact{
			ModelURL:  model.SampleModelURLText,
			Vertices:  15432,
			Triangles: 28764,
			FileSize:  "2.4 MB",
			Format:    "GLB",
		},
		CreatedAt:  createdAt,
		UpdatedAt:  finishedAt,
		FinishedAt: &finishedAt,
	}
}

func TestTablePrinterPrintJob(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintJob(jobFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Status:     completed")
	assert.Contains(t, out, "Progress:   100.0%")
	assert.Contains(t, out, "Finished:   2026-01-30 10:00:30 UTC")
	assert.Contains(t, out, "Mesh:       15,432 vertices, 28,764 triangles")
	assert.Contains(t, out, "File:       2.4 MB (GLB)")
	assert.Contains(t, out, "2.3s")
}

func TestTablePrinterPrintJobList(t *testing.T) {
	running := jobFixture()
	running.ID = "01RUNNING"
	running.Status = model.JobStatusRunning
	running.CurrentStage = 1
	running.Stages[1].Status = model.StageStatusRunning
	running.Stages[1].Progress = 50
	running.Artifact = nil

	tests := map[string]struct {
		jobs   []model.Job
		expOut []string
	}{
		"No jobs should print nothing.": {},
		"Jobs should print a row per job.": {
			jobs: []model.Job{running, jobFixture()},
			expOut: []string{
				"ID",
				"01RUNNING  text  running    75%       Export",
				"01JOB      text  completed  100%      -",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.NewTablePrinter(&buf)

			err := p.PrintJobList(test.jobs)
			require.NoError(t, err)

			if len(test.expOut) == 0 {
				assert.Empty(t, buf.String())
				return
			}
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, len(test.expOut))
			for i, exp := range test.expOut {
				assert.True(t, strings.HasPrefix(lines[i], exp), "line %d: %q", i, lines[i])
			}
		})
	}
}

func TestTablePrinterPrintJobProgress(t *testing.T) {
	j := jobFixture()
	j.Status = model.JobStatusRunning
	j.CurrentStage = 1
	j.Stages[1].Status = model.StageStatusRunning
	j.Stages[1].Progress = 40

	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)
	require.NoError(t, p.PrintJobProgress(j))

	assert.Equal(t, " 70.0%  running    Export (40%)\n", buf.String())
}

func TestTablePrinterPrintCapabilities(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintCapabilities(model.DefaultCapabilities(model.DefaultGenerationLimits()))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Types:            text, single_image, multi_image")
	assert.Contains(t, out, "Max image size:   10 MiB")
	assert.Contains(t, out, "Max prompt:       500 characters")
}

func TestJSONPrinterPrintJob(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintJob(jobFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"status": "completed"`)
	assert.Contains(t, out, `"progress": 100`)
	assert.Contains(t, out, `"model_url": "`+model.SampleModelURLText+`"`)
	assert.Contains(t, out, `"duration_ms": 2300`)
}

func TestJSONPrinterPrintJobProgress(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	require.NoError(t, p.PrintJobProgress(jobFixture()))
	require.NoError(t, p.PrintJobProgress(jobFixture()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &got))
		assert.Equal(t, "01JOB", got["id"])
	}
}

func TestJSONPrinterPrintGeneration(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintGeneration(model.GenerationResult{
		Artifact:       "/models/sample.glb",
		Metrics:        model.GenerationMetrics{Vertices: 11500, Faces: 23000, Materials: 1, Textures: 1},
		ProcessingTime: 1500 * time.Millisecond,
		Quality:        model.QualityMedium,
		FileSize:       "2.0 MB",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"verts": 11500`)
	assert.Contains(t, out, `"processing_time": 1.5`)
}

func TestPrinterMessage(t *testing.T) {
	tests := map[string]struct {
		format string
		expOut string
	}{
		"Table should print the raw message.": {
			format: printer.FormatTable,
			expOut: "ok\n",
		},
		"JSON should print a message object.": {
			format: printer.FormatJSON,
			expOut: "{\n  \"message\": \"ok\"\n}\n",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.New(test.format, &buf)

			require.NoError(t, p.PrintMessage("ok"))
			assert.Equal(t, test.expOut, buf.String())
		})
	}
}
