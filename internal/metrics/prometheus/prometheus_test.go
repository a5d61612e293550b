package prometheus_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/metrics"
	metricsprometheus "github.com/slok/meshforge/internal/metrics/prometheus"
	"github.com/slok/meshforge/internal/model"
)

func TestRecorder(t *testing.T) {
	tests := map[string]struct {
		record     func(r metrics.Recorder)
		metricName string
		expMetrics string
	}{
		"HTTP requests should be counted by method, path and status.": {
			record: func(r metrics.Recorder) {
				ctx := context.Background()
				r.ObserveHTTPRequest(ctx, "POST", "/api/generate", 200, time.Second)
				r.ObserveHTTPRequest(ctx, "POST", "/api/generate", 200, time.Second)
				r.ObserveHTTPRequest(ctx, "POST", "/api/generate", 400, time.Second)
			},
			metricName: "meshforge_http_requests_total",
			expMetrics: `
# HELP meshforge_http_requests_total Total number of HTTP requests.
# TYPE meshforge_http_requests_total counter
meshforge_http_requests_total{method="POST",path="/api/generate",status="200"} 2
meshforge_http_requests_total{method="POST",path="/api/generate",status="400"} 1
`,
		},
		"Generations should be counted by type, quality and result.": {
			record: func(r metrics.Recorder) {
				ctx := context.Background()
				r.ObserveGeneration(ctx, model.GenerationTypeText, model.QualityHigh, true, 3*time.Second)
				r.ObserveGeneration(ctx, model.GenerationTypeMultiImage, model.QualityLow, false, time.Second)
			},
			metricName: "meshforge_generator_generations_total",
			expMetrics: `
# HELP meshforge_generator_generations_total Total number of 3D generations.
# TYPE meshforge_generator_generations_total counter
meshforge_generator_generations_total{quality="high",success="true",type="text"} 1
meshforge_generator_generations_total{quality="low",success="false",type="multi_image"} 1
`,
		},
		"Job events should be counted.": {
			record: func(r metrics.Recorder) {
				ctx := context.Background()
				r.AddJobEvent(ctx, metrics.JobEventStarted)
				r.AddJobEvent(ctx, metrics.JobEventStarted)
				r.AddJobEvent(ctx, metrics.JobEventCancelled)
			},
			metricName: "meshforge_pipeline_job_events_total",
			expMetrics: `
# HELP meshforge_pipeline_job_events_total Total number of pipeline job lifecycle events.
# TYPE meshforge_pipeline_job_events_total counter
meshforge_pipeline_job_events_total{event="cancelled"} 1
meshforge_pipeline_job_events_total{event="started"} 2
`,
		},
		"Running jobs should be set.": {
			record: func(r metrics.Recorder) {
				r.SetRunningJobs(context.Background(), 3)
			},
			metricName: "meshforge_pipeline_running_jobs",
			expMetrics: `
# HELP meshforge_pipeline_running_jobs The number of pipeline jobs being simulated.
# TYPE meshforge_pipeline_running_jobs gauge
meshforge_pipeline_running_jobs 3
`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			rec := metricsprometheus.NewRecorder(reg)

			test.record(rec)

			err := testutil.GatherAndCompare(reg, strings.NewReader(test.expMetrics), test.metricName)
			require.NoError(t, err)
		})
	}
}

func TestRecorderStageDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metricsprometheus.NewRecorder(reg)

	rec.ObserveStageDuration(context.Background(), "mesh", 4*time.Second)
	rec.ObserveStageDuration(context.Background(), "mesh", 2*time.Second)

	count, err := testutil.GatherAndCount(reg, "meshforge_pipeline_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
