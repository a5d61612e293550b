package meshforge_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/api"
	intmf "github.com/slok/meshforge/test/integration/meshforge"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func parseJob(t *testing.T, data []byte) api.Job {
	t.Helper()
	var j api.Job
	require.NoError(t, json.Unmarshal(data, &j), string(data))
	return j
}

// parseProgress parses the NDJSON progress lines of a followed job.
func parseProgress(t *testing.T, data []byte) []api.Job {
	t.Helper()
	var jobs []api.Job
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		jobs = append(jobs, parseJob(t, []byte(line)))
	}
	require.NoError(t, sc.Err())
	return jobs
}

func TestSimulate(t *testing.T) {
	config := intmf.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfgPath := intmf.WritePipelineConfig(t, intmf.FastPipelineConfig)

	tests := map[string]struct {
		args      []string
		expStages int
	}{
		"A text simulation should complete every stage.": {
			args:      []string{"simulate", "--prompt", "a red chair", "--pipeline-config", cfgPath, "--seed", "42", "--format", "json"},
			expStages: 8,
		},
		"Custom stages should be used by the simulation.": {
			args: []string{"simulate", "--pipeline-config", intmf.WritePipelineConfig(t, intmf.FastPipelineConfig+`
stages:
  - id: mesh
    name: Mesh
  - id: export
    name: Export
`), "--format", "json"},
			expStages: 2,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stdout, stderr, err := intmf.RunLocalCmd(ctx, config, test.args...)
			require.NoError(t, err, string(stderr))

			states := parseProgress(t, stdout)
			require.NotEmpty(t, states)

			// Progress never goes backwards.
			for i := 1; i < len(states); i++ {
				assert.GreaterOrEqual(t, states[i].Progress, states[i-1].Progress)
			}

			last := states[len(states)-1]
			assert.Equal(t, "completed", last.Status)
			assert.Equal(t, 100.0, last.Progress)
			assert.Len(t, last.Stages, test.expStages)
			require.NotNil(t, last.Artifact)
		})
	}
}

func TestSimulateInvalidInput(t *testing.T) {
	config := intmf.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, _, err := intmf.RunLocalCmd(ctx, config, "simulate", "--prompt", "")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	config := intmf.NewConfig(t)
	srv := intmf.StartServer(t, config, intmf.ServerOpts{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	imgPath := filepath.Join(t.TempDir(), "chair.png")
	require.NoError(t, os.WriteFile(imgPath, pngHeader, 0o644))

	tests := map[string]struct {
		args       []string
		expErr     bool
		expQuality string
	}{
		"A text generation should return the model.": {
			args:       []string{"generate", "--type", "text", "--prompt", "a red chair", "--format", "json"},
			expQuality: "medium",
		},
		"An image generation should upload the image.": {
			args:       []string{"generate", "--type", "single_image", "--image", imgPath, "--quality", "high", "--format", "json"},
			expQuality: "high",
		},
		"A text generation without prompt should fail.": {
			args:   []string{"generate", "--type", "text", "--format", "json"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stdout, stderr, err := intmf.RunCmd(ctx, config, srv.URL, test.args...)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err, string(stderr))

			var got api.GenerateResponse
			require.NoError(t, json.Unmarshal(stdout, &got))
			assert.Equal(t, test.expQuality, got.Quality)
			assert.NotEmpty(t, got.Artifact)
			assert.Greater(t, got.Metrics.Verts, 0)
			assert.Greater(t, got.Metrics.Faces, got.Metrics.Verts)
		})
	}
}

func TestCapabilities(t *testing.T) {
	config := intmf.NewConfig(t)
	srv := intmf.StartServer(t, config, intmf.ServerOpts{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stdout, stderr, err := intmf.RunCmd(ctx, config, srv.URL, "capabilities", "--format", "json")
	require.NoError(t, err, string(stderr))

	var got api.CapabilitiesResponse
	require.NoError(t, json.Unmarshal(stdout, &got))
	assert.Equal(t, []string{"text", "single_image", "multi_image"}, got.SupportedTypes)
	assert.Equal(t, 500, got.MaxPromptLength)
}

func TestJobLifecycle(t *testing.T) {
	config := intmf.NewConfig(t)
	srv := intmf.StartServer(t, config, intmf.ServerOpts{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Run and follow.
	stdout, stderr, err := intmf.RunCmd(ctx, config, srv.URL, "job", "run", "--prompt", "a red chair", "--idempotency-key", "it-1", "--format", "json")
	require.NoError(t, err, string(stderr))
	states := parseProgress(t, stdout)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.Equal(t, "completed", last.Status)
	jobID := last.ID

	// Status.
	stdout, stderr, err = intmf.RunCmd(ctx, config, srv.URL, "job", "status", jobID, "--format", "json")
	require.NoError(t, err, string(stderr))
	got := parseJob(t, stdout)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "it-1", got.IdempotencyKey)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, "GLB", got.Artifact.Format)

	// List.
	stdout, stderr, err = intmf.RunCmd(ctx, config, srv.URL, "job", "list", "--status", "completed", "--format", "json")
	require.NoError(t, err, string(stderr))
	var jobs []api.Job
	require.NoError(t, json.Unmarshal(stdout, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].ID)

	// Trace.
	stdout, stderr, err = intmf.RunCmd(ctx, config, srv.URL, "job", "trace", jobID, "--format", "json")
	require.NoError(t, err, string(stderr))
	var tr api.Trace
	require.NoError(t, json.Unmarshal(stdout, &tr))
	assert.NotEmpty(t, tr.Logs)

	// Finished jobs can't be cancelled.
	_, _, err = intmf.RunCmd(ctx, config, srv.URL, "job", "cancel", jobID)
	assert.Error(t, err)

	// Missing jobs.
	_, _, err = intmf.RunCmd(ctx, config, srv.URL, "job", "status", "missing")
	assert.Error(t, err)
}

func TestJobCancel(t *testing.T) {
	config := intmf.NewConfig(t)
	srv := intmf.StartServer(t, config, intmf.ServerOpts{PipelineConfig: intmf.SlowPipelineConfig})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stdout, stderr, err := intmf.RunCmd(ctx, config, srv.URL, "job", "run", "--detach", "--prompt", "a red chair", "--format", "json")
	require.NoError(t, err, string(stderr))
	job := parseJob(t, stdout)
	assert.Contains(t, []string{"pending", "running"}, job.Status)

	stdout, stderr, err = intmf.RunCmd(ctx, config, srv.URL, "job", "cancel", job.ID)
	require.NoError(t, err, string(stderr))
	assert.Contains(t, string(stdout), "cancelled")

	stdout, stderr, err = intmf.RunCmd(ctx, config, srv.URL, "job", "status", job.ID, "--format", "json")
	require.NoError(t, err, string(stderr))
	got := parseJob(t, stdout)
	assert.Equal(t, "cancelled", got.Status)
}

func TestInterruptedJobsRecovery(t *testing.T) {
	config := intmf.NewConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "meshforge.db")
	opts := intmf.ServerOpts{
		PipelineConfig: intmf.SlowPipelineConfig,
		DBPath:         dbPath,
		Args:           []string{"--storage", "sqlite"},
	}

	srv := intmf.StartServer(t, config, opts)
	stdout, stderr, err := intmf.RunCmd(ctx, config, srv.URL, "job", "run", "--detach", "--prompt", "a red chair", "--format", "json")
	require.NoError(t, err, string(stderr))
	job := parseJob(t, stdout)
	srv.Stop()

	// The shutdown marks the running jobs as failed and they survive the restart.
	srv = intmf.StartServer(t, config, opts)
	stdout, stderr, err = intmf.RunCmd(ctx, config, srv.URL, "job", "status", job.ID, "--format", "json")
	require.NoError(t, err, string(stderr))
	got := parseJob(t, stdout)
	assert.Equal(t, "failed", got.Status)
	assert.NotEmpty(t, got.Error)
}

func TestRedisStorage(t *testing.T) {
	config := intmf.NewConfig(t)
	if config.RedisAddr == "" {
		t.Skip("Skipping redis storage test: MESHFORGE_INTEGRATION_REDIS_ADDR is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := intmf.StartServer(t, config, intmf.ServerOpts{
		Args: []string{"--storage", "redis", "--redis-addr", config.RedisAddr, "--redis-prefix", "meshforge-it-" + time.Now().Format("150405.000") + ":"},
	})

	stdout, stderr, err := intmf.RunCmd(ctx, config, srv.URL, "job", "run", "--prompt", "a red chair", "--format", "json")
	require.NoError(t, err, string(stderr))
	states := parseProgress(t, stdout)
	require.NotEmpty(t, states)
	jobID := states[len(states)-1].ID

	stdout, stderr, err = intmf.RunCmd(ctx, config, srv.URL, "job", "status", jobID, "--format", "json")
	require.NoError(t, err, string(stderr))
	assert.Equal(t, "completed", parseJob(t, stdout).Status)
}

func TestMetrics(t *testing.T) {
	config := intmf.NewConfig(t)
	srv := intmf.StartServer(t, config, intmf.ServerOpts{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, stderr, err := intmf.RunCmd(ctx, config, srv.URL, "generate", "--prompt", "a red chair")
	require.NoError(t, err, string(stderr))

	resp, err := http.Get(srv.MetricsURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "meshforge_")
	assert.Contains(t, string(body), "go_goroutines")
}
