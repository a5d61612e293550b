package api_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/model"
)

func newTestClient(t *testing.T, tapi testAPI) *api.Client {
	t.Helper()
	c, err := api.NewClient(api.ClientConfig{ServerURL: tapi.srv.URL})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	tests := map[string]struct {
		url    string
		expErr bool
	}{
		"Missing URL should use the default server.": {},
		"HTTP URL should be valid.": {
			url: "http://localhost:3000",
		},
		"A URL without scheme should fail.": {
			url:    "localhost:3000",
			expErr: true,
		},
		"A non HTTP scheme should fail.": {
			url:    "ftp://localhost:3000",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := api.NewClient(api.ClientConfig{ServerURL: test.url})
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientGenerate(t *testing.T) {
	tests := map[string]struct {
		req        api.UploadRequest
		expErr     error
		expDetails []string
		expVerts   int
	}{
		"A text generation should return the generated model.": {
			req:      api.UploadRequest{Type: model.GenerationTypeText, Prompt: "0123456789"},
			expVerts: 11500,
		},
		"An image generation should upload the images.": {
			req: api.UploadRequest{
				Type:   model.GenerationTypeSingleImage,
				Images: []api.Upload{{Filename: "a.png", ContentType: "image/png", Content: bytes.NewReader(pngHeader)}},
			},
		},
		"An image without content type should be sniffed.": {
			req: api.UploadRequest{
				Type:   model.GenerationTypeSingleImage,
				Images: []api.Upload{{Filename: "a.bin", Content: bytes.NewReader(pngHeader)}},
			},
		},
		"An invalid request should return the validation details.": {
			req:        api.UploadRequest{Type: model.GenerationTypeText},
			expErr:     model.ErrNotValid,
			expDetails: []string{"prompt is required for text generation"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			c := newTestClient(t, newTestAPI(t, apiOpts{}))

			got, err := c.Generate(context.Background(), test.req)
			if test.expErr != nil {
				require.Error(err)
				assert.ErrorIs(err, test.expErr)
				var rerr *api.ResponseError
				require.True(errors.As(err, &rerr))
				assert.Equal(http.StatusBadRequest, rerr.StatusCode)
				assert.Equal("Invalid input parameters", rerr.Message)
				assert.Equal(test.expDetails, rerr.Details)
				return
			}

			require.NoError(err)
			assert.Equal(model.QualityMedium, got.Quality)
			assert.Positive(got.ProcessingTime)
			assert.NotEmpty(got.Artifact)
			if test.expVerts != 0 {
				assert.Equal(test.expVerts, got.Metrics.Vertices)
			}
		})
	}
}

func TestClientCapabilities(t *testing.T) {
	c := newTestClient(t, newTestAPI(t, apiOpts{}))

	got, err := c.Capabilities(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []model.GenerationType{"text", "single_image", "multi_image"}, got.Types)
	assert.Equal(t, []model.Quality{"low", "medium", "high"}, got.Quality)
	assert.Equal(t, 8, got.Limits.MaxImages)
	assert.Equal(t, 500, got.Limits.MaxPromptLength)
}

func TestClientJobs(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tapi := newTestAPI(t, apiOpts{})
	c := newTestClient(t, tapi)

	j, err := c.CreateJob(ctx, api.UploadRequest{Type: model.GenerationTypeText, Prompt: "a red chair", IdempotencyKey: "k1"})
	require.NoError(err)
	assert.Equal(model.JobStatusPending, j.Status)
	assert.Equal("k1", j.IdempotencyKey)
	assert.Len(j.Stages, 2)

	got, err := c.GetJob(ctx, j.ID)
	require.NoError(err)
	assert.Equal(j.ID, got.ID)
	assert.Equal("a red chair", got.Request.Prompt)

	jobs, err := c.ListJobs(ctx, api.ListJobsRequest{Status: model.JobStatusPending, Limit: 5})
	require.NoError(err)
	require.Len(jobs, 1)
	assert.Equal(j.ID, jobs[0].ID)

	tr, err := c.GetJobTrace(ctx, j.ID)
	require.NoError(err)
	assert.NotEmpty(tr.Logs)

	cancelled, err := c.CancelJob(ctx, j.ID)
	require.NoError(err)
	assert.Equal(model.JobStatusCancelled, cancelled.Status)

	_, err = c.CancelJob(ctx, j.ID)
	assert.ErrorIs(err, model.ErrConflict)

	_, err = c.GetJob(ctx, "missing")
	assert.ErrorIs(err, model.ErrNotFound)

	_, err = c.ListJobs(ctx, api.ListJobsRequest{Status: "unknown"})
	assert.ErrorIs(err, model.ErrNotValid)
}

func TestClientWatchJob(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	tapi := newTestAPI(t, apiOpts{})
	c := newTestClient(t, tapi)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	j, err := c.CreateJob(ctx, api.UploadRequest{Type: model.GenerationTypeText, Prompt: "a red chair"})
	require.NoError(err)

	var states []model.Job
	err = c.WatchJob(ctx, j.ID, func(j model.Job) error {
		states = append(states, j)
		if len(states) == 1 {
			go tapi.ticks(t, 4)
		}
		return nil
	})
	require.NoError(err)

	require.NotEmpty(states)
	last := states[len(states)-1]
	assert.Equal(model.JobStatusCompleted, last.Status)
	require.NotNil(last.Artifact)
	assert.Equal(model.SampleModelURLText, last.Artifact.ModelURL)
	assert.Equal(time.Second, last.Stages[0].Duration)
}

func TestClientWatchJobStopsOnCallbackError(t *testing.T) {
	tapi := newTestAPI(t, apiOpts{})
	c := newTestClient(t, tapi)
	ctx := context.Background()

	j, err := c.CreateJob(ctx, api.UploadRequest{Type: model.GenerationTypeText, Prompt: "a red chair"})
	require.NoError(t, err)

	errStop := errors.New("stop")
	err = c.WatchJob(ctx, j.ID, func(model.Job) error { return errStop })
	assert.ErrorIs(t, err, errStop)
}

func TestClientWatchMissingJob(t *testing.T) {
	c := newTestClient(t, newTestAPI(t, apiOpts{}))

	err := c.WatchJob(context.Background(), "missing", func(model.Job) error { return nil })
	assert.ErrorIs(t, err, model.ErrNotFound)
}
