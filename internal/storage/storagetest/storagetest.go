// Package storagetest has the shared behavior tests every job repository
// implementation must pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/storage"
)

// JobFixture returns a valid job created at the given time.
func JobFixture(id string, createdAt time.Time) model.Job {
	return model.Job{
		ID: id,
		Request: model.GenerationRequest{
			Type:    model.GenerationTypeMultiImage,
			Quality: model.QualityHigh,
			Images: []model.ImageInput{
				{Field: "image_0", Filename: "front.png", ContentType: "image/png", Size: 2048},
				{Field: "image_1", Filename: "back.jpg", ContentType: "image/jpeg", Size: 4096},
			},
		},
		IdempotencyKey: "key-" + id,
		Status:         model.JobStatusPending,
		Stages:         model.NewStages(model.DefaultStageDefinitions()),
		CreatedAt:      createdAt.UTC().Truncate(time.Millisecond),
		UpdatedAt:      createdAt.UTC().Truncate(time.Millisecond),
	}
}

// TestJobRepository runs the shared job repository behavior tests. newRepo must
// return a new empty repository on every call.
func TestJobRepository(t *testing.T, newRepo func(t *testing.T) storage.JobRepository) {
	t0 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("Creating and getting a job should keep all its data.", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		j := JobFixture("job-1", t0)
		require.NoError(t, repo.CreateJob(ctx, j))

		got, err := repo.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, j, *got)
	})

	t.Run("Creating a duplicated job should fail.", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		require.NoError(t, repo.CreateJob(ctx, JobFixture("job-1", t0)))
		err := repo.CreateJob(ctx, JobFixture("job-1", t0))
		assert.ErrorIs(t, err, model.ErrAlreadyExists)
	})

	t.Run("Getting a missing job should fail.", func(t *testing.T) {
		_, err := newRepo(t).GetJob(context.Background(), "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Updating a missing job should fail.", func(t *testing.T) {
		err := newRepo(t).UpdateJob(context.Background(), JobFixture("missing", t0))
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Updating a job should store the new state.", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		j := JobFixture("job-1", t0)
		require.NoError(t, repo.CreateJob(ctx, j))

		finished := t0.Add(30 * time.Second)
		j.Status = model.JobStatusCompleted
		j.CurrentStage = len(j.Stages)
		for i := range j.Stages {
			j.Stages[i].Status = model.StageStatusCompleted
			j.Stages[i].Progress = 100
			j.Stages[i].Duration = 3 * time.Second
			j.Stages[i].Details = j.Stages[i].Name + " completed successfully"
		}
		j.Artifact = &model.Artifact{
			ModelURL:  model.SampleModelURLMulti,
			Vertices:  27000,
			Triangles: 58200,
			FileSize:  "3.3 MB",
			Format:    "GLB",
		}
		j.UpdatedAt = finished
		j.FinishedAt = &finished
		require.NoError(t, repo.UpdateJob(ctx, j))

		got, err := repo.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, j, *got)
	})

	t.Run("Returned jobs should not share state with the repository.", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.CreateJob(ctx, JobFixture("job-1", t0)))

		got, err := repo.GetJob(ctx, "job-1")
		require.NoError(t, err)
		got.Stages[0].Status = model.StageStatusRunning

		got2, err := repo.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.StageStatusPending, got2.Stages[0].Status)
	})

	t.Run("Listing jobs should return them newest first, filtered and limited.", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		for i := 0; i < 5; i++ {
			j := JobFixture(fmt.Sprintf("job-%d", i), t0.Add(time.Duration(i)*time.Minute))
			if i%2 == 0 {
				j.Status = model.JobStatusCompleted
			}
			require.NoError(t, repo.CreateJob(ctx, j))
		}

		all, err := repo.ListJobs(ctx, storage.ListJobsOpts{})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-4", "job-3", "job-2", "job-1", "job-0"}, jobIDs(all))

		completed := model.JobStatusCompleted
		filtered, err := repo.ListJobs(ctx, storage.ListJobsOpts{Status: &completed})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-4", "job-2", "job-0"}, jobIDs(filtered))

		limited, err := repo.ListJobs(ctx, storage.ListJobsOpts{Status: &completed, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-4", "job-2"}, jobIDs(limited))

		failed := model.JobStatusFailed
		none, err := repo.ListJobs(ctx, storage.ListJobsOpts{Status: &failed})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func jobIDs(jobs []model.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}
