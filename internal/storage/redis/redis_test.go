package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/storage"
	"github.com/slok/meshforge/internal/storage/redis"
	"github.com/slok/meshforge/internal/storage/storagetest"
)

func setupTestRedis(t *testing.T, prefix string) (*miniredis.Miniredis, *redis.Repository) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := redis.NewRepository(redis.RepositoryConfig{
		Client:    client,
		KeyPrefix: prefix,
		Logger:    log.Noop,
	})
	require.NoError(t, err)

	return mr, repo
}

func TestRepository(t *testing.T) {
	storagetest.TestJobRepository(t, func(t *testing.T) storage.JobRepository {
		_, repo := setupTestRedis(t, "")
		return repo
	})
}

func TestNewRepositoryRequiresClient(t *testing.T) {
	_, err := redis.NewRepository(redis.RepositoryConfig{})
	assert.Error(t, err)
}

func TestRepositoryKeys(t *testing.T) {
	ctx := context.Background()
	mr, repo := setupTestRedis(t, "test:")

	j := storagetest.JobFixture("job-1", time.Now())
	require.NoError(t, repo.CreateJob(ctx, j))

	assert.True(t, mr.Exists("test:job:job-1"))
	assert.Equal(t, []string{"job-1"}, mustZMembers(t, mr, "test:jobs:status:pending"))

	// A status change moves the job between the status indexes.
	j.Status = model.JobStatusRunning
	require.NoError(t, repo.UpdateJob(ctx, j))

	assert.Empty(t, mustZMembers(t, mr, "test:jobs:status:pending"))
	assert.Equal(t, []string{"job-1"}, mustZMembers(t, mr, "test:jobs:status:running"))
	assert.Equal(t, []string{"job-1"}, mustZMembers(t, mr, "test:jobs"))

	require.NoError(t, repo.Ping(ctx))
}

func TestRepositoryListSkipsMissingDocuments(t *testing.T) {
	ctx := context.Background()
	mr, repo := setupTestRedis(t, "")

	now := time.Now()
	require.NoError(t, repo.CreateJob(ctx, storagetest.JobFixture("job-1", now)))
	require.NoError(t, repo.CreateJob(ctx, storagetest.JobFixture("job-2", now.Add(time.Second))))
	mr.Del(redis.DefaultKeyPrefix + "job:job-1")

	jobs, err := repo.ListJobs(ctx, storage.ListJobsOpts{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-2", jobs[0].ID)
}

func TestRepositoryCorruptedDocument(t *testing.T) {
	ctx := context.Background()
	mr, repo := setupTestRedis(t, "")

	require.NoError(t, mr.Set(redis.DefaultKeyPrefix+"job:job-1", "{not json"))

	_, err := repo.GetJob(ctx, "job-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func mustZMembers(t *testing.T, mr *miniredis.Miniredis, key string) []string {
	t.Helper()
	members, err := mr.ZMembers(key)
	if err != nil {
		return nil
	}
	return members
}
