package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/storage"
	"github.com/slok/meshforge/internal/storage/codec"
)

// DefaultKeyPrefix is the prefix of all the keys the repository uses.
const DefaultKeyPrefix = "meshforge:"

// maxUpdateRetries is the number of optimistic transaction retries on concurrent updates.
const maxUpdateRetries = 5

// RepositoryConfig is the configuration for the Redis repository.
type RepositoryConfig struct {
	Client    redis.UniversalClient
	KeyPrefix string
	Logger    log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("redis client is required")
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Redis"})
	return nil
}

// Repository is a Redis implementation of storage.JobRepository.
//
// Jobs are stored as JSON documents, indexed by creation time in a sorted set
// for all the jobs and one per status.
type Repository struct {
	client redis.UniversalClient
	prefix string
	logger log.Logger
}

// NewRepository creates a new Redis repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		client: cfg.Client,
		prefix: cfg.KeyPrefix,
		logger: cfg.Logger,
	}, nil
}

func (r *Repository) jobKey(id string) string { return r.prefix + "job:" + id }
func (r *Repository) allJobsKey() string      { return r.prefix + "jobs" }
func (r *Repository) statusKey(s model.JobStatus) string {
	return r.prefix + "jobs:status:" + string(s)
}

// CreateJob stores a new job.
func (r *Repository) CreateJob(ctx context.Context, j model.Job) error {
	if j.ID == "" {
		return fmt.Errorf("job id is required: %w", model.ErrNotValid)
	}

	data, err := codec.EncodeJob(j)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.jobKey(j.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("could not store job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job with id %s: %w", j.ID, model.ErrAlreadyExists)
	}

	score := float64(j.CreatedAt.UnixMilli())
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.allJobsKey(), redis.Z{Score: score, Member: j.ID})
		pipe.ZAdd(ctx, r.statusKey(j.Status), redis.Z{Score: score, Member: j.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not index job: %w", err)
	}

	r.logger.Debugf("Created job in repository: %s", j.ID)
	return nil
}

// GetJob retrieves a job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return r.getJob(ctx, r.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Repository) getJob(ctx context.Context, c getter, id string) (*model.Job, error) {
	data, err := c.Get(ctx, r.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get job: %w", err)
	}

	return codec.DecodeJob(data)
}

// ListJobs returns the jobs newest first.
func (r *Repository) ListJobs(ctx context.Context, opts storage.ListJobsOpts) ([]model.Job, error) {
	index := r.allJobsKey()
	if opts.Status != nil {
		index = r.statusKey(*opts.Status)
	}

	stop := int64(-1)
	if opts.Limit > 0 {
		stop = int64(opts.Limit) - 1
	}

	ids, err := r.client.ZRevRange(ctx, index, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("could not list job index: %w", err)
	}

	jobs := []model.Job{}
	if len(ids) == 0 {
		return jobs, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.jobKey(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("could not get jobs: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Indexed but missing, the index will be fixed on the next write of the job.
			r.logger.Warningf("Job %s is indexed but missing", ids[i])
			continue
		}

		j, err := codec.DecodeJob([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("could not decode job %s: %w", ids[i], err)
		}
		jobs = append(jobs, *j)
	}

	return jobs, nil
}

// UpdateJob updates an existing job. Concurrent updates of the same job are
// serialized with an optimistic transaction.
func (r *Repository) UpdateJob(ctx context.Context, j model.Job) error {
	data, err := codec.EncodeJob(j)
	if err != nil {
		return err
	}

	key := r.jobKey(j.ID)
	update := func(tx *redis.Tx) error {
		old, err := r.getJob(ctx, tx, j.ID)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if old.Status != j.Status {
				score := float64(old.CreatedAt.UnixMilli())
				pipe.ZRem(ctx, r.statusKey(old.Status), j.ID)
				pipe.ZAdd(ctx, r.statusKey(j.Status), redis.Z{Score: score, Member: j.ID})
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err = r.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return err
			}
			return fmt.Errorf("could not update job: %w", err)
		}

		r.logger.Debugf("Updated job in repository: %s", j.ID)
		return nil
	}

	return fmt.Errorf("could not update job %s after %d retries: %w", j.ID, maxUpdateRetries, model.ErrConflict)
}

// Ping checks the Redis server is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
