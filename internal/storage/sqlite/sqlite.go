package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/storage"
	"github.com/slok/meshforge/internal/storage/codec"
	"github.com/slok/meshforge/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.JobRepository.
// Stages, request and artifact are stored as JSON columns.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository, applying the pending migrations.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

const selectJobColumns = `
	SELECT
		id, status, idempotency_key,
		request, stages, current_stage, artifact,
		error, created_at, updated_at, finished_at
	FROM jobs`

// CreateJob stores a new job.
func (r *Repository) CreateJob(ctx context.Context, j model.Job) error {
	if j.ID == "" {
		return fmt.Errorf("job id is required: %w", model.ErrNotValid)
	}

	row, err := rowFromModel(j)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			id, status, generation_type, idempotency_key,
			request, stages, current_stage, artifact,
			error, created_at, updated_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		j.ID,
		j.Status,
		j.Request.Type,
		j.IdempotencyKey,
		row.request,
		row.stages,
		j.CurrentStage,
		row.artifact,
		j.Error,
		j.CreatedAt.UnixMilli(),
		j.UpdatedAt.UnixMilli(),
		row.finishedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: jobs.") {
			return fmt.Errorf("job with id %s: %w", j.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert job: %w", err)
	}

	r.logger.Debugf("Created job in repository: %s", j.ID)
	return nil
}

// GetJob retrieves a job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, selectJobColumns+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query job: %w", err)
	}

	return &j, nil
}

// ListJobs returns the jobs newest first.
func (r *Repository) ListJobs(ctx context.Context, opts storage.ListJobsOpts) ([]model.Job, error) {
	query := selectJobColumns
	var args []any
	if opts.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *opts.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return jobs, nil
}

// UpdateJob updates an existing job. The generation request is immutable and not updated.
func (r *Repository) UpdateJob(ctx context.Context, j model.Job) error {
	row, err := rowFromModel(j)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET
			status = ?,
			stages = ?,
			current_stage = ?,
			artifact = ?,
			error = ?,
			updated_at = ?,
			finished_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		j.Status,
		row.stages,
		j.CurrentStage,
		row.artifact,
		j.Error,
		j.UpdatedAt.UnixMilli(),
		row.finishedAt,
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s: %w", j.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated job in repository: %s", j.ID)
	return nil
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type jobRow struct {
	request    string
	stages     string
	artifact   sql.NullString
	finishedAt sql.NullInt64
}

func rowFromModel(j model.Job) (jobRow, error) {
	var row jobRow

	req, err := json.Marshal(codec.RequestFromModel(j.Request))
	if err != nil {
		return row, fmt.Errorf("could not marshal request: %w", err)
	}
	row.request = string(req)

	stages, err := json.Marshal(codec.StagesFromModel(j.Stages))
	if err != nil {
		return row, fmt.Errorf("could not marshal stages: %w", err)
	}
	row.stages = string(stages)

	if j.Artifact != nil {
		a, err := json.Marshal(codec.ArtifactFromModel(*j.Artifact))
		if err != nil {
			return row, fmt.Errorf("could not marshal artifact: %w", err)
		}
		row.artifact = sql.NullString{String: string(a), Valid: true}
	}

	if j.FinishedAt != nil {
		row.finishedAt = sql.NullInt64{Int64: j.FinishedAt.UnixMilli(), Valid: true}
	}

	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (model.Job, error) {
	var (
		j                    model.Job
		request, stages      string
		artifact             sql.NullString
		createdAt, updatedAt int64
		finishedAt           sql.NullInt64
	)

	err := s.Scan(
		&j.ID,
		&j.Status,
		&j.IdempotencyKey,
		&request,
		&stages,
		&j.CurrentStage,
		&artifact,
		&j.Error,
		&createdAt,
		&updatedAt,
		&finishedAt,
	)
	if err != nil {
		return model.Job{}, err
	}

	var req codec.RequestV1
	if err := json.Unmarshal([]byte(request), &req); err != nil {
		return model.Job{}, fmt.Errorf("could not unmarshal request: %w", err)
	}
	j.Request = req.ToModel()

	var st []codec.StageV1
	if err := json.Unmarshal([]byte(stages), &st); err != nil {
		return model.Job{}, fmt.Errorf("could not unmarshal stages: %w", err)
	}
	j.Stages = codec.StagesToModel(st)

	if artifact.Valid {
		var a codec.ArtifactV1
		if err := json.Unmarshal([]byte(artifact.String), &a); err != nil {
			return model.Job{}, fmt.Errorf("could not unmarshal artifact: %w", err)
		}
		art := a.ToModel()
		j.Artifact = &art
	}

	j.CreatedAt = timeFromUnixMilli(createdAt)
	j.UpdatedAt = timeFromUnixMilli(updatedAt)
	if finishedAt.Valid {
		t := timeFromUnixMilli(finishedAt.Int64)
		j.FinishedAt = &t
	}

	return j, nil
}

func timeFromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
