package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/meshforge/internal/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

const (
	sourceName   = "iofs"
	databaseName = "sqlite3"
	sqlDir       = "sql"
)

// Migrator applies the embedded job schema migrations on a SQLite database.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator creates a new migrator instance.
func NewMigrator(db *sql.DB, logger log.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{
		db:     db,
		logger: logger.WithValues(log.Kv{"svc": "storage.SQLiteMigrator"}),
	}, nil
}

// Version returns the current schema version, 0 when no migration was applied.
func (m *Migrator) Version(ctx context.Context) (version uint, err error) {
	err = m.with(ctx, func(mg *migrate.Migrate) error {
		v, dirty, err := mg.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			return nil
		case err != nil:
			return fmt.Errorf("could not get schema version: %w", err)
		case dirty:
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version = v
		return nil
	})
	return version, err
}

// Up applies the pending migrations, a schema already up to date is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := ignoreNoChange(mg.Up()); err != nil {
			return fmt.Errorf("could not apply migrations: %w", err)
		}
		m.logger.Debugf("Job schema migrated")
		return nil
	})
}

// Down reverts every migration, dropping the job schema.
func (m *Migrator) Down(ctx context.Context) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := ignoreNoChange(mg.Down()); err != nil {
			return fmt.Errorf("could not revert migrations: %w", err)
		}
		m.logger.Debugf("Job schema reverted")
		return nil
	})
}

// with runs fn with a migrate instance over the embedded sources. The instance
// source is released afterwards, the database is owned by the caller and kept open.
func (m *Migrator) with(ctx context.Context, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, sqlDir)
	if err != nil {
		return fmt.Errorf("could not load embedded migrations: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Warningf("Could not close migration source: %s", err)
		}
	}()

	mg, err := migrate.NewWithInstance(sourceName, src, databaseName, driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	return fn(mg)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
