package migrations_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/storage/sqlite/migrations"
)

func TestMigratorUpDown(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(err)
	defer db.Close()

	m, err := migrations.NewMigrator(db, log.Noop)
	require.NoError(err)

	v, err := m.Version(ctx)
	require.NoError(err)
	assert.Equal(uint(0), v)

	require.NoError(m.Up(ctx))
	require.NoError(m.Up(ctx))

	v, err = m.Version(ctx)
	require.NoError(err)
	assert.Equal(uint(1), v)

	_, err = db.ExecContext(ctx, `SELECT id FROM jobs`)
	assert.NoError(err)

	require.NoError(m.Down(ctx))
	_, err = db.ExecContext(ctx, `SELECT id FROM jobs`)
	assert.Error(err)
}

func TestNewMigratorRequiresDB(t *testing.T) {
	_, err := migrations.NewMigrator(nil, nil)
	assert.Error(t, err)
}
