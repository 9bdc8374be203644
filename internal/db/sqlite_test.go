package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "logs.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	logger := zaptest.NewLogger(t).Sugar()
	require.NoError(t, MigrateSQLite(sqlDB, logger))
	require.NoError(t, MigrateSQLite(sqlDB, logger))

	var name string
	err = sqlDB.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'outcome_logs'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "outcome_logs", name)
}

func TestDSNRendersAllFields(t *testing.T) {
	dsn := DefaultConfig().DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=sheetpipe")
	assert.Contains(t, dsn, "sslmode=disable")
}
