package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	statements []string
	failOn     int
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	if r.failOn > 0 && len(r.statements) == r.failOn {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.CommandTag{}, nil
}

func TestFilesAreSorted(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func TestApplyRunsSchema(t *testing.T) {
	db := &recordingExecer{}
	require.NoError(t, Apply(context.Background(), db))
	require.NotEmpty(t, db.statements)

	schema := db.statements[0]
	for _, table := range []string{
		"sync_cursors", "events", "payloads", "privacy_roots",
		"token_transfers", "solver_aggregates", "daily_aggregates", "asset_flows",
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestApplyStopsOnError(t *testing.T) {
	db := &recordingExecer{failOn: 1}
	err := Apply(context.Background(), db)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "001_init.sql"))
	assert.Len(t, db.statements, 1)
}
