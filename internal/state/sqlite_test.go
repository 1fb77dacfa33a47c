package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.RecordTaskRun(context.Background(), TaskRun{RunID: "r", Task: "t"})
	assert.ErrorContains(t, err, "database not opened")
}

func TestSQLiteStore_Migrate(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	v, err := store.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// a second run finds nothing pending
	require.NoError(t, store.Migrate(ctx))
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	store, err := Open(ctx, path, nil)
	require.NoError(t, err)
	_, err = store.RecordTaskRun(ctx, TaskRun{RunID: "r1", Task: "grid", Total: 2})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	runs, err := store.ListTaskRuns(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "grid", runs[0].Task)
}

func TestSQLiteStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		run  TaskRun
		want TaskRunStatus
	}{
		{name: "passed", run: TaskRun{RunID: "r1", Task: "grid", StartedAt: base, CompletedAt: base.Add(time.Second), Total: 3}, want: StatusPassed},
		{name: "failed", run: TaskRun{RunID: "r1", Task: "demand", StartedAt: base.Add(time.Minute), CompletedAt: base.Add(2 * time.Minute), Total: 4, Failed: 1}, want: StatusFailed},
		{name: "explicit status", run: TaskRun{RunID: "r2", Task: "grid", StartedAt: base.Add(time.Hour), CompletedAt: base.Add(time.Hour), Status: StatusError}, want: StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.RecordTaskRun(ctx, tt.run)
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, tt.want, got.Status)
		})
	}

	all, err := store.ListTaskRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].RunID, "newest first")

	r1, err := store.ListTaskRuns(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, r1, 2)
	assert.Equal(t, "demand", r1[0].Task)
	assert.Equal(t, time.Minute, r1[0].Duration())
	assert.True(t, r1[1].StartedAt.Equal(base))

	limited, err := store.ListTaskRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_RecordValidation(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.RecordTaskRun(context.Background(), TaskRun{Task: "grid"})
	assert.ErrorContains(t, err, "run id")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusPassed, StatusFor(0, nil))
	assert.Equal(t, StatusFailed, StatusFor(2, nil))
	assert.Equal(t, StatusError, StatusFor(0, errors.New("boom")))
}
