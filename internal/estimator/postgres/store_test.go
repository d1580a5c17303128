//go:build integration
// +build integration

package postgres

// These tests require a PostgreSQL database with the schema from
// migrations/ applied. Run with: go test -tags=integration ./...

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimajoyti/ape/internal/estimator/domain"
	"github.com/dimajoyti/ape/pkg/logger"
)

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db, err := sql.Open("postgres", "host=localhost port=5432 user=postgres password=postgres dbname=ape_test sslmode=disable")
	require.NoError(t, err)
	defer db.Close()

	store := New(db, logger.New("ape-test"))
	ctx := context.Background()

	taskName := "integration-ingest-job"
	_, _ = db.ExecContext(ctx, `DELETE FROM execution_history WHERE task_name = $1`, taskName)
	_, _ = db.ExecContext(ctx, `DELETE FROM task_models WHERE task_name = $1`, taskName)

	// InitializeTask
	require.NoError(t, store.InitializeTask(ctx, taskName, 0, 1000, 1.0, 6.0, 0.7, 0.8))

	err = store.InitializeTask(ctx, taskName, 0, 1000, 1.0, 6.0, 0.7, 0.8)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// GetTaskModel
	model, err := store.GetTaskModel(ctx, taskName)
	require.NoError(t, err)
	assert.Equal(t, int64(0), model.SampleCount)

	// UpdateBaseline
	require.NoError(t, store.UpdateBaseline(ctx, taskName, 42.0))
	model, err = store.GetTaskModel(ctx, taskName)
	require.NoError(t, err)
	assert.Equal(t, 42.0, model.TBase1)

	// UpdateModel at the correct version commits
	runData := domain.RunData{
		Parallelism: 1, InputScaleFactor: 1.0, ClusterLoad: 0.3,
		TotalDuration: 42.0, Residual: 0, CostMetric: 42.0, PSnapshot: 1.0,
	}
	require.NoError(t, store.UpdateModel(ctx, taskName, 1.0, 1.0, runData, 0))

	model, err = store.GetTaskModel(ctx, taskName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), model.SampleCount)

	// Stale version fails
	err = store.UpdateModel(ctx, taskName, 1.0, 1.0, runData, 0)
	assert.ErrorIs(t, err, domain.ErrStale)

	// GetHistory returns the appended row
	history, err := store.GetHistory(ctx, taskName, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Parallelism)

	// NotFound on a task that was never initialized
	_, err = store.GetTaskModel(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.UpdateModel(ctx, "does-not-exist", 1.0, 1.0, runData, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
