package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimajoyti/ape/internal/estimator/domain"
	"github.com/dimajoyti/ape/internal/estimator/estimator"
	"github.com/dimajoyti/ape/pkg/logger"
)

type fakeStore struct {
	model *domain.TaskModel
}

func (f *fakeStore) InitializeTask(ctx context.Context, taskName string, tBase, baseInputQuantity, p, cStartup, alphaP, alphaK float64) error {
	f.model = &domain.TaskModel{
		TaskName: taskName, TBase1: tBase, BaseInputQuantity: baseInputQuantity,
		PObs: p, KExponent: 1.0, CStartup: cStartup, AlphaP: alphaP, AlphaK: alphaK,
		SampleCount: 0, LastUpdated: time.Unix(0, 0),
	}
	return nil
}

func (f *fakeStore) GetTaskModel(ctx context.Context, taskName string) (*domain.TaskModel, error) {
	if f.model == nil {
		return nil, domain.ErrNotFound
	}
	cp := *f.model
	return &cp, nil
}

func (f *fakeStore) UpdateBaseline(ctx context.Context, taskName string, newTBase float64) error {
	f.model.TBase1 = newTBase
	return nil
}

func (f *fakeStore) GetHistory(ctx context.Context, taskName string, limit int) ([]domain.HistoryRow, error) {
	return nil, nil
}

func (f *fakeStore) UpdateModel(ctx context.Context, taskName string, newP, newK float64, runData domain.RunData, expectedVersion int64) error {
	if f.model.SampleCount != expectedVersion {
		return domain.ErrStale
	}
	f.model.PObs = newP
	f.model.KExponent = newK
	f.model.SampleCount++
	return nil
}

func newTestOptimizer() *Optimizer {
	store := &fakeStore{}
	est := estimator.New(store, logger.New("ape-test"), nil)
	return New(est, logger.New("ape-test"))
}

func TestGetTaskConfigs_ColdStartReturnsSingleChunk(t *testing.T) {
	opt := newTestOptimizer()

	configs, prediction, err := opt.GetTaskConfigs(context.Background(), "ingest", 1000, 0.5, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, prediction.S)
	require.Len(t, configs, 1)
	assert.Equal(t, 0, configs[0].ChunkID)
	assert.Equal(t, 1, configs[0].TotalChunks)
	assert.Equal(t, "ingest", configs[0].TaskName)
}

func TestGetTaskConfigs_ChunkCountMatchesPredictedS(t *testing.T) {
	opt := newTestOptimizer()

	_, _, err := opt.GetTaskConfigs(context.Background(), "ingest", 1000, 0.5, nil)
	require.NoError(t, err)

	require.NoError(t, opt.ReportSuccess(context.Background(), "ingest", 1, 1.0, 0.5, 200, 0, 0, "run-1"))

	configs, prediction, err := opt.GetTaskConfigs(context.Background(), "ingest", 2000, 0.5, nil)
	require.NoError(t, err)
	assert.Len(t, configs, prediction.S)
	for i, c := range configs {
		assert.Equal(t, i, c.ChunkID)
		assert.Equal(t, prediction.S, c.TotalChunks)
	}
}

func TestReportSuccess_UsesProbeWhenWired(t *testing.T) {
	opt := newTestOptimizer()
	configs, _, err := opt.GetTaskConfigs(context.Background(), "ingest", 1000, 0.5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, configs[0].RunID)

	var seenRunID string
	opt.Probe = probeFunc(func(ctx context.Context, taskName string, s int, runID string) (float64, bool) {
		seenRunID = runID
		return 321.0, true
	})

	require.NoError(t, opt.ReportSuccess(context.Background(), "ingest", 1, 1.0, 0.5, 999, 0, 0, configs[0].RunID))
	assert.Equal(t, configs[0].RunID, seenRunID)
}

type probeFunc func(ctx context.Context, taskName string, s int, runID string) (float64, bool)

func (f probeFunc) Observe(ctx context.Context, taskName string, s int, runID string) (float64, bool) {
	return f(ctx, taskName, s, runID)
}
