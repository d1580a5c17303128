package estimator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimajoyti/ape/internal/estimator/domain"
	"github.com/dimajoyti/ape/pkg/logger"
)

// fakeStore is an in-memory domain.Store good enough to exercise the
// estimator's state machine and optimistic-concurrency retry path without
// a real database.
type fakeStore struct {
	mu      sync.Mutex
	models  map[string]*domain.TaskModel
	history map[string][]domain.HistoryRow

	// failUpdateModelTimes, when >0, forces the next N UpdateModel calls to
	// return ErrStale regardless of version, to exercise the retry loop.
	failUpdateModelTimes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		models:  make(map[string]*domain.TaskModel),
		history: make(map[string][]domain.HistoryRow),
	}
}

func (s *fakeStore) InitializeTask(_ context.Context, taskName string, tBase, baseInputQuantity, p, cStartup, alphaP, alphaK float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[taskName]; ok {
		return domain.ErrAlreadyExists
	}
	s.models[taskName] = &domain.TaskModel{
		TaskName:          taskName,
		TBase1:            tBase,
		BaseInputQuantity: baseInputQuantity,
		PObs:              p,
		KExponent:         1.0,
		CStartup:          cStartup,
		AlphaP:            alphaP,
		AlphaK:            alphaK,
		SampleCount:       0,
	}
	return nil
}

func (s *fakeStore) GetTaskModel(_ context.Context, taskName string) (*domain.TaskModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[taskName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) UpdateBaseline(_ context.Context, taskName string, newTBase float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[taskName]
	if !ok {
		return domain.ErrNotFound
	}
	m.TBase1 = newTBase
	return nil
}

func (s *fakeStore) GetHistory(_ context.Context, taskName string, limit int) ([]domain.HistoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.history[taskName]
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func (s *fakeStore) UpdateModel(_ context.Context, taskName string, newP, newK float64, runData domain.RunData, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpdateModelTimes > 0 {
		s.failUpdateModelTimes--
		return domain.ErrStale
	}

	m, ok := s.models[taskName]
	if !ok {
		return domain.ErrNotFound
	}
	if m.SampleCount != expectedVersion {
		return domain.ErrStale
	}

	m.PObs = newP
	m.KExponent = newK
	m.SampleCount++

	s.history[taskName] = append(s.history[taskName], domain.HistoryRow{
		TaskName:         taskName,
		Parallelism:      runData.Parallelism,
		InputScaleFactor: runData.InputScaleFactor,
		ClusterLoad:      runData.ClusterLoad,
		TotalDuration:    runData.TotalDuration,
		Residual:         runData.Residual,
		CostMetric:       runData.CostMetric,
		PSnapshot:        runData.PSnapshot,
		TimeAmdahl:       runData.TimeAmdahl,
		PredResidual:     runData.PredResidual,
	})

	return nil
}

func newTestEstimator(store domain.Store) *Estimator {
	return New(store, logger.New("ape-test"), nil)
}

func TestPredict_ColdStartInitializesAndForcesSerial(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)

	pred, err := e.Predict(ctx, "ingest", 1000, 0.3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pred.S)
	assert.Equal(t, 1.0, pred.Gamma)
	assert.Equal(t, 0.0, pred.PredictedAmdahl)
	assert.Equal(t, 0.0, pred.PredictedResidual)

	model, err := store.GetTaskModel(ctx, "ingest")
	require.NoError(t, err)
	assert.Equal(t, int64(0), model.SampleCount)
	assert.Equal(t, 1000.0, model.BaseInputQuantity)
}

func TestPredict_CalibrationForcesS5(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)

	require.NoError(t, store.InitializeTask(ctx, "ingest", 10.0, 1000, domain.DefaultPObs, domain.DefaultCStartup, domain.DefaultAlphaP, domain.DefaultAlphaK))
	store.models["ingest"].SampleCount = 1

	pred, err := e.Predict(ctx, "ingest", 1000, 0.3, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, pred.S)
	assert.Equal(t, 1.0, pred.Gamma)
}

func TestFeedback_BaselineWriteSeedsModel(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)

	_, err := e.Predict(ctx, "ingest", 1000, 0.3, nil)
	require.NoError(t, err)

	err = e.Feedback(ctx, "ingest", 1, 1.0, 0.3, 42.0, 0, 0)
	require.NoError(t, err)

	model, err := store.GetTaskModel(ctx, "ingest")
	require.NoError(t, err)
	assert.Equal(t, int64(1), model.SampleCount)
	assert.Equal(t, 42.0, model.TBase1)
	assert.Equal(t, 1.0, model.PObs)
	assert.Equal(t, 1.0, model.KExponent)
}

func TestFeedback_RetriesOnStaleThenCommits(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)

	require.NoError(t, store.InitializeTask(ctx, "ingest", 10.0, 1000, domain.DefaultPObs, domain.DefaultCStartup, domain.DefaultAlphaP, domain.DefaultAlphaK))
	store.models["ingest"].SampleCount = 2

	store.failUpdateModelTimes = 2 // fail first two attempts, succeed on the third

	err := e.Feedback(ctx, "ingest", 4, 1.0, 0.3, 12.0, 6.0, 0.0)
	require.NoError(t, err)

	model, err := store.GetTaskModel(ctx, "ingest")
	require.NoError(t, err)
	assert.Equal(t, int64(3), model.SampleCount)
}

func TestFeedback_ExhaustsRetriesAndReturnsError(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)

	require.NoError(t, store.InitializeTask(ctx, "ingest", 10.0, 1000, domain.DefaultPObs, domain.DefaultCStartup, domain.DefaultAlphaP, domain.DefaultAlphaK))
	store.models["ingest"].SampleCount = 2
	store.failUpdateModelTimes = 10 // more than MaxRetries

	err := e.Feedback(ctx, "ingest", 4, 1.0, 0.3, 12.0, 6.0, 0.0)
	assert.Error(t, err)
}

// TestScenarioE_SLOPruningExcludesInfeasibleCandidates reproduces spec
// scenario E: with c_startup=0, t_base=100, p=0.8 the Amdahl model predicts
// T(1)=100, T(2)=60, T(3)≈46.7, T(4)=40, T(5)=36. In float64,
// ceil(0.8/(1-0.8)) is 5, so the candidates are s=1..5. A max_time_slo of 50
// must rule out s=1 and s=2; among the feasible s=3/s=4/s=5, T*sqrt(s) is
// lowest at s=4 (≈80.8, 80.0, ≈80.5), so s=4 is the expected choice.
func TestScenarioE_SLOPruningExcludesInfeasibleCandidates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)
	e.SaturatedSearchSpace = 4
	e.SearchSpaceFloor = 4
	e.SearchSpaceScale = 1.0

	require.NoError(t, store.InitializeTask(ctx, "ingest", 100.0, 1000, 0.8, 0.0, 0.7, 0.8))
	store.models["ingest"].SampleCount = 2

	slo := 50.0
	pred, err := e.Predict(ctx, "ingest", 1000, 0.3, &slo)
	require.NoError(t, err)
	assert.Equal(t, 4, pred.S)
}

// TestScenarioF_ConcurrentFeedbackRetriesThroughStaleness fires two
// Feedback calls at the same starting sample_count concurrently; exactly
// one should commit first (sample_count -> 6), observe the other hitting
// ErrStale internally, and both should ultimately succeed with the model
// ending at sample_count=7 and two new history rows.
func TestScenarioF_ConcurrentFeedbackRetriesThroughStaleness(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)

	require.NoError(t, store.InitializeTask(ctx, "ingest", 200.0, 1000, 0.85, 10.0, 0.7, 0.8))
	store.models["ingest"].SampleCount = 5

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.Feedback(ctx, "ingest", 4, 1.0, 0.3, 77.2, 0, 0)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	model, err := store.GetTaskModel(ctx, "ingest")
	require.NoError(t, err)
	assert.Equal(t, int64(7), model.SampleCount)

	history, err := store.GetHistory(ctx, "ingest", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPredict_LearningPicksFiniteCandidate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	e := newTestEstimator(store)

	require.NoError(t, store.InitializeTask(ctx, "ingest", 100.0, 1000, 0.8, 6.0, 0.7, 0.8))
	store.models["ingest"].SampleCount = 2

	pred, err := e.Predict(ctx, "ingest", 1000, 0.3, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.S, 1)
	assert.Equal(t, 1.0, pred.Gamma)
}
