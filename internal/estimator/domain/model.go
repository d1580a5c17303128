// Package domain holds the estimator's storage-agnostic types: the
// per-task model, the execution history row, and the sentinel errors the
// State Store and Estimator communicate through.
package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by the Store. The Estimator distinguishes them
// with errors.Is rather than type assertions, same as internal/auth/domain.
var (
	// ErrAlreadyExists is returned by InitializeTask when task_name already
	// has a row.
	ErrAlreadyExists = errors.New("task already exists")

	// ErrNotFound is returned when a task row disappears between load and
	// update (or never existed).
	ErrNotFound = errors.New("task not found")

	// ErrStale is returned by UpdateModel when expectedVersion no longer
	// matches sample_count — an optimistic-concurrency conflict.
	ErrStale = errors.New("task model updated concurrently")
)

// TaskModel is one row of task_models: the learned Amdahl/EMA parameters
// for a single named task plus the optimistic-concurrency version.
type TaskModel struct {
	TaskName          string
	TBase1            float64
	BaseInputQuantity float64
	PObs              float64
	KExponent         float64
	CStartup          float64
	AlphaP            float64
	AlphaK            float64
	// SampleCount also serves as the optimistic-concurrency version token.
	SampleCount int64
	LastUpdated time.Time
}

// HistoryRow is one append-only row of execution_history.
type HistoryRow struct {
	ID               int64
	TaskName         string
	Parallelism      int
	InputScaleFactor float64
	ClusterLoad      float64
	TotalDuration    float64
	Residual         float64
	CostMetric       float64
	PSnapshot        float64
	TimeAmdahl       float64
	PredResidual     float64
	RecordedAt       time.Time
}

// Defaults mirrored from spec.md §3 (Task Model invariants) and
// original_source/arbo_lib/config.py's Config.DEFAULT_STARTUP.
const (
	DefaultCStartup = 6.0
	DefaultAlphaP   = 0.7
	DefaultAlphaK   = 0.8
	DefaultPObs     = 1.0
	DefaultKExp     = 1.0

	MinP = 0.01
	MaxP = 0.99
	MinK = 0.5
	MaxK = 3.0
)

// ClampP clamps p to the invariant range [0.01, 0.99].
func ClampP(p float64) float64 {
	if p < MinP {
		return MinP
	}
	if p > MaxP {
		return MaxP
	}
	return p
}

// ClampK clamps k to the invariant range [0.5, 3.0].
func ClampK(k float64) float64 {
	if k < MinK {
		return MinK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}

// RunData is the set of derived values the Estimator hands to UpdateModel
// for the history row that accompanies every model update.
type RunData struct {
	Parallelism      int
	InputScaleFactor float64
	ClusterLoad      float64
	TotalDuration    float64
	Residual         float64
	CostMetric       float64
	PSnapshot        float64
	TimeAmdahl       float64
	PredResidual     float64
}

// Store is the State Store's contract: durable per-task model parameters
// and execution history, guarded by optimistic concurrency on sample_count.
// Implementations open a connection per call and commit-or-rollback a
// single transaction per operation; see internal/estimator/postgres.
type Store interface {
	// InitializeTask inserts a new row. Returns ErrAlreadyExists if
	// task_name already has one.
	InitializeTask(ctx context.Context, taskName string, tBase, baseInputQuantity, p, cStartup, alphaP, alphaK float64) error

	// GetTaskModel returns the current row, or ErrNotFound if absent.
	GetTaskModel(ctx context.Context, taskName string) (*TaskModel, error)

	// UpdateBaseline sets t_base_1 unconditionally (no version check). Used
	// exactly once per task, on the first real feedback call.
	UpdateBaseline(ctx context.Context, taskName string, newTBase float64) error

	// GetHistory returns up to limit rows, newest first.
	GetHistory(ctx context.Context, taskName string, limit int) ([]HistoryRow, error)

	// UpdateModel atomically bumps p_obs/k_exponent/sample_count guarded by
	// expectedVersion, then appends a history row built from runData.
	// Returns ErrStale if sample_count no longer matches expectedVersion,
	// ErrNotFound if the row no longer exists.
	UpdateModel(ctx context.Context, taskName string, newP, newK float64, runData RunData, expectedVersion int64) error
}
