// Package estimator orchestrates the Amdahl model, the Residual Model, and
// the State Store into the two public operations of the Adaptive
// Parallelism Estimator: Predict and Feedback.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dimajoyti/ape/internal/estimator/amdahl"
	"github.com/dimajoyti/ape/internal/estimator/domain"
	"github.com/dimajoyti/ape/internal/estimator/residual"
	"github.com/dimajoyti/ape/pkg/logger"
	"github.com/dimajoyti/ape/pkg/monitoring"
)

// CostFunc is the objective Predict minimizes over candidate s:
// total predicted time penalized sublinearly by resource use. Exposed as a
// package variable so callers can swap in a different objective without
// touching the search loop itself.
var CostFunc = func(t float64, s int) float64 {
	return t * math.Sqrt(float64(s))
}

// Prediction is the result of a Predict call: the chosen degree of
// parallelism, the input-scale factor it was evaluated at, and the
// decomposed time estimate that drove the choice.
type Prediction struct {
	S                 int
	Gamma             float64
	PredictedAmdahl   float64
	PredictedResidual float64
}

// Estimator ties the State Store to the Amdahl/Residual models. It holds no
// per-call state: every Predict re-trains a fresh Residual Model, every
// Feedback re-reads the task row.
type Estimator struct {
	Store   domain.Store
	Log     *logger.Logger
	Metrics *monitoring.EstimatorMetrics

	HistoryWindow           int
	CalibrationHistoryLimit int
	CalibrationS            int
	MaxRetries              int
	SaturatedSearchSpace    int
	SearchSpaceFloor        int
	SearchSpaceScale        float64
}

// New builds an Estimator with the spec's default tunables. Any of the
// tunable fields can be overridden on the returned value before first use.
func New(store domain.Store, log *logger.Logger, metrics *monitoring.EstimatorMetrics) *Estimator {
	return &Estimator{
		Store:                   store,
		Log:                     log,
		Metrics:                 metrics,
		HistoryWindow:           50,
		CalibrationHistoryLimit: 10,
		CalibrationS:            5,
		MaxRetries:              3,
		SaturatedSearchSpace:    50,
		SearchSpaceFloor:        15,
		SearchSpaceScale:        1.5,
	}
}

// Predict returns the degree of parallelism s the estimator recommends for
// a run of the named task at the given input quantity and cluster load,
// along with the decomposed time estimate at that choice.
func (e *Estimator) Predict(ctx context.Context, taskName string, inputQuantity, clusterLoad float64, maxTimeSLO *float64) (Prediction, error) {
	start := time.Now()

	model, err := e.Store.GetTaskModel(ctx, taskName)
	if errors.Is(err, domain.ErrNotFound) {
		e.Log.WithField("task_name", taskName).Warn("task not found, triggering cold start initialization")

		initErr := e.Store.InitializeTask(ctx, taskName, 0, inputQuantity,
			domain.DefaultPObs, domain.DefaultCStartup, domain.DefaultAlphaP, domain.DefaultAlphaK)
		if initErr != nil && !errors.Is(initErr, domain.ErrAlreadyExists) {
			return Prediction{}, fmt.Errorf("initializing task %q: %w", taskName, initErr)
		}

		e.recordPrediction(taskName, "cold_start", 1, start)
		return Prediction{S: 1, Gamma: 1.0, PredictedAmdahl: 0, PredictedResidual: 0}, nil
	}
	if err != nil {
		return Prediction{}, fmt.Errorf("loading model for %q: %w", taskName, err)
	}

	gamma := 1.0
	if model.BaseInputQuantity > 0 {
		gamma = inputQuantity / model.BaseInputQuantity
	}

	if model.SampleCount == 1 {
		return e.predictCalibrating(ctx, taskName, model, gamma, clusterLoad, start)
	}

	return e.predictLearning(ctx, taskName, model, gamma, clusterLoad, maxTimeSLO, start)
}

// predictCalibrating handles the one-sample case: force a nontrivial
// parallelism (CalibrationS) so the next feedback can seed p.
func (e *Estimator) predictCalibrating(ctx context.Context, taskName string, model *domain.TaskModel, gamma, clusterLoad float64, start time.Time) (Prediction, error) {
	history, err := e.Store.GetHistory(ctx, taskName, e.CalibrationHistoryLimit)
	if err != nil {
		return Prediction{}, fmt.Errorf("loading history for %q: %w", taskName, err)
	}

	var rm residual.Model
	rm.Train(toResidualRows(history))
	residuals := rm.Predict([]int{e.CalibrationS}, gamma, clusterLoad)

	predictedAmdahl := amdahl.TheoreticalTime(model.CStartup, gamma, model.TBase1, model.PObs, e.CalibrationS, model.KExponent)

	e.Log.WithField("task_name", taskName).Info("calibration run, forcing s=%d", e.CalibrationS)
	e.recordPrediction(taskName, "calibrating", e.CalibrationS, start)

	return Prediction{
		S:                 e.CalibrationS,
		Gamma:             gamma,
		PredictedAmdahl:   sanitizeFloat(predictedAmdahl),
		PredictedResidual: sanitizeFloat(residuals[0]),
	}, nil
}

// predictLearning runs the full candidate search: train the residual model
// on recent history, score every candidate s in [1, ceil(1.5*Smax)], and
// return the argmin of CostFunc.
func (e *Estimator) predictLearning(ctx context.Context, taskName string, model *domain.TaskModel, gamma, clusterLoad float64, maxTimeSLO *float64, start time.Time) (Prediction, error) {
	history, err := e.Store.GetHistory(ctx, taskName, e.HistoryWindow)
	if err != nil {
		return Prediction{}, fmt.Errorf("loading history for %q: %w", taskName, err)
	}

	var rm residual.Model
	rm.Train(toResidualRows(history))

	maxS := findSearchSpace(model.PObs, e.SaturatedSearchSpace, e.SearchSpaceFloor)
	upper := int(math.Ceil(float64(maxS) * e.SearchSpaceScale))

	candidates := make([]int, upper)
	for i := range candidates {
		candidates[i] = i + 1
	}

	e.Log.WithField("task_name", taskName).WithField("upper_bound", upper).Info("searching for optimal degree of parallelism")

	residuals := rm.Predict(candidates, gamma, clusterLoad)

	amdahlTimes := e.candidateAmdahlTimes(candidates, model, gamma)

	bestS := 1
	bestScore := math.Inf(1)
	var predictedAmdahl, predictedResidual float64

	for i, s := range candidates {
		tAmdahl := amdahlTimes[i]
		tTotal := tAmdahl + residuals[i]

		if maxTimeSLO != nil && tTotal > *maxTimeSLO {
			continue
		}

		cost := CostFunc(tTotal, s)
		if cost < bestScore {
			bestScore = cost
			bestS = s
			predictedAmdahl = sanitizeFloat(tAmdahl)
			predictedResidual = sanitizeFloat(residuals[i])
		}
	}

	e.recordPrediction(taskName, "learning", bestS, start)

	return Prediction{
		S:                 bestS,
		Gamma:             gamma,
		PredictedAmdahl:   predictedAmdahl,
		PredictedResidual: predictedResidual,
	}, nil
}

// candidateAmdahlTimes computes TheoreticalTime for every candidate. Each
// evaluation is a handful of floating-point ops, so a plain loop beats
// spawning a goroutine per candidate.
func (e *Estimator) candidateAmdahlTimes(candidates []int, model *domain.TaskModel, gamma float64) []float64 {
	out := make([]float64, len(candidates))
	for i, s := range candidates {
		out[i] = amdahl.TheoreticalTime(model.CStartup, gamma, model.TBase1, model.PObs, s, model.KExponent)
	}
	return out
}

func (e *Estimator) recordPrediction(taskName, state string, s int, start time.Time) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.RecordPrediction(taskName, state, s, start)
}

func toResidualRows(history []domain.HistoryRow) []residual.Row {
	rows := make([]residual.Row, len(history))
	for i, h := range history {
		rows[i] = residual.Row{
			Parallelism:      float64(h.Parallelism),
			InputScaleFactor: h.InputScaleFactor,
			ClusterLoad:      h.ClusterLoad,
			Residual:         h.Residual,
		}
	}
	return rows
}

// findSearchSpace computes the candidate upper bound S_max from the
// observed parallelizable fraction. As p saturates toward 1, p/(1-p)
// diverges, so the search is capped at saturatedSearchSpace instead.
func findSearchSpace(p float64, saturatedSearchSpace, floor int) int {
	if p >= 0.99 {
		return saturatedSearchSpace
	}
	limit := int(math.Ceil(p / (1 - p)))
	if limit < floor {
		return floor
	}
	return limit
}

// sanitizeFloat collapses non-finite and near-zero values to 0 and
// saturates magnitudes above 1e10, so downstream consumers (metrics, JSON
// APIs) never see NaN/Inf.
func sanitizeFloat(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if x == 0 {
		return 0
	}
	if math.Abs(x) < 1e-10 {
		return 0
	}
	if math.Abs(x) > 1e10 {
		if x > 0 {
			return 1e10
		}
		return -1e10
	}
	return x
}
