package estimator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dimajoyti/ape/internal/estimator/amdahl"
	"github.com/dimajoyti/ape/internal/estimator/domain"
)

// Feedback records the outcome of one execution and updates the task's
// learned parameters. It makes up to MaxRetries attempts, re-reading the
// model after an optimistic-concurrency conflict; if every attempt is
// exhausted it logs and returns
// an error, leaving the next feedback call to make progress instead.
func (e *Estimator) Feedback(ctx context.Context, taskName string, s int, gamma, clusterLoad, tActual, predictedAmdahl, predictedResidual float64) error {
	var lastErr error

	for attempt := 0; attempt < e.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		model, err := e.Store.GetTaskModel(ctx, taskName)
		notFound := errors.Is(err, domain.ErrNotFound)
		if err != nil && !notFound {
			return fmt.Errorf("loading model for %q: %w", taskName, err)
		}

		var currentVersion int64
		if !notFound {
			currentVersion = model.SampleCount
		}

		if notFound || model.SampleCount == 0 {
			committed, err := e.feedbackBaseline(ctx, taskName, s, gamma, clusterLoad, tActual, predictedAmdahl, predictedResidual)
			if err != nil {
				return err
			}
			if committed {
				e.recordFeedback(taskName, "committed")
				return nil
			}
			// AlreadyExists or Stale: another caller raced us onto this
			// task; re-read and retry.
			lastErr = domain.ErrStale
			continue
		}

		if err := e.feedbackLearning(ctx, taskName, model, s, gamma, clusterLoad, tActual, predictedAmdahl, predictedResidual, currentVersion); err != nil {
			if errors.Is(err, domain.ErrStale) {
				e.Log.WithField("task_name", taskName).Warn("optimistic lock conflict, retrying (%d/%d)", attempt+1, e.MaxRetries)
				e.recordFeedback(taskName, "stale_retry")
				lastErr = err
				continue
			}
			if errors.Is(err, domain.ErrNotFound) {
				e.Log.WithField("task_name", taskName).Error("task disappeared during feedback")
				e.recordFeedback(taskName, "not_found")
				return err
			}
			return err
		}

		e.recordFeedback(taskName, "committed")
		return nil
	}

	e.Log.WithField("task_name", taskName).Error("failed to update model after %d attempts due to concurrency", e.MaxRetries)
	e.recordFeedback(taskName, "exhausted")
	return fmt.Errorf("feedback exhausted retries for task %q: %w", taskName, lastErr)
}

// feedbackBaseline handles sample_count==0 (including the missing-row
// case): the very first real run becomes the task's t_base_1, and p/k are
// seeded to 1. Returns committed=false on a Stale or AlreadyExists race so
// the caller re-reads and retries.
func (e *Estimator) feedbackBaseline(ctx context.Context, taskName string, s int, gamma, clusterLoad, tActual, predictedAmdahl, predictedResidual float64) (committed bool, err error) {
	e.Log.WithField("task_name", taskName).Info("initializing baseline metrics via feedback")

	cost := CostFunc(tActual, s)
	runData := domain.RunData{
		Parallelism:      s,
		InputScaleFactor: gamma,
		ClusterLoad:      clusterLoad,
		TotalDuration:    tActual,
		Residual:         0,
		CostMetric:       cost,
		PSnapshot:        1.0,
		TimeAmdahl:       predictedAmdahl,
		PredResidual:     predictedResidual,
	}

	if err := e.Store.UpdateBaseline(ctx, taskName, tActual); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			e.Log.WithField("task_name", taskName).Warn("task already exists in store, re-reading")
			return false, nil
		}
		return false, fmt.Errorf("updating baseline for %q: %w", taskName, err)
	}

	if err := e.Store.UpdateModel(ctx, taskName, 1, 1, runData, 0); err != nil {
		if errors.Is(err, domain.ErrStale) {
			return false, nil
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			e.Log.WithField("task_name", taskName).Warn("task already exists in store, re-reading")
			return false, nil
		}
		return false, fmt.Errorf("committing baseline model for %q: %w", taskName, err)
	}

	return true, nil
}

// feedbackLearning handles sample_count>=1: infer p and k from the
// observed run, EMA-blend them into the task's running estimate, and
// commit the residual of the actual run against the updated theoretical
// time. predictedAmdahl/predictedResidual are the forecast the original
// Predict call returned for this run, carried through into the history
// row unchanged (they describe the prediction, not the outcome).
func (e *Estimator) feedbackLearning(ctx context.Context, taskName string, model *domain.TaskModel, s int, gamma, clusterLoad, tActual, predictedAmdahl, predictedResidual float64, expectedVersion int64) error {
	currentK := model.KExponent

	pCur, pOk := amdahl.InferP(float64(s), tActual, model.CStartup, model.TBase1, gamma, currentK)
	newP := amdahl.EMA(model.PObs, pCur, pOk, model.AlphaP)

	kCur, kOk := amdahl.InferK(s, tActual, model.CStartup, model.TBase1, gamma, newP)
	newK := amdahl.EMA(currentK, kCur, kOk, model.AlphaK)

	tTheory := amdahl.TheoreticalTime(model.CStartup, gamma, model.TBase1, newP, s, newK)
	residualVal := tActual - tTheory
	cost := CostFunc(tActual, s)

	runData := domain.RunData{
		Parallelism:      s,
		InputScaleFactor: gamma,
		ClusterLoad:      clusterLoad,
		TotalDuration:    tActual,
		Residual:         residualVal,
		CostMetric:       cost,
		PSnapshot:        newP,
		TimeAmdahl:       predictedAmdahl,
		PredResidual:     predictedResidual,
	}

	if err := e.Store.UpdateModel(ctx, taskName, newP, newK, runData, expectedVersion); err != nil {
		return err
	}

	if e.Metrics != nil {
		e.Metrics.UpdateModelGauges(taskName, newP, newK)
		e.Metrics.RecordResidual(taskName, residualVal)
	}

	return nil
}

func (e *Estimator) recordFeedback(taskName, outcome string) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.RecordFeedback(taskName, outcome)
}
