// Package application is the thin façade a scheduler (an Airflow-style DAG
// runner, a batch coordinator, a CLI) drives instead of talking to the
// Estimator directly. It adds nothing to the model; it only reshapes a
// single Prediction into the chunk configs a caller fanning work out over
// s workers actually needs, and narrates feedback before delegating it.
package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dimajoyti/ape/internal/estimator/estimator"
	"github.com/dimajoyti/ape/pkg/logger"
)

// ChunkConfig is the per-worker assignment a caller hands to worker i of s:
// which chunk it owns, how many chunks exist in total, and the input-scale
// factor (gamma) and task identity the estimator evaluated at. RunID
// identifies this prediction so a later ReportSuccess call can look its
// actual duration up after the fact instead of threading a float through
// the caller's own plumbing (spec.md §6).
type ChunkConfig struct {
	ChunkID     int     `json:"chunk_id"`
	TotalChunks int     `json:"total_chunks"`
	Gamma       float64 `json:"gamma"`
	TaskName    string  `json:"task_name"`
	RunID       string  `json:"run_id"`
}

// DurationProbe lets a caller supply its own after-the-fact lookup of a
// run's actual wall-clock duration, keyed by the run ID GetTaskConfigs
// minted, instead of passing a raw float through ReportSuccess. Optional:
// ReportSuccess works with a plain fallbackDuration when no probe is wired
// in.
type DurationProbe interface {
	Observe(ctx context.Context, taskName string, s int, runID string) (float64, bool)
}

// Optimizer wraps an Estimator with the chunk-expansion and feedback-
// narration behavior a task-scheduling integration expects.
type Optimizer struct {
	Estimator *estimator.Estimator
	Log       *logger.Logger
	Probe     DurationProbe
}

// New builds an Optimizer over an existing Estimator.
func New(e *estimator.Estimator, log *logger.Logger) *Optimizer {
	return &Optimizer{Estimator: e, Log: log}
}

// GetTaskConfigs asks the Estimator for the degree of parallelism s to run
// the named task at, then expands that single decision into s ChunkConfigs
// — one per worker — alongside the raw Prediction so a caller that wants
// the decomposed time estimate still has it. All chunks from one call share
// a freshly minted RunID; pass it back through ReportSuccess to let a wired
// DurationProbe look the run's actual duration up itself.
func (o *Optimizer) GetTaskConfigs(ctx context.Context, taskName string, inputQuantity, clusterLoad float64, maxTimeSLO *float64) ([]ChunkConfig, estimator.Prediction, error) {
	prediction, err := o.Estimator.Predict(ctx, taskName, inputQuantity, clusterLoad, maxTimeSLO)
	if err != nil {
		return nil, estimator.Prediction{}, fmt.Errorf("getting task configs for %q: %w", taskName, err)
	}

	runID := uuid.New().String()
	configs := make([]ChunkConfig, prediction.S)
	for i := range configs {
		configs[i] = ChunkConfig{
			ChunkID:     i,
			TotalChunks: prediction.S,
			Gamma:       prediction.Gamma,
			TaskName:    taskName,
			RunID:       runID,
		}
	}

	return configs, prediction, nil
}

// ReportSuccess logs the outcome of a completed run and forwards it to the
// Estimator's Feedback. fallbackDuration is used verbatim unless a
// DurationProbe is wired in and it can look tActual up for runID itself,
// giving callers that already export their own timing (by run ID) a way to
// skip threading a duration through this call.
func (o *Optimizer) ReportSuccess(ctx context.Context, taskName string, s int, gamma, clusterLoad, fallbackDuration, predictedAmdahl, predictedResidual float64, runID string) error {
	tActual := fallbackDuration
	if o.Probe != nil {
		if observed, ok := o.Probe.Observe(ctx, taskName, s, runID); ok {
			tActual = observed
		}
	}

	o.Log.Info("Feedback received for '%s': s=%d, Time=%.2fs, Gamma=%.2f, RunID=%s", taskName, s, tActual, gamma, runID)

	if err := o.Estimator.Feedback(ctx, taskName, s, gamma, clusterLoad, tActual, predictedAmdahl, predictedResidual); err != nil {
		return fmt.Errorf("reporting success for %q: %w", taskName, err)
	}
	return nil
}
