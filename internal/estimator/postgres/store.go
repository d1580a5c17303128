// Package postgres implements the State Store on top of database/sql and
// lib/pq: one connection-scoped transaction per operation, optimistic
// concurrency on task_models.sample_count, and unique_violation (23505)
// detection for AlreadyExists — the same pattern internal/auth's
// UserRepository uses for *sql.DB directly rather than through sqlx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dimajoyti/ape/internal/estimator/domain"
	"github.com/dimajoyti/ape/pkg/logger"
)

// Store implements domain.Store against PostgreSQL.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New creates a Postgres-backed State Store.
func New(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log}
}

var _ domain.Store = (*Store)(nil)

// InitializeTask inserts a new task_models row inside its own transaction,
// committed on success and rolled back on any error.
func (s *Store) InitializeTask(ctx context.Context, taskName string, tBase, baseInputQuantity, p, cStartup, alphaP, alphaK float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning initialize_task transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_models (
			task_name, t_base_1, base_input_quantity, p_obs, k_exponent,
			c_startup, alpha_p, alpha_k, sample_count, last_updated
		) VALUES ($1, $2, $3, $4, 1.0, $5, $6, $7, 0, now())`,
		taskName, tBase, baseInputQuantity, p, cStartup, alphaP, alphaK,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		s.log.WithError(err).WithField("task_name", taskName).Error("failed to initialize task")
		return fmt.Errorf("initializing task %q: %w", taskName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing initialize_task for %q: %w", taskName, err)
	}

	s.log.WithField("task_name", taskName).Info("task initialized")
	return nil
}

// GetTaskModel returns the current row for a task, or ErrNotFound.
func (s *Store) GetTaskModel(ctx context.Context, taskName string) (*domain.TaskModel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_name, t_base_1, base_input_quantity, p_obs, k_exponent,
		       c_startup, alpha_p, alpha_k, sample_count, last_updated
		FROM task_models WHERE task_name = $1`, taskName)

	m := &domain.TaskModel{}
	err := row.Scan(
		&m.TaskName, &m.TBase1, &m.BaseInputQuantity, &m.PObs, &m.KExponent,
		&m.CStartup, &m.AlphaP, &m.AlphaK, &m.SampleCount, &m.LastUpdated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		s.log.WithError(err).WithField("task_name", taskName).Error("failed to load task model")
		return nil, fmt.Errorf("loading task model for %q: %w", taskName, err)
	}

	return m, nil
}

// UpdateBaseline sets t_base_1 unconditionally. Deliberately unversioned —
// it is called exactly once per task, interleaved with the first versioned
// UpdateModel(expectedVersion=0). This leaves a narrow race: two concurrent
// first feedbacks can both write t_base_1 before one of them loses the
// versioned UpdateModel, so the stored baseline may come from either run.
func (s *Store) UpdateBaseline(ctx context.Context, taskName string, newTBase float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update_baseline transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE task_models SET t_base_1 = $1 WHERE task_name = $2`, newTBase, taskName)
	if err != nil {
		s.log.WithError(err).WithField("task_name", taskName).Error("failed to update baseline")
		return fmt.Errorf("updating baseline for %q: %w", taskName, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected for %q: %w", taskName, err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update_baseline for %q: %w", taskName, err)
	}

	return nil
}

// GetHistory returns up to limit rows for a task, newest first.
func (s *Store) GetHistory(ctx context.Context, taskName string, limit int) ([]domain.HistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_name, parallelism, input_scale_factor, cluster_load,
		       total_duration, residual, cost_metric, p_snapshot, time_amdahl,
		       pred_residual, recorded_at
		FROM execution_history
		WHERE task_name = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, taskName, limit)
	if err != nil {
		s.log.WithError(err).WithField("task_name", taskName).Error("failed to load execution history")
		return nil, fmt.Errorf("loading history for %q: %w", taskName, err)
	}
	defer rows.Close()

	var history []domain.HistoryRow
	for rows.Next() {
		var h domain.HistoryRow
		if err := rows.Scan(
			&h.ID, &h.TaskName, &h.Parallelism, &h.InputScaleFactor, &h.ClusterLoad,
			&h.TotalDuration, &h.Residual, &h.CostMetric, &h.PSnapshot, &h.TimeAmdahl,
			&h.PredResidual, &h.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning history row for %q: %w", taskName, err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history for %q: %w", taskName, err)
	}

	return history, nil
}

// UpdateModel atomically bumps p_obs/k_exponent/sample_count guarded by
// expectedVersion and appends a history row, all in one transaction. Zero
// rows affected by the guarded UPDATE means either the row is gone
// (ErrNotFound) or another writer already moved sample_count past
// expectedVersion (ErrStale).
func (s *Store) UpdateModel(ctx context.Context, taskName string, newP, newK float64, runData domain.RunData, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update_model transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE task_models
		SET p_obs = $1, k_exponent = $2, sample_count = sample_count + 1, last_updated = now()
		WHERE task_name = $3 AND sample_count = $4`,
		newP, newK, taskName, expectedVersion,
	)
	if err != nil {
		s.log.WithError(err).WithField("task_name", taskName).Error("failed to update model")
		return fmt.Errorf("updating model for %q: %w", taskName, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected for %q: %w", taskName, err)
	}

	if rowsAffected == 0 {
		exists, existsErr := s.taskExists(ctx, tx, taskName)
		if existsErr != nil {
			return existsErr
		}
		if exists {
			return domain.ErrStale
		}
		return domain.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_history (
			task_name, parallelism, input_scale_factor, cluster_load,
			total_duration, residual, cost_metric, p_snapshot, time_amdahl,
			pred_residual, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		taskName, runData.Parallelism, runData.InputScaleFactor, runData.ClusterLoad,
		runData.TotalDuration, runData.Residual, runData.CostMetric, runData.PSnapshot,
		runData.TimeAmdahl, runData.PredResidual, time.Now(),
	)
	if err != nil {
		s.log.WithError(err).WithField("task_name", taskName).Error("failed to append history row")
		return fmt.Errorf("appending history for %q: %w", taskName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update_model for %q: %w", taskName, err)
	}

	return nil
}

func (s *Store) taskExists(ctx context.Context, tx *sql.Tx, taskName string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM task_models WHERE task_name = $1)`, taskName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probing existence of %q: %w", taskName, err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
