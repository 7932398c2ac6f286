package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claims-recal/internal/engine"
)

// RecalibrationRun tracks one optimizer or recalibration invocation for
// the audit trail.
type RecalibrationRun struct {
	RunID       string     `json:"run_id"`
	Label       string     `json:"label"`
	Method      string     `json:"method"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TotalClaims int        `json:"total_claims"`
	MAPEBefore  float64    `json:"mape_before"`
	MAPEAfter   float64    `json:"mape_after"`
	RMSEBefore  float64    `json:"rmse_before"`
	RMSEAfter   float64    `json:"rmse_after"`
	Converged   bool       `json:"converged"`
	Iterations  int        `json:"iterations"`
}

// RunStore persists recalibration runs and their optimized weights.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new run store
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRun records the start of a recalibration run and returns it
// with a fresh run id.
func (rs *RunStore) CreateRun(label, method string) (*RecalibrationRun, error) {
	run := &RecalibrationRun{
		RunID:     uuid.NewString(),
		Label:     label,
		Method:    method,
		StartedAt: time.Now(),
	}

	_, err := rs.db.Exec(`
		INSERT INTO recalibration_run (run_id, run_label, method, started_at)
		VALUES ($1, $2, $3, $4)
	`, run.RunID, run.Label, run.Method, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create recalibration run: %w", err)
	}

	return run, nil
}

// CompleteRun stores the outcome metrics and optimized weights for a run.
func (rs *RunStore) CompleteRun(run *RecalibrationRun, metrics *engine.RecalibrationMetrics, weights engine.WeightVector) error {
	now := time.Now()
	run.CompletedAt = &now

	weightsJSON, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to marshal optimized weights: %w", err)
	}

	_, err = rs.db.Exec(`
		UPDATE recalibration_run
		SET completed_at = $1, total_claims = $2,
			mape_before = $3, mape_after = $4,
			rmse_before = $5, rmse_after = $6,
			converged = $7, iterations = $8,
			optimized_weights = $9
		WHERE run_id = $10
	`, now, metrics.TotalClaims,
		metrics.MAPEBefore, metrics.MAPEAfter,
		metrics.RMSEBefore, metrics.RMSEAfter,
		run.Converged, run.Iterations,
		weightsJSON, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to complete recalibration run: %w", err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first.
func (rs *RunStore) ListRuns(limit int) ([]RecalibrationRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := rs.db.Query(`
		SELECT run_id, run_label, method, started_at, completed_at,
			   COALESCE(total_claims, 0),
			   COALESCE(mape_before, 0), COALESCE(mape_after, 0),
			   COALESCE(rmse_before, 0), COALESCE(rmse_after, 0),
			   COALESCE(converged, false), COALESCE(iterations, 0)
		FROM recalibration_run
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RecalibrationRun
	for rows.Next() {
		var run RecalibrationRun
		if err := rows.Scan(
			&run.RunID, &run.Label, &run.Method, &run.StartedAt, &run.CompletedAt,
			&run.TotalClaims,
			&run.MAPEBefore, &run.MAPEAfter,
			&run.RMSEBefore, &run.RMSEAfter,
			&run.Converged, &run.Iterations,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
