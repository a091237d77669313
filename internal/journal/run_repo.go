package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// RunRepo handles persistence for VerificationRun entries.
type RunRepo struct{}

// Begin inserts a pending run with its execution deadline.
func (r *RunRepo) Begin(ctx context.Context, db *sql.DB, run domain.VerificationRun) error {
	const q = `INSERT INTO verification_runs (run_id, cycle_id, context_key, command, status, result, output, duration_seconds, deadline_unix, created_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		run.RunID,
		run.CycleID,
		run.ContextKey,
		run.Command,
		string(domain.RunPending),
		string(run.Result),
		run.Output,
		run.DurationSeconds,
		run.DeadlineUnix,
		run.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Complete marks a pending run done and records its outcome. Completing a
// run that already resolved returns ErrRunAlreadyDone.
func (r *RunRepo) Complete(ctx context.Context, db *sql.DB, runID string, result domain.TestResult, output string, durationSec float64) error {
	const q = `UPDATE verification_runs SET status = ?, result = ?, output = ?, duration_seconds = ?
WHERE run_id = ? AND status = ?`

	res, err := db.ExecContext(ctx, q,
		string(domain.RunDone), string(result), output, durationSec,
		runID, string(domain.RunPending))
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return r.checkTransition(ctx, db, res, runID)
}

// Cancel marks a pending run cancelled without an outcome.
func (r *RunRepo) Cancel(ctx context.Context, db *sql.DB, runID string) error {
	const q = `UPDATE verification_runs SET status = ?
WHERE run_id = ? AND status = ?`

	res, err := db.ExecContext(ctx, q,
		string(domain.RunCancelled), runID, string(domain.RunPending))
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return r.checkTransition(ctx, db, res, runID)
}

// checkTransition distinguishes a missing run from one that already left
// the pending state.
func (r *RunRepo) checkTransition(ctx context.Context, db *sql.DB, res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, db, runID); err != nil {
		return err
	}
	return domain.ErrRunAlreadyDone
}

// Get retrieves a run by its ID.
func (r *RunRepo) Get(ctx context.Context, db *sql.DB, runID string) (*domain.VerificationRun, error) {
	const q = `SELECT run_id, cycle_id, context_key, command, status, result, output, duration_seconds, deadline_unix, created_at_unix
FROM verification_runs WHERE run_id = ?`

	row := db.QueryRowContext(ctx, q, runID)

	var run domain.VerificationRun
	var status, result string
	err := row.Scan(&run.RunID, &run.CycleID, &run.ContextKey, &run.Command,
		&status, &result, &run.Output, &run.DurationSeconds, &run.DeadlineUnix, &run.CreatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.Result = domain.TestResult(result)
	return &run, nil
}

// ListByCycle returns all runs recorded under a cycle, oldest first.
func (r *RunRepo) ListByCycle(ctx context.Context, db *sql.DB, cycleID string) ([]domain.VerificationRun, error) {
	const q = `SELECT run_id, cycle_id, context_key, command, status, result, output, duration_seconds, deadline_unix, created_at_unix
FROM verification_runs
WHERE cycle_id = ?
ORDER BY created_at_unix ASC, run_id ASC`

	rows, err := db.QueryContext(ctx, q, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.VerificationRun
	for rows.Next() {
		var run domain.VerificationRun
		var status, result string
		if err := rows.Scan(&run.RunID, &run.CycleID, &run.ContextKey, &run.Command,
			&status, &result, &run.Output, &run.DurationSeconds, &run.DeadlineUnix, &run.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = domain.RunStatus(status)
		run.Result = domain.TestResult(result)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
