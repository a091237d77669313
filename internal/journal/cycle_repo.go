package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// CycleRepo handles persistence for CycleRecord entries.
type CycleRepo struct{}

// Begin inserts a cycle row when the cycle starts. Outcome fields hold
// their zero defaults until Finish.
func (r *CycleRepo) Begin(ctx context.Context, db *sql.DB, rec domain.CycleRecord) error {
	reasons, err := json.Marshal(rec.GateReasons)
	if err != nil {
		return fmt.Errorf("marshal gate reasons: %w", err)
	}

	const q = `INSERT INTO cycles (cycle_id, trigger, project_type, file_count, dependency_count, gate_passed, gate_reasons_json, quality_score, started_at_unix, finished_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, q,
		rec.CycleID,
		rec.Trigger,
		string(rec.ProjectType),
		rec.FileCount,
		rec.DependencyCount,
		rec.GatePassed,
		string(reasons),
		rec.QualityScore,
		rec.StartedAtUnix,
		rec.FinishedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("begin cycle: %w", err)
	}
	return nil
}

// Finish updates a cycle's outcome fields once the cycle completes.
func (r *CycleRepo) Finish(ctx context.Context, db *sql.DB, rec domain.CycleRecord) error {
	reasons, err := json.Marshal(rec.GateReasons)
	if err != nil {
		return fmt.Errorf("marshal gate reasons: %w", err)
	}

	const q = `UPDATE cycles SET
		project_type = ?,
		file_count = ?,
		dependency_count = ?,
		gate_passed = ?,
		gate_reasons_json = ?,
		quality_score = ?,
		finished_at_unix = ?
	WHERE cycle_id = ?`

	res, err := db.ExecContext(ctx, q,
		string(rec.ProjectType),
		rec.FileCount,
		rec.DependencyCount,
		rec.GatePassed,
		string(reasons),
		rec.QualityScore,
		rec.FinishedAtUnix,
		rec.CycleID,
	)
	if err != nil {
		return fmt.Errorf("finish cycle: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrCycleNotFound
	}
	return nil
}

// Get retrieves a cycle by its ID.
func (r *CycleRepo) Get(ctx context.Context, db *sql.DB, cycleID string) (*domain.CycleRecord, error) {
	const q = `SELECT cycle_id, trigger, project_type, file_count, dependency_count, gate_passed, gate_reasons_json, quality_score, started_at_unix, finished_at_unix
FROM cycles WHERE cycle_id = ?`

	row := db.QueryRowContext(ctx, q, cycleID)

	rec, err := scanCycle(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrCycleNotFound
		}
		return nil, fmt.Errorf("get cycle: %w", err)
	}
	return rec, nil
}

// List returns the most recently started cycles, newest first.
func (r *CycleRepo) List(ctx context.Context, db *sql.DB, limit int) ([]domain.CycleRecord, error) {
	const q = `SELECT cycle_id, trigger, project_type, file_count, dependency_count, gate_passed, gate_reasons_json, quality_score, started_at_unix, finished_at_unix
FROM cycles
ORDER BY started_at_unix DESC, cycle_id DESC
LIMIT ?`

	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var records []domain.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanCycle(scan func(dest ...any) error) (*domain.CycleRecord, error) {
	var rec domain.CycleRecord
	var ptype, reasonsJSON string
	if err := scan(&rec.CycleID, &rec.Trigger, &ptype, &rec.FileCount, &rec.DependencyCount,
		&rec.GatePassed, &reasonsJSON, &rec.QualityScore, &rec.StartedAtUnix, &rec.FinishedAtUnix); err != nil {
		return nil, err
	}
	rec.ProjectType = domain.ProjectType(ptype)
	if err := json.Unmarshal([]byte(reasonsJSON), &rec.GateReasons); err != nil {
		return nil, fmt.Errorf("unmarshal gate reasons: %w", err)
	}
	return &rec, nil
}
