package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, category, action, detail, severity, created_at_unix)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.Category,
		rec.Action,
		rec.Detail,
		rec.Severity,
		rec.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByCategory returns all audit records in a category, oldest first.
func (r *AuditRepo) ListByCategory(ctx context.Context, db *sql.DB, category string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, category, action, detail, severity, created_at_unix
FROM audit_records
WHERE category = ?
ORDER BY created_at_unix ASC, id ASC`

	rows, err := db.QueryContext(ctx, q, category)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.Category, &a.Action, &a.Detail, &a.Severity, &a.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
