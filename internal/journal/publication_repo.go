package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// PublicationRepo handles persistence for projection publication entries.
type PublicationRepo struct{}

// Record inserts one publication row.
func (r *PublicationRepo) Record(ctx context.Context, db *sql.DB, pub domain.Publication) error {
	const q = `INSERT INTO publications (cycle_id, consumer, path, created_at_unix)
VALUES (?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q, pub.CycleID, pub.Consumer, pub.Path, pub.CreatedAtUnix)
	if err != nil {
		return fmt.Errorf("record publication: %w", err)
	}
	return nil
}

// ListByCycle returns all publications recorded under a cycle, in insert order.
func (r *PublicationRepo) ListByCycle(ctx context.Context, db *sql.DB, cycleID string) ([]domain.Publication, error) {
	const q = `SELECT id, cycle_id, consumer, path, created_at_unix
FROM publications
WHERE cycle_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()

	var pubs []domain.Publication
	for rows.Next() {
		var p domain.Publication
		if err := rows.Scan(&p.ID, &p.CycleID, &p.Consumer, &p.Path, &p.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		pubs = append(pubs, p)
	}
	return pubs, rows.Err()
}
