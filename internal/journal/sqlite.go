// Package journal provides SQLite-backed history for the engine: cycles,
// verification runs, projection publications, and guard audit records.
package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS cycles (
	cycle_id          TEXT PRIMARY KEY,
	trigger           TEXT NOT NULL,
	project_type      TEXT NOT NULL DEFAULT 'unknown',
	file_count        INTEGER NOT NULL DEFAULT 0,
	dependency_count  INTEGER NOT NULL DEFAULT 0,
	gate_passed       INTEGER NOT NULL DEFAULT 0,
	gate_reasons_json TEXT NOT NULL DEFAULT '[]',
	quality_score     REAL NOT NULL DEFAULT 0.0,
	started_at_unix   INTEGER NOT NULL,
	finished_at_unix  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at_unix);

CREATE TABLE IF NOT EXISTS verification_runs (
	run_id           TEXT PRIMARY KEY,
	cycle_id         TEXT NOT NULL,
	context_key      TEXT NOT NULL,
	command          TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	result           TEXT NOT NULL DEFAULT '',
	output           TEXT NOT NULL DEFAULT '',
	duration_seconds REAL NOT NULL DEFAULT 0.0,
	deadline_unix    INTEGER NOT NULL DEFAULT 0,
	created_at_unix  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_cycle ON verification_runs(cycle_id, created_at_unix);

CREATE TABLE IF NOT EXISTS publications (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id        TEXT NOT NULL,
	consumer        TEXT NOT NULL,
	path            TEXT NOT NULL,
	created_at_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publications_cycle ON publications(cycle_id);

CREATE TABLE IF NOT EXISTS audit_records (
	id              TEXT PRIMARY KEY,
	category        TEXT NOT NULL,
	action          TEXT NOT NULL,
	detail          TEXT NOT NULL DEFAULT '',
	severity        TEXT NOT NULL DEFAULT 'info',
	created_at_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_category ON audit_records(category, created_at_unix);
`

// NewDB opens the journal database at the given path with recommended
// pragmas and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrJournalInit.Code, domain.ErrJournalInit.Message, err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, domain.WrapEngineError(domain.ErrJournalInit.Code, domain.ErrJournalInit.Message, err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
