// Package history provides SQLite-backed persistence of pipeline runs, so
// the serve and MCP front ends can show what was converted and built.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	app_name    TEXT NOT NULL DEFAULT '',
	input_path  TEXT NOT NULL DEFAULT '',
	output_path TEXT NOT NULL DEFAULT '',
	dry_run     INTEGER NOT NULL DEFAULT 0,
	copied      INTEGER NOT NULL DEFAULT 0,
	exported    INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// Run kinds.
const (
	KindConvert = "convert"
	KindBuild   = "build"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	AppName    string    `json:"app_name"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	DryRun     bool      `json:"dry_run"`
	Copied     int       `json:"copied"`
	Exported   int       `json:"exported"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines run persistence. Consumers should depend on this interface
// rather than the concrete *DB type to facilitate testing with mocks.
type Store interface {
	RecordRun(r Run) (int64, error)
	ListRuns(limit int) ([]Run, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// DB wraps a sql.DB with run-history operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordRun inserts a run and returns its assigned id.
func (db *DB) RecordRun(r Run) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := db.conn.Exec(`
		INSERT INTO runs (kind, app_name, input_path, output_path, dry_run, copied, exported, skipped, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Kind, r.AppName, r.InputPath, r.OutputPath, r.DryRun, r.Copied, r.Exported, r.Skipped, r.Failed, r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("history: record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: run id: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, kind, app_name, input_path, output_path, dry_run, copied, exported, skipped, failed, created_at
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.AppName, &r.InputPath, &r.OutputPath,
			&r.DryRun, &r.Copied, &r.Exported, &r.Skipped, &r.Failed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
