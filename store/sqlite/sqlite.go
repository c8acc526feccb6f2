/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence contract of the engine on one database file.
  The same patterns carry over to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  generic.EffectiveStore[T]: versioned master data, one family per type (Family)
  workflow.Store:            workflows and their comment trail
  attendance.Store:          requests, substitutes, suspensions, schedules
  CutoffRun storage:         results of scheduled cutoff checks

APPEND-ONLY ENFORCEMENT:
  - effective_records rows are never updated except the deleted flag
  - workflow_comments rows are never updated or deleted
  - at most one visible version per (family, code, effective_date), enforced
    by a partial unique index

EXCLUSIVE CONTROL:
  Workflow saves are conditional UPDATEs on the version column, run inside a
  transaction together with the comment inserts. A zero-row update means the
  workflow moved on (ExclusiveControlError) or is gone (ErrNotFound).

ENCODING:
  Dates are stored as YYYY-MM-DD so they sort as text; timestamps as
  RFC3339Nano. Record payloads are JSON, which keeps decimals as strings.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The database is opened in WAL mode;
  ":memory:" databases are pinned to one connection so every query sees the
  same data.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  employees := sqlite.Family[generic.Employee](store, sqlite.FamilyEmployee)

SEE ALSO:
  - generic/store.go: EffectiveStore contract
  - generic/store: in-memory implementations used in tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/attendance-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Versioned master data, one row per version
	CREATE TABLE IF NOT EXISTS effective_records (
		family TEXT NOT NULL,
		record_id INTEGER NOT NULL,
		code TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		inactive INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (family, record_id)
	);

	-- One visible version per key and day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_effective_unique_version
		ON effective_records(family, code, effective_date)
		WHERE deleted = 0;

	-- As-of lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_effective_family_code_date
		ON effective_records(family, code, effective_date DESC);

	-- Id sequences
	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	-- Workflows
	CREATE TABLE IF NOT EXISTS workflows (
		id INTEGER PRIMARY KEY,
		function_code TEXT NOT NULL,
		workflow_type TEXT NOT NULL,
		status TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		target_date TEXT NOT NULL,
		route_code TEXT,
		stage INTEGER NOT NULL DEFAULT 0,
		stages_json TEXT,
		self_approval INTEGER NOT NULL DEFAULT 0,
		manual_approvers INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_requester_date
		ON workflows(requester_id, target_date);
	CREATE INDEX IF NOT EXISTS idx_workflows_status
		ON workflows(status) WHERE deleted = 0;

	-- Comment trail (append-only)
	CREATE TABLE IF NOT EXISTS workflow_comments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		workflow_id INTEGER NOT NULL REFERENCES workflows(id),
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		stage INTEGER NOT NULL,
		text TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_comments_workflow
		ON workflow_comments(workflow_id, seq);

	-- Requests of every kind
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY,
		workflow_id INTEGER NOT NULL,
		personal_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		request_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		payload TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_person_date
		ON requests(personal_id, request_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_requests_workflow
		ON requests(workflow_id) WHERE deleted = 0;

	CREATE TABLE IF NOT EXISTS substitutes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		personal_id TEXT NOT NULL,
		substitute_date TEXT NOT NULL,
		day_range INTEGER NOT NULL,
		workflow_id INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_substitutes_person_date
		ON substitutes(personal_id, substitute_date);

	CREATE TABLE IF NOT EXISTS suspensions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		personal_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		reason TEXT
	);

	CREATE TABLE IF NOT EXISTS schedules (
		personal_id TEXT NOT NULL,
		schedule_date TEXT NOT NULL,
		work_type_code TEXT NOT NULL,
		PRIMARY KEY (personal_id, schedule_date)
	);

	-- Cutoff check runs
	CREATE TABLE IF NOT EXISTS cutoff_runs (
		id TEXT PRIMARY KEY,
		target_date TEXT NOT NULL,
		status TEXT NOT NULL,
		employees INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		details_json TEXT,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_cutoff_runs_started
		ON cutoff_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"workflow_comments", "workflows", "requests", "substitutes", "suspensions",
		"schedules", "cutoff_runs", "effective_records", "sequences",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nextSeq increments and returns the named sequence. The sequence never
// falls behind the largest id already in column of table, so explicitly
// inserted ids are not handed out again.
func nextSeq(ctx context.Context, db execer, name, table, column string) (int64, error) {
	var floor int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX("+column+"), 0) FROM "+table).Scan(&floor); err != nil {
		return 0, err
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(sequences.value, ?) + 1
	`, name, floor+1, floor)
	if err != nil {
		return 0, err
	}
	var v int64
	err = db.QueryRowContext(ctx, "SELECT value FROM sequences WHERE name = ?", name).Scan(&v)
	return v, err
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return generic.FormatISO(t)
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := generic.ParseDate(s)
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// infra wraps a driver error for the core.
func infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &generic.InfrastructureError{Op: "sqlite: " + op, Err: err}
}
