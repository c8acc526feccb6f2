package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/detect"
	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// CUTOFF RUNS STORE
// =============================================================================

// Cutoff run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// CutoffRun records one scheduled or manual cutoff check over all employees.
// Results holds only the employees that are blocked.
type CutoffRun struct {
	ID          string          `json:"id"`
	TargetDate  time.Time       `json:"target_date"`
	Status      string          `json:"status"`
	Employees   int             `json:"employees"`
	Blocked     int             `json:"blocked"`
	Results     []detect.Result `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// SaveCutoffRun inserts or updates a run by ID.
func (s *Store) SaveCutoffRun(ctx context.Context, r CutoffRun) error {
	details, err := json.Marshal(r.Results)
	if err != nil {
		return fmt.Errorf("%w: encode cutoff results: %v", generic.ErrInvalidInput, err)
	}
	var completedAt sql.NullString
	if r.CompletedAt != nil {
		completedAt = nullString(formatTime(*r.CompletedAt))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cutoff_runs (id, target_date, status, employees, blocked, details_json, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			employees = excluded.employees,
			blocked = excluded.blocked,
			details_json = excluded.details_json,
			error = excluded.error,
			completed_at = excluded.completed_at
	`,
		r.ID, formatDate(r.TargetDate), r.Status, r.Employees, r.Blocked, string(details),
		nullString(r.Error), formatTime(r.StartedAt), completedAt,
	)
	return infra("save cutoff run", err)
}

// GetCutoffRun returns generic.ErrNotFound for unknown ids.
func (s *Store) GetCutoffRun(ctx context.Context, id string) (CutoffRun, error) {
	runs, err := s.listCutoffRuns(ctx, "WHERE id = ?", id)
	if err != nil {
		return CutoffRun{}, err
	}
	if len(runs) == 0 {
		return CutoffRun{}, fmt.Errorf("%w: cutoff run %s", generic.ErrNotFound, id)
	}
	return runs[0], nil
}

// ListCutoffRuns returns runs newest first, optionally filtered by status.
func (s *Store) ListCutoffRuns(ctx context.Context, status string) ([]CutoffRun, error) {
	if status != "" {
		return s.listCutoffRuns(ctx, "WHERE status = ? ORDER BY started_at DESC", status)
	}
	return s.listCutoffRuns(ctx, "ORDER BY started_at DESC")
}

// IsCutoffChecked reports whether a completed run exists for targetDate.
func (s *Store) IsCutoffChecked(ctx context.Context, targetDate time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM cutoff_runs WHERE target_date = ? AND status = ? LIMIT 1
	`, formatDate(targetDate), RunCompleted).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, infra("check cutoff run", err)
	}
	return true, nil
}

func (s *Store) listCutoffRuns(ctx context.Context, where string, args ...any) ([]CutoffRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_date, status, employees, blocked, details_json, error, started_at, completed_at
		FROM cutoff_runs `+where, args...)
	if err != nil {
		return nil, infra("list cutoff runs", err)
	}
	defer rows.Close()

	var runs []CutoffRun
	for rows.Next() {
		var (
			r                        CutoffRun
			target, startedAt        string
			details, errText, doneAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &target, &r.Status, &r.Employees, &r.Blocked,
			&details, &errText, &startedAt, &doneAt); err != nil {
			return nil, infra("scan cutoff run", err)
		}
		r.TargetDate = parseDate(target)
		r.StartedAt = parseTime(startedAt)
		r.Error = errText.String
		if doneAt.Valid {
			t := parseTime(doneAt.String)
			r.CompletedAt = &t
		}
		if details.Valid && details.String != "" && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &r.Results); err != nil {
				return nil, infra("decode cutoff results", err)
			}
		}
		runs = append(runs, r)
	}
	return runs, infra("list cutoff runs", rows.Err())
}
