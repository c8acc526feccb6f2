package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// REQUEST STORE (attendance.Store interface)
// =============================================================================

// Requests is the attendance.Store view of a Store. Request payloads are JSON;
// the columns beside them exist for lookups.
type Requests struct {
	s *Store
}

var _ attendance.Store = (*Requests)(nil)

func (s *Store) Requests() *Requests {
	return &Requests{s: s}
}

func (r *Requests) NextRequestID(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, err := nextSeq(ctx, r.s.db, "request", "requests", "id")
	return id, infra("next request id", err)
}

func (r *Requests) SaveRequest(ctx context.Context, req attendance.Request) error {
	if req.ID <= 0 {
		return fmt.Errorf("%w: request id is required", generic.ErrInvalidInput)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", generic.ErrInvalidInput, err)
	}
	end := req.Date
	if req.Kind == attendance.KindHoliday && !req.EndDate.IsZero() {
		end = req.EndDate
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO requests (id, workflow_id, personal_id, kind, request_date, end_date, payload, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			personal_id = excluded.personal_id,
			kind = excluded.kind,
			request_date = excluded.request_date,
			end_date = excluded.end_date,
			payload = excluded.payload,
			deleted = 0,
			updated_at = excluded.updated_at
	`,
		req.ID, req.WorkflowID, req.PersonalID, req.Kind.String(),
		formatDate(req.Date), formatDate(end), string(payload), formatTime(time.Now()),
	)
	return infra("save request", err)
}

func (r *Requests) DeleteRequest(ctx context.Context, workflowID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	res, err := r.s.db.ExecContext(ctx, `
		UPDATE requests SET deleted = 1, updated_at = ?
		WHERE workflow_id = ? AND deleted = 0
	`, formatTime(time.Now()), workflowID)
	if err != nil {
		return infra("delete request", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: request for workflow %d", generic.ErrNotFound, workflowID)
	}
	return nil
}

func (r *Requests) GetRequestByWorkflow(ctx context.Context, workflowID int64) (attendance.Request, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var payload string
	err := r.s.db.QueryRowContext(ctx,
		"SELECT payload FROM requests WHERE workflow_id = ? AND deleted = 0 ORDER BY id LIMIT 1",
		workflowID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Request{}, fmt.Errorf("%w: request for workflow %d", generic.ErrNotFound, workflowID)
	}
	if err != nil {
		return attendance.Request{}, infra("get request", err)
	}
	var req attendance.Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return attendance.Request{}, infra("decode request", err)
	}
	return req, nil
}

// ListRequests matches on span overlap; zero bounds are open.
func (r *Requests) ListRequests(ctx context.Context, personalID string, from, to time.Time) ([]attendance.Request, error) {
	query := "SELECT payload FROM requests WHERE deleted = 0 AND personal_id = ?"
	args := []any{personalID}
	if !to.IsZero() {
		query += " AND request_date <= ?"
		args = append(args, formatDate(to))
	}
	if !from.IsZero() {
		query += " AND end_date >= ?"
		args = append(args, formatDate(from))
	}
	query += " ORDER BY request_date ASC, id ASC"

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, infra("list requests", err)
	}
	defer rows.Close()

	var out []attendance.Request
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, infra("scan request", err)
		}
		var req attendance.Request
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return nil, infra("decode request", err)
		}
		out = append(out, req)
	}
	return out, infra("list requests", rows.Err())
}

// =============================================================================
// CALENDAR INPUTS
// =============================================================================

func (r *Requests) SaveSubstitute(ctx context.Context, sub attendance.Substitute) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO substitutes (personal_id, substitute_date, day_range, workflow_id)
		VALUES (?, ?, ?, ?)
	`, sub.PersonalID, formatDate(sub.Date), int(sub.Range), sub.WorkflowID)
	return infra("save substitute", err)
}

func (r *Requests) ListSubstitutes(ctx context.Context, personalID string, from, to time.Time) ([]attendance.Substitute, error) {
	query := "SELECT personal_id, substitute_date, day_range, workflow_id FROM substitutes WHERE personal_id = ?"
	args := []any{personalID}
	if !from.IsZero() {
		query += " AND substitute_date >= ?"
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += " AND substitute_date <= ?"
		args = append(args, formatDate(to))
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows, err := r.s.db.QueryContext(ctx, query+" ORDER BY id ASC", args...)
	if err != nil {
		return nil, infra("list substitutes", err)
	}
	defer rows.Close()

	var out []attendance.Substitute
	for rows.Next() {
		var (
			sub  attendance.Substitute
			date string
			rng  int
		)
		if err := rows.Scan(&sub.PersonalID, &date, &rng, &sub.WorkflowID); err != nil {
			return nil, infra("scan substitute", err)
		}
		sub.Date = parseDate(date)
		sub.Range = attendance.DayRange(rng)
		out = append(out, sub)
	}
	return out, infra("list substitutes", rows.Err())
}

func (r *Requests) SaveSuspension(ctx context.Context, sus attendance.Suspension) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO suspensions (personal_id, start_date, end_date, reason)
		VALUES (?, ?, ?, ?)
	`, sus.PersonalID, formatDate(sus.Start), nullString(formatDate(sus.End)), nullString(sus.Reason))
	return infra("save suspension", err)
}

func (r *Requests) ListSuspensions(ctx context.Context, personalID string) ([]attendance.Suspension, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows, err := r.s.db.QueryContext(ctx, `
		SELECT personal_id, start_date, end_date, reason FROM suspensions
		WHERE personal_id = ? ORDER BY start_date ASC, id ASC
	`, personalID)
	if err != nil {
		return nil, infra("list suspensions", err)
	}
	defer rows.Close()

	var out []attendance.Suspension
	for rows.Next() {
		var (
			sus         attendance.Suspension
			start       string
			end, reason sql.NullString
		)
		if err := rows.Scan(&sus.PersonalID, &start, &end, &reason); err != nil {
			return nil, infra("scan suspension", err)
		}
		sus.Start = parseDate(start)
		sus.End = parseDate(end.String)
		sus.Reason = reason.String
		out = append(out, sus)
	}
	return out, infra("list suspensions", rows.Err())
}

func (r *Requests) SaveSchedule(ctx context.Context, personalID string, date time.Time, workTypeCode string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO schedules (personal_id, schedule_date, work_type_code) VALUES (?, ?, ?)
		ON CONFLICT(personal_id, schedule_date) DO UPDATE SET work_type_code = excluded.work_type_code
	`, personalID, formatDate(date), workTypeCode)
	return infra("save schedule", err)
}

func (r *Requests) Schedule(ctx context.Context, personalID string, from, to time.Time) (map[string]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows, err := r.s.db.QueryContext(ctx, `
		SELECT schedule_date, work_type_code FROM schedules
		WHERE personal_id = ? AND schedule_date >= ? AND schedule_date <= ?
	`, personalID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, infra("load schedule", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var date, code string
		if err := rows.Scan(&date, &code); err != nil {
			return nil, infra("scan schedule", err)
		}
		out[date] = code
	}
	return out, infra("load schedule", rows.Err())
}
