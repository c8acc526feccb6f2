package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// =============================================================================
// WORKFLOW STORE (workflow.Store interface)
// =============================================================================

// Workflows is the workflow.Store view of a Store.
type Workflows struct {
	s *Store
}

var _ workflow.Store = (*Workflows)(nil)

func (s *Store) Workflows() *Workflows {
	return &Workflows{s: s}
}

const workflowColumns = `id, function_code, workflow_type, status, requester_id, target_date,
	route_code, stage, stages_json, self_approval, manual_approvers, version, updated_at`

func (w *Workflows) NextID(ctx context.Context) (int64, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	id, err := nextSeq(ctx, w.s.db, "workflow", "workflows", "id")
	return id, infra("next workflow id", err)
}

func (w *Workflows) Get(ctx context.Context, id int64) (workflow.Workflow, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	row := w.s.db.QueryRowContext(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE id = ? AND deleted = 0", id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Workflow{}, fmt.Errorf("%w: workflow %d", generic.ErrNotFound, id)
	}
	if err != nil {
		return workflow.Workflow{}, infra("get workflow", err)
	}
	return wf, nil
}

func (w *Workflows) GetMany(ctx context.Context, ids []int64) (map[int64]workflow.Workflow, error) {
	out := make(map[int64]workflow.Workflow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	wfs, err := w.list(ctx, "SELECT "+workflowColumns+
		" FROM workflows WHERE deleted = 0 AND id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	for _, wf := range wfs {
		out[wf.ID] = wf
	}
	return out, nil
}

func (w *Workflows) Insert(ctx context.Context, wf workflow.Workflow, comments ...workflow.Comment) error {
	stages, err := json.Marshal(wf.Stages)
	if err != nil {
		return fmt.Errorf("%w: encode stages: %v", generic.ErrInvalidInput, err)
	}

	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	tx, err := w.s.db.BeginTx(ctx, nil)
	if err != nil {
		return infra("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows
		(id, function_code, workflow_type, status, requester_id, target_date,
		 route_code, stage, stages_json, self_approval, manual_approvers, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		wf.ID, wf.FunctionCode, wf.WorkflowType, string(wf.Status), wf.RequesterID,
		formatDate(wf.TargetDate), nullString(wf.RouteCode), wf.Stage, string(stages),
		boolInt(wf.SelfApproval), boolInt(wf.ManualApprovers), wf.Version, formatTime(wf.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: workflow %d already exists", generic.ErrInvalidInput, wf.ID)
		}
		return infra("insert workflow", err)
	}
	if err := insertComments(ctx, tx, comments); err != nil {
		return err
	}
	return infra("commit", tx.Commit())
}

func (w *Workflows) Save(ctx context.Context, wf workflow.Workflow, expected int64, comments ...workflow.Comment) error {
	stages, err := json.Marshal(wf.Stages)
	if err != nil {
		return fmt.Errorf("%w: encode stages: %v", generic.ErrInvalidInput, err)
	}

	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	tx, err := w.s.db.BeginTx(ctx, nil)
	if err != nil {
		return infra("begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE workflows SET
			function_code = ?, workflow_type = ?, status = ?, requester_id = ?, target_date = ?,
			route_code = ?, stage = ?, stages_json = ?, self_approval = ?, manual_approvers = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ? AND deleted = 0
	`,
		wf.FunctionCode, wf.WorkflowType, string(wf.Status), wf.RequesterID, formatDate(wf.TargetDate),
		nullString(wf.RouteCode), wf.Stage, string(stages), boolInt(wf.SelfApproval),
		boolInt(wf.ManualApprovers), wf.Version, formatTime(wf.UpdatedAt),
		wf.ID, expected,
	)
	if err != nil {
		return infra("save workflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return conflict(ctx, tx, wf.ID, expected)
	}
	if err := insertComments(ctx, tx, comments); err != nil {
		return err
	}
	return infra("commit", tx.Commit())
}

func (w *Workflows) Delete(ctx context.Context, id int64, expected int64) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	tx, err := w.s.db.BeginTx(ctx, nil)
	if err != nil {
		return infra("begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE workflows SET deleted = 1, updated_at = ?
		WHERE id = ? AND version = ? AND deleted = 0
	`, formatTime(time.Now()), id, expected)
	if err != nil {
		return infra("delete workflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return conflict(ctx, tx, id, expected)
	}
	return infra("commit", tx.Commit())
}

func (w *Workflows) Comments(ctx context.Context, id int64) ([]workflow.Comment, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	rows, err := w.s.db.QueryContext(ctx, `
		SELECT c.id, c.workflow_id, c.at, c.actor_id, c.action, c.status, c.stage, c.text
		FROM workflow_comments c
		JOIN workflows w ON w.id = c.workflow_id
		WHERE c.workflow_id = ? AND w.deleted = 0
		ORDER BY c.seq ASC
	`, id)
	if err != nil {
		return nil, infra("list comments", err)
	}
	defer rows.Close()

	var out []workflow.Comment
	for rows.Next() {
		var (
			c            workflow.Comment
			at           string
			action, stat string
			text         sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.WorkflowID, &at, &c.ActorID, &action, &stat, &c.Stage, &text); err != nil {
			return nil, infra("scan comment", err)
		}
		c.At = parseTime(at)
		c.Action = workflow.Action(action)
		c.Status = workflow.Status(stat)
		c.Text = text.String
		out = append(out, c)
	}
	return out, infra("list comments", rows.Err())
}

// ListPending narrows by status in SQL and by approver in Go, since the
// approver chain is stored as JSON.
func (w *Workflows) ListPending(ctx context.Context, approverID string) ([]workflow.Workflow, error) {
	wfs, err := w.list(ctx, "SELECT "+workflowColumns+` FROM workflows
		WHERE deleted = 0 AND status IN (?, ?) ORDER BY id ASC`,
		string(workflow.StatusApplying), string(workflow.StatusCancelApplying))
	if err != nil {
		return nil, err
	}
	var out []workflow.Workflow
	for _, wf := range wfs {
		if wf.Status == workflow.StatusApplying && wf.IsCurrentApprover(approverID) ||
			wf.Status == workflow.StatusCancelApplying && wf.OnRoute(approverID) {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (w *Workflows) ListByRequester(ctx context.Context, requesterID string, from, to time.Time) ([]workflow.Workflow, error) {
	query := "SELECT " + workflowColumns + " FROM workflows WHERE deleted = 0 AND requester_id = ?"
	args := []any{requesterID}
	if !from.IsZero() {
		query += " AND target_date >= ?"
		args = append(args, formatDate(from))
	}
	if !to.IsZero() {
		query += " AND target_date <= ?"
		args = append(args, formatDate(to))
	}
	return w.list(ctx, query+" ORDER BY id ASC", args...)
}

func (w *Workflows) list(ctx context.Context, query string, args ...any) ([]workflow.Workflow, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()

	rows, err := w.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, infra("list workflows", err)
	}
	defer rows.Close()

	var out []workflow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, infra("scan workflow", err)
		}
		out = append(out, wf)
	}
	return out, infra("list workflows", rows.Err())
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (workflow.Workflow, error) {
	var (
		wf             workflow.Workflow
		status, target string
		route, stages  sql.NullString
		self, manual   int
		updatedAt      string
	)
	err := row.Scan(&wf.ID, &wf.FunctionCode, &wf.WorkflowType, &status, &wf.RequesterID, &target,
		&route, &wf.Stage, &stages, &self, &manual, &wf.Version, &updatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	wf.Status = workflow.Status(status)
	wf.TargetDate = parseDate(target)
	wf.RouteCode = route.String
	wf.SelfApproval = self == 1
	wf.ManualApprovers = manual == 1
	wf.UpdatedAt = parseTime(updatedAt)
	if stages.Valid && stages.String != "" && stages.String != "null" {
		if err := json.Unmarshal([]byte(stages.String), &wf.Stages); err != nil {
			return workflow.Workflow{}, fmt.Errorf("decode stages of workflow %d: %w", wf.ID, err)
		}
	}
	return wf, nil
}

func insertComments(ctx context.Context, tx *sql.Tx, comments []workflow.Comment) error {
	for _, c := range comments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_comments (id, workflow_id, at, actor_id, action, status, stage, text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.WorkflowID, formatTime(c.At), c.ActorID, string(c.Action), string(c.Status),
			c.Stage, nullString(c.Text))
		if err != nil {
			return infra("insert comment", err)
		}
	}
	return nil
}

// conflict explains a conditional write that matched no row.
func conflict(ctx context.Context, tx *sql.Tx, id, expected int64) error {
	var actual int64
	err := tx.QueryRowContext(ctx, "SELECT version FROM workflows WHERE id = ? AND deleted = 0", id).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: workflow %d", generic.ErrNotFound, id)
	}
	if err != nil {
		return infra("check workflow version", err)
	}
	return &generic.ExclusiveControlError{ID: "workflow " + strconv.FormatInt(id, 10), Expected: expected, Actual: actual}
}
