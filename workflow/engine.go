package workflow

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies workflow transitions. It is safe for concurrent use; the
// Resolver may be swapped per logical request with WithResolver.
type Engine struct {
	Workflows Store
	Routes    generic.EffectiveStore[Route]
	Resolver  RouteResolver
	Now       func() time.Time
	Logger    *zap.Logger

	locks *lockTable
}

func NewEngine(workflows Store, routes generic.EffectiveStore[Route], resolver RouteResolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L().Named("workflow.engine")
	}
	return &Engine{
		Workflows: workflows,
		Routes:    routes,
		Resolver:  resolver,
		Now:       time.Now,
		Logger:    logger,
		locks:     &lockTable{entries: make(map[int64]*lockEntry)},
	}
}

// WithResolver returns an engine sharing state with e but resolving routes
// through r, typically a session scoped to one request.
func (e *Engine) WithResolver(r RouteResolver) *Engine {
	c := *e
	c.Resolver = r
	return &c
}

// Command identifies the workflow, the version the caller last read (0 skips
// that check), and the acting user.
type Command struct {
	WorkflowID int64
	Version    int64
	ActorID    string
	Comment    string
}

// DraftInput creates a workflow, or re-drafts an existing DRAFT/REJECTED one
// when WorkflowID is set.
type DraftInput struct {
	WorkflowID   int64
	Version      int64
	FunctionCode string
	WorkflowType string
	RequesterID  string
	TargetDate   time.Time
	SelfApproval bool
	ActorID      string
	Comment      string
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Draft saves a workflow in DRAFT without an approver chain.
func (e *Engine) Draft(ctx context.Context, in DraftInput) (*Workflow, error) {
	if in.WorkflowID != 0 {
		return e.transition(ctx, in.command(), ActionDraft, func(w *Workflow) error {
			return redraft(w, in, ActionDraft)
		})
	}

	if in.RequesterID == "" || in.FunctionCode == "" || in.TargetDate.IsZero() {
		return nil, fmt.Errorf("%w: requester, function code and target date are required", generic.ErrInvalidInput)
	}
	id, err := e.Workflows.NextID(ctx)
	if err != nil {
		return nil, generic.Fatal("next workflow id", err)
	}
	now := e.now()
	wf := Workflow{
		ID:           id,
		FunctionCode: in.FunctionCode,
		WorkflowType: in.WorkflowType,
		Status:       StatusDraft,
		RequesterID:  in.RequesterID,
		TargetDate:   generic.TruncateToDay(in.TargetDate),
		SelfApproval: in.SelfApproval,
		Version:      1,
		UpdatedAt:    now,
	}
	actor := in.ActorID
	if actor == "" {
		actor = in.RequesterID
	}
	if err := e.Workflows.Insert(ctx, wf, e.comment(wf, actor, ActionDraft, in.Comment, now)); err != nil {
		return nil, generic.Fatal("insert workflow", err)
	}
	e.Logger.Info("workflow drafted",
		zap.Int64("workflow_id", id),
		zap.String("requester", in.RequesterID),
		zap.String("function_code", in.FunctionCode))
	return &wf, nil
}

// Appli submits a DRAFT or REJECTED workflow. The approver chain is built
// here; a self-approval workflow is approved before Appli returns.
func (e *Engine) Appli(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transitionWith(ctx, cmd, ActionApply, func(w *Workflow, at time.Time) ([]Comment, error) {
		if w.Status != StatusDraft && w.Status != StatusRejected {
			return nil, illegal(*w, ActionApply)
		}
		return e.submit(ctx, cmd, w, at)
	})
}

// Reapply re-drafts an existing DRAFT or REJECTED workflow with in and
// submits it, in one conditional write. A non-empty stages replaces the
// chain as SetApproverIDs does. If the submission fails the stored workflow
// is unchanged.
func (e *Engine) Reapply(ctx context.Context, in DraftInput, stages [][]string) (*Workflow, error) {
	var chain []Stage
	if len(stages) > 0 {
		var err error
		if chain, err = manualChain(stages); err != nil {
			return nil, err
		}
	}
	cmd := in.command()
	return e.transitionWith(ctx, cmd, ActionApply, func(w *Workflow, at time.Time) ([]Comment, error) {
		if err := redraft(w, in, ActionApply); err != nil {
			return nil, err
		}
		if chain != nil {
			w.Stages = chain
			w.ManualApprovers = true
		}
		return e.submit(ctx, cmd, w, at)
	})
}

// Withdrawn takes back a DRAFT, or an APPLYING workflow nobody has approved yet.
func (e *Engine) Withdrawn(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionWithdraw, func(w *Workflow) error {
		if w.Status != StatusDraft && !(w.Status == StatusApplying && w.Stage == 0) {
			return illegal(*w, ActionWithdraw)
		}
		w.Status = StatusWithdrawn
		return nil
	})
}

// Approve completes the current stage for an approver listed on it.
func (e *Engine) Approve(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionApprove, func(w *Workflow) error {
		if w.Status != StatusApplying {
			return illegal(*w, ActionApprove)
		}
		if !w.IsCurrentApprover(cmd.ActorID) {
			return notApprover(*w, ActionApprove)
		}
		advance(w)
		return nil
	})
}

// Revert sends an APPLYING workflow back to the requester.
func (e *Engine) Revert(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionRevert, func(w *Workflow) error {
		if w.Status != StatusApplying {
			return illegal(*w, ActionRevert)
		}
		if !w.IsCurrentApprover(cmd.ActorID) {
			return notApprover(*w, ActionRevert)
		}
		w.Status = StatusRejected
		w.Stage = 0
		return nil
	})
}

// CancelAppli asks for an approval to be reversed. The same chain is used.
func (e *Engine) CancelAppli(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionCancelApply, func(w *Workflow) error {
		if w.Status != StatusApproved {
			return illegal(*w, ActionCancelApply)
		}
		w.Status = StatusCancelApplying
		w.Stage = 0
		return nil
	})
}

// CancelRevert rejects a reversal request; the original approval stands.
func (e *Engine) CancelRevert(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionCancelRevert, func(w *Workflow) error {
		if w.Status != StatusCancelApplying {
			return illegal(*w, ActionCancelRevert)
		}
		if !w.OnRoute(cmd.ActorID) {
			return notApprover(*w, ActionCancelRevert)
		}
		w.Status = StatusApproved
		w.Stage = len(w.Stages)
		return nil
	})
}

// Cancel is the administrative approval of a reversal request.
func (e *Engine) Cancel(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionCancel, func(w *Workflow) error {
		if w.Status != StatusCancelApplying {
			return illegal(*w, ActionCancel)
		}
		w.Status = StatusCanceled
		return nil
	})
}

// CancelApprove approves a reversal request as an approver on the chain.
func (e *Engine) CancelApprove(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionCancelApprove, func(w *Workflow) error {
		if w.Status != StatusCancelApplying {
			return illegal(*w, ActionCancelApprove)
		}
		if !w.OnRoute(cmd.ActorID) {
			return notApprover(*w, ActionCancelApprove)
		}
		w.Status = StatusCanceled
		return nil
	})
}

// SetSelfApproval marks a workflow so the next Appli approves it outright.
func (e *Engine) SetSelfApproval(ctx context.Context, cmd Command) (*Workflow, error) {
	return e.transition(ctx, cmd, ActionSelfApproval, func(w *Workflow) error {
		if w.Status != StatusDraft && w.Status != StatusRejected {
			return illegal(*w, ActionSelfApproval)
		}
		w.SelfApproval = true
		return nil
	})
}

// SetApproverIDs replaces route resolution with an explicit chain, one
// approver list per stage.
func (e *Engine) SetApproverIDs(ctx context.Context, cmd Command, stages [][]string) (*Workflow, error) {
	chain, err := manualChain(stages)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, cmd, ActionSetApprovers, func(w *Workflow) error {
		if w.Status != StatusDraft && w.Status != StatusRejected {
			return illegal(*w, ActionSetApprovers)
		}
		w.Stages = chain
		w.ManualApprovers = true
		w.RouteCode = ""
		return nil
	})
}

// Delete logically deletes the workflow and its trail. A workflow awaiting
// approver action cannot be deleted.
func (e *Engine) Delete(ctx context.Context, cmd Command) error {
	unlock := e.locks.lock(cmd.WorkflowID)
	defer unlock()

	cur, err := e.load(ctx, cmd)
	if err != nil {
		return err
	}
	if cur.Status.IsNotApproved() {
		err := &generic.TransitionError{WorkflowID: cur.ID, Action: string(ActionDelete), From: string(cur.Status), Err: generic.ErrWorkflowInFlight}
		e.Logger.Warn("workflow delete rejected", zap.Int64("workflow_id", cur.ID), zap.Error(err))
		return err
	}
	if err := e.Workflows.Delete(ctx, cur.ID, cur.Version); err != nil {
		return generic.Fatal("delete workflow", err)
	}
	e.Logger.Info("workflow deleted", zap.Int64("workflow_id", cur.ID), zap.String("actor", cmd.ActorID))
	return nil
}

// Get returns the current workflow.
func (e *Engine) Get(ctx context.Context, id int64) (*Workflow, error) {
	wf, err := e.Workflows.Get(ctx, id)
	if err != nil {
		return nil, generic.Fatal("get workflow", err)
	}
	return &wf, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (e *Engine) transition(ctx context.Context, cmd Command, action Action, apply func(*Workflow) error) (*Workflow, error) {
	return e.transitionWith(ctx, cmd, action, func(w *Workflow, at time.Time) ([]Comment, error) {
		if err := apply(w); err != nil {
			return nil, err
		}
		return []Comment{e.comment(*w, e.actor(cmd, *w), action, cmd.Comment, at)}, nil
	})
}

// transitionWith mutates a copy of the stored workflow and persists it
// conditionally on the version that was read. On any error nothing is written.
func (e *Engine) transitionWith(ctx context.Context, cmd Command, action Action, apply func(*Workflow, time.Time) ([]Comment, error)) (*Workflow, error) {
	unlock := e.locks.lock(cmd.WorkflowID)
	defer unlock()

	e.Logger.Debug("workflow transition",
		zap.Int64("workflow_id", cmd.WorkflowID),
		zap.String("action", string(action)),
		zap.String("actor", cmd.ActorID))

	cur, err := e.load(ctx, cmd)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	at := e.now()
	comments, err := apply(&next, at)
	if err != nil {
		if generic.IsFatal(err) {
			e.Logger.Error("workflow transition failed", zap.Int64("workflow_id", cur.ID), zap.String("action", string(action)), zap.Error(err))
		} else {
			e.Logger.Warn("workflow transition rejected", zap.Int64("workflow_id", cur.ID), zap.String("action", string(action)), zap.Error(err))
		}
		return nil, err
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = at
	if err := e.Workflows.Save(ctx, next, cur.Version, comments...); err != nil {
		if generic.IsRetryable(err) {
			e.Logger.Warn("workflow modified concurrently", zap.Int64("workflow_id", cur.ID), zap.Error(err))
			return nil, err
		}
		return nil, generic.Fatal("save workflow", err)
	}
	e.Logger.Info("workflow transitioned",
		zap.Int64("workflow_id", next.ID),
		zap.String("action", string(action)),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(next.Status)),
		zap.Int("stage", next.Stage))
	return &next, nil
}

func (e *Engine) load(ctx context.Context, cmd Command) (Workflow, error) {
	cur, err := e.Workflows.Get(ctx, cmd.WorkflowID)
	if err != nil {
		return Workflow{}, generic.Fatal("get workflow", err)
	}
	if cmd.Version != 0 && cmd.Version != cur.Version {
		return Workflow{}, &generic.ExclusiveControlError{
			ID:       "workflow " + strconv.FormatInt(cur.ID, 10),
			Expected: cmd.Version,
			Actual:   cur.Version,
		}
	}
	return cur, nil
}

func (in DraftInput) command() Command {
	return Command{WorkflowID: in.WorkflowID, Version: in.Version, ActorID: in.ActorID, Comment: in.Comment}
}

// redraft puts a DRAFT or REJECTED workflow back to the start of DRAFT.
// Requester and function code are fixed once the workflow exists.
func redraft(w *Workflow, in DraftInput, action Action) error {
	if w.Status != StatusDraft && w.Status != StatusRejected {
		return illegal(*w, action)
	}
	if in.RequesterID != "" && in.RequesterID != w.RequesterID {
		return fmt.Errorf("%w: workflow %d belongs to %s, not %s", generic.ErrInvalidInput, w.ID, w.RequesterID, in.RequesterID)
	}
	if in.FunctionCode != "" && in.FunctionCode != w.FunctionCode {
		return fmt.Errorf("%w: workflow %d is %s, not %s", generic.ErrInvalidInput, w.ID, w.FunctionCode, in.FunctionCode)
	}
	w.Status = StatusDraft
	w.Stage = 0
	w.SelfApproval = w.SelfApproval || in.SelfApproval
	if !in.TargetDate.IsZero() {
		w.TargetDate = generic.TruncateToDay(in.TargetDate)
	}
	if !w.ManualApprovers {
		w.Stages = nil
		w.RouteCode = ""
	}
	return nil
}

// submit moves w to APPLYING at stage 0 with a freshly built chain.
func (e *Engine) submit(ctx context.Context, cmd Command, w *Workflow, at time.Time) ([]Comment, error) {
	code, stages, err := e.chainFor(ctx, *w)
	if err != nil {
		return nil, err
	}
	w.RouteCode = code
	w.Stages = stages
	w.Stage = 0
	w.Status = StatusApplying
	comments := []Comment{e.comment(*w, e.actor(cmd, *w), ActionApply, cmd.Comment, at)}

	if w.SelfApproval {
		for w.Status == StatusApplying {
			approver := w.CurrentApprovers()[0]
			advance(w)
			comments = append(comments, e.comment(*w, approver, ActionApprove, cmd.Comment, at))
		}
	}
	return comments, nil
}

func manualChain(stages [][]string) ([]Stage, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: at least one approver stage is required", generic.ErrInvalidInput)
	}
	chain := make([]Stage, len(stages))
	for i, ids := range stages {
		var approvers []string
		for _, id := range ids {
			if id != "" {
				approvers = append(approvers, id)
			}
		}
		if len(approvers) == 0 {
			return nil, fmt.Errorf("%w: stage %d has no approver", generic.ErrInvalidInput, i+1)
		}
		chain[i] = Stage{Approvers: approvers}
	}
	return chain, nil
}

func (e *Engine) chainFor(ctx context.Context, w Workflow) (string, []Stage, error) {
	switch {
	case w.SelfApproval:
		return "", []Stage{{Approvers: []string{w.RequesterID}}}, nil
	case w.ManualApprovers && len(w.Stages) > 0:
		return "", cloneStages(w.Stages), nil
	}
	if e.Resolver == nil {
		return "", nil, &generic.ResolutionError{PersonalID: w.RequesterID, Date: w.TargetDate, What: "route application"}
	}
	code, err := e.Resolver.RouteFor(ctx, w.RequesterID, w.TargetDate, w.WorkflowType)
	if err != nil {
		return "", nil, err
	}
	route, ok, err := e.Routes.FindLatestAsOf(ctx, code, w.TargetDate)
	if err != nil {
		return "", nil, generic.Fatal("find route", err)
	}
	if !ok || route.Inactive || !usable(route.Stages) {
		return "", nil, &generic.ResolutionError{PersonalID: w.RequesterID, Date: w.TargetDate, What: "approval route " + code}
	}
	return code, cloneStages(route.Stages), nil
}

func (e *Engine) comment(w Workflow, actor string, action Action, text string, at time.Time) Comment {
	return Comment{
		ID:         uuid.NewString(),
		WorkflowID: w.ID,
		At:         at,
		ActorID:    actor,
		Action:     action,
		Status:     w.Status,
		Stage:      w.Stage,
		Text:       text,
	}
}

func (e *Engine) actor(cmd Command, w Workflow) string {
	if cmd.ActorID != "" {
		return cmd.ActorID
	}
	return w.RequesterID
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func usable(stages []Stage) bool {
	if len(stages) == 0 {
		return false
	}
	for _, s := range stages {
		if len(s.Approvers) == 0 {
			return false
		}
	}
	return true
}

func advance(w *Workflow) {
	w.Stage++
	if w.Stage >= len(w.Stages) {
		w.Stage = len(w.Stages)
		w.Status = StatusApproved
	}
}

func illegal(w Workflow, action Action) error {
	return &generic.TransitionError{WorkflowID: w.ID, Action: string(action), From: string(w.Status), Err: generic.ErrIllegalTransition}
}

func notApprover(w Workflow, action Action) error {
	return &generic.TransitionError{WorkflowID: w.ID, Action: string(action), From: string(w.Status), Err: generic.ErrNotApprover}
}

// =============================================================================
// PER-WORKFLOW LOCKS
// =============================================================================

type lockTable struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (t *lockTable) lock(id int64) func() {
	t.mu.Lock()
	le, ok := t.entries[id]
	if !ok {
		le = &lockEntry{}
		t.entries[id] = le
	}
	le.refs++
	t.mu.Unlock()

	le.mu.Lock()
	return func() {
		le.mu.Unlock()
		t.mu.Lock()
		le.refs--
		if le.refs == 0 {
			delete(t.entries, id)
		}
		t.mu.Unlock()
	}
}
