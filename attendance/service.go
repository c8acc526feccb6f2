package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// RequestWorkflow is the workflow surface shared by every request kind.
type RequestWorkflow interface {
	Draft(ctx context.Context, sub Submission, cmd workflow.Command) (Request, *workflow.Workflow, error)
	Apply(ctx context.Context, sub Submission, cmd workflow.Command) (Request, *workflow.Workflow, error)
	Transition(ctx context.Context, action workflow.Action, cmd workflow.Command) (*workflow.Workflow, error)
	Delete(ctx context.Context, cmd workflow.Command) error
}

// Submission is a request plus how its approver chain is chosen.
type Submission struct {
	Request      Request
	SelfApproval bool
	Approvers    [][]string // manual chain; empty means route resolution
}

// Service implements RequestWorkflow once for all kinds.
type Service struct {
	Engine *workflow.Engine
	Store  Store
	Logger *zap.Logger
}

var _ RequestWorkflow = (*Service)(nil)

func NewService(engine *workflow.Engine, store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.L().Named("attendance.service")
	}
	return &Service{Engine: engine, Store: store, Logger: logger}
}

// Validate records every problem with r into msgs.
func Validate(r Request, msgs *generic.Messages, row int) {
	if !r.Kind.valid() {
		msgs.AddFieldError(generic.MsgInvalidValue, "kind", row)
	}
	if r.PersonalID == "" {
		msgs.AddFieldError(generic.MsgRequired, "personal_id", row)
	}
	if r.Date.IsZero() {
		msgs.AddFieldError(generic.MsgRequired, "date", row)
	}
	switch r.Kind {
	case KindHoliday:
		if !r.EndDate.IsZero() && r.EndDate.Before(r.Date) {
			msgs.AddFieldError(generic.MsgDateRange, "end_date", row)
		}
	case KindOvertime:
		if r.OvertimeType != OvertimeBefore && r.OvertimeType != OvertimeAfter {
			msgs.AddFieldError(generic.MsgInvalidValue, "overtime_type", row)
		}
		if r.Minutes < 0 {
			msgs.AddFieldError(generic.MsgInvalidValue, "minutes", row)
		}
	case KindAttendance:
		if r.OvertimeBefore < 0 {
			msgs.AddFieldError(generic.MsgInvalidValue, "overtime_before", row)
		}
		if r.OvertimeAfter < 0 {
			msgs.AddFieldError(generic.MsgInvalidValue, "overtime_after", row)
		}
		if !r.StartTime.IsZero() && !r.EndTime.IsZero() && r.EndTime.Before(r.StartTime) {
			msgs.AddFieldError(generic.MsgDateRange, "end_time", row)
		}
	case KindWorkOnHoliday, KindWorkTypeChange:
		if r.WorkTypeCode == "" {
			msgs.AddFieldError(generic.MsgRequired, "work_type_code", row)
		}
	}
}

// Draft saves the request with its workflow in DRAFT.
func (s *Service) Draft(ctx context.Context, sub Submission, cmd workflow.Command) (Request, *workflow.Workflow, error) {
	return s.draft(ctx, sub, cmd)
}

// Apply submits the request. A new request is drafted first and removed
// again if its submission fails. An existing DRAFT or REJECTED request is
// resubmitted in one workflow write; on failure the workflow is untouched
// and the previous request payload is restored.
func (s *Service) Apply(ctx context.Context, sub Submission, cmd workflow.Command) (Request, *workflow.Workflow, error) {
	if sub.Request.WorkflowID != 0 {
		return s.reapply(ctx, sub, cmd)
	}
	r, wf, err := s.draft(ctx, sub, cmd)
	if err != nil {
		return Request{}, nil, err
	}

	applied, err := s.Engine.Appli(ctx, workflow.Command{WorkflowID: wf.ID, Version: wf.Version, ActorID: cmd.ActorID, Comment: cmd.Comment})
	if err != nil {
		s.rollback(ctx, true, wf, nil)
		return Request{}, nil, err
	}
	s.logApplied(r, applied)
	return r, applied, nil
}

// Transition applies a workflow action to the request's workflow.
func (s *Service) Transition(ctx context.Context, action workflow.Action, cmd workflow.Command) (*workflow.Workflow, error) {
	return s.Engine.Do(ctx, action, cmd)
}

// Delete deletes the workflow, then the request attached to it.
func (s *Service) Delete(ctx context.Context, cmd workflow.Command) error {
	if err := s.Engine.Delete(ctx, cmd); err != nil {
		return err
	}
	if err := s.Store.DeleteRequest(ctx, cmd.WorkflowID); err != nil && !generic.IsNotFound(err) {
		return generic.Fatal("delete request", err)
	}
	return nil
}

// prepare validates r and normalises its dates. For an existing workflow it
// also returns the stored request, which must have the same requester and
// kind.
func (s *Service) prepare(ctx context.Context, r Request) (Request, *Request, error) {
	msgs := generic.NewMessages()
	Validate(r, msgs, generic.NoRow)
	if msgs.HasError() {
		return Request{}, nil, &ValidationError{Messages: msgs.Errors()}
	}
	r.Date = generic.TruncateToDay(r.Date)
	r.EndDate = generic.TruncateToDay(r.EndDate)
	if r.WorkflowID == 0 {
		return r, nil, nil
	}

	old, err := s.Store.GetRequestByWorkflow(ctx, r.WorkflowID)
	if err != nil {
		return Request{}, nil, generic.Fatal("get request", err)
	}
	if r.PersonalID != old.PersonalID {
		msgs.AddFieldError(generic.MsgInvalidValue, "personal_id", generic.NoRow, old.PersonalID)
	}
	if r.Kind != old.Kind {
		msgs.AddFieldError(generic.MsgInvalidValue, "kind", generic.NoRow, old.Kind.String())
	}
	if msgs.HasError() {
		return Request{}, nil, &ValidationError{Messages: msgs.Errors()}
	}
	if r.ID == 0 {
		r.ID = old.ID
	}
	return r, &old, nil
}

func (s *Service) redraftInput(r Request, sub Submission, cmd workflow.Command) workflow.DraftInput {
	return workflow.DraftInput{
		WorkflowID:   r.WorkflowID,
		Version:      cmd.Version,
		FunctionCode: r.Kind.FunctionCode(),
		RequesterID:  r.PersonalID,
		TargetDate:   r.Date,
		SelfApproval: sub.SelfApproval,
		ActorID:      cmd.ActorID,
		Comment:      cmd.Comment,
	}
}

// draft saves the request with its workflow in DRAFT, creating the workflow
// when the request has none.
func (s *Service) draft(ctx context.Context, sub Submission, cmd workflow.Command) (Request, *workflow.Workflow, error) {
	r, previous, err := s.prepare(ctx, sub.Request)
	if err != nil {
		return Request{}, nil, err
	}

	created := r.WorkflowID == 0
	var wf *workflow.Workflow
	if created {
		wf, err = s.Engine.Draft(ctx, workflow.DraftInput{
			FunctionCode: r.Kind.FunctionCode(),
			WorkflowType: r.Kind.WorkflowType(),
			RequesterID:  r.PersonalID,
			TargetDate:   r.Date,
			SelfApproval: sub.SelfApproval,
			ActorID:      cmd.ActorID,
			Comment:      cmd.Comment,
		})
	} else {
		wf, err = s.Engine.Draft(ctx, s.redraftInput(r, sub, cmd))
	}
	if err != nil {
		return Request{}, nil, err
	}

	if len(sub.Approvers) > 0 {
		manual, err := s.Engine.SetApproverIDs(ctx, workflow.Command{WorkflowID: wf.ID, Version: wf.Version, ActorID: cmd.ActorID}, sub.Approvers)
		if err != nil {
			s.rollback(ctx, created, wf, nil)
			return Request{}, nil, err
		}
		wf = manual
	}

	r.WorkflowID = wf.ID
	if r.ID == 0 {
		if r.ID, err = s.Store.NextRequestID(ctx); err != nil {
			s.rollback(ctx, created, wf, nil)
			return Request{}, nil, generic.Fatal("next request id", err)
		}
	}
	r.UpdatedAt = wf.UpdatedAt
	if err := s.Store.SaveRequest(ctx, r); err != nil {
		s.rollback(ctx, created, wf, previous)
		return Request{}, nil, generic.Fatal("save request", err)
	}
	return r, wf, nil
}

// reapply saves the corrected request, then re-drafts and submits its
// workflow with a single conditional write.
func (s *Service) reapply(ctx context.Context, sub Submission, cmd workflow.Command) (Request, *workflow.Workflow, error) {
	r, previous, err := s.prepare(ctx, sub.Request)
	if err != nil {
		return Request{}, nil, err
	}
	cur, err := s.Engine.Get(ctx, r.WorkflowID)
	if err != nil {
		return Request{}, nil, err
	}
	r.UpdatedAt = s.now()
	if err := s.Store.SaveRequest(ctx, r); err != nil {
		s.rollback(ctx, false, cur, previous)
		return Request{}, nil, generic.Fatal("save request", err)
	}

	applied, err := s.Engine.Reapply(ctx, s.redraftInput(r, sub, cmd), sub.Approvers)
	if err != nil {
		s.rollback(ctx, false, cur, previous)
		return Request{}, nil, err
	}
	s.logApplied(r, applied)
	return r, applied, nil
}

func (s *Service) now() time.Time {
	if s.Engine.Now == nil {
		return time.Now()
	}
	return s.Engine.Now()
}

func (s *Service) logApplied(r Request, wf *workflow.Workflow) {
	s.Logger.Info("request applied",
		zap.String("kind", r.Kind.String()),
		zap.String("personal_id", r.PersonalID),
		zap.Int64("workflow_id", wf.ID),
		zap.String("status", string(wf.Status)))
}

// rollback undoes a failed draft or submission: a new workflow and its
// request are deleted, an existing request gets its previous payload back.
func (s *Service) rollback(ctx context.Context, created bool, wf *workflow.Workflow, previous *Request) {
	if wf == nil {
		return
	}
	if created {
		if err := s.Engine.Delete(ctx, workflow.Command{WorkflowID: wf.ID}); err != nil {
			s.Logger.Error("rollback workflow failed", zap.Int64("workflow_id", wf.ID), zap.Error(err))
		}
		if err := s.Store.DeleteRequest(ctx, wf.ID); err != nil && !generic.IsNotFound(err) {
			s.Logger.Error("rollback request failed", zap.Int64("workflow_id", wf.ID), zap.Error(err))
		}
		return
	}
	if previous != nil {
		if err := s.Store.SaveRequest(ctx, *previous); err != nil {
			s.Logger.Error("restore request failed", zap.Int64("workflow_id", wf.ID), zap.Error(err))
		}
	}
}

// ValidationError carries every validation message found in one pass.
type ValidationError struct {
	Messages []generic.Message
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s %s (+%d more)", e.Messages[0].Code, e.Messages[0].Field, len(e.Messages)-1)
}

func (e *ValidationError) Unwrap() error { return generic.ErrInvalidInput }

// AsValidation extracts a ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}
