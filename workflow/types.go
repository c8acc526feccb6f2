/*
Package workflow implements the approval state machine shared by every
request kind.

STATES:
  DRAFT ──appli──▶ APPLYING ──approve×N──▶ APPROVED ──cancelAppli──▶ CANCEL_APPLYING
    │                 │  │                     ▲                         │   │
    │                 │  └──revert──▶ REJECTED │◀──────cancelRevert──────┘   │
    │                 │                 │      │                             │
    └──withdrawn──────┴─(stage 0)──▶ WITHDRAWN                 cancel / cancelApprove
                                                                             ▼
                                                                         CANCELED

  REJECTED returns to APPLYING via appli (or to DRAFT via a re-draft).
  APPROVED and WITHDRAWN end a submission round.

APPROVER CHAIN:
  Built on appli from, in order of precedence:
    1. self-approval: one stage whose only approver is the requester,
       advanced immediately so appli alone reaches APPROVED
    2. manual approvers set with SetApproverIDs
    3. the route resolved for (requester, target date, workflow type)

CONCURRENCY:
  Transitions on one workflow id are serialized in-process, and every write
  is conditional on the version read at the start of the operation. A
  mismatch fails with generic.ErrExclusiveControl; nothing is overwritten.

SEE ALSO:
  - engine.go: transitions
  - batch.go: approval over many workflows
  - resolver/: route resolution
*/
package workflow

import (
	"slices"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusApplying       Status = "APPLYING"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
	StatusWithdrawn      Status = "WITHDRAWN"
	StatusCancelApplying Status = "CANCEL_APPLYING"
	StatusCanceled       Status = "CANCELED"
)

// IsNotApproved reports whether the workflow is waiting on an approver:
// APPLYING or CANCEL_APPLYING.
func (s Status) IsNotApproved() bool {
	return s == StatusApplying || s == StatusCancelApplying
}

// IsApplied reports whether the requester has submitted and the submission
// still stands: anything except DRAFT, REJECTED, WITHDRAWN and CANCELED.
func (s Status) IsApplied() bool {
	switch s {
	case StatusApplying, StatusApproved, StatusCancelApplying:
		return true
	}
	return false
}

// IsCompleted reports whether the request counts for aggregation.
func (s Status) IsCompleted() bool { return s == StatusApproved }

// Label is the status text used in cutoff reports.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusApplying:
		return "not approved"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "reverted"
	case StatusWithdrawn:
		return "withdrawn"
	case StatusCancelApplying:
		return "cancel not approved"
	case StatusCanceled:
		return "canceled"
	}
	return string(s)
}

type Action string

const (
	ActionDraft         Action = "draft"
	ActionApply         Action = "appli"
	ActionWithdraw      Action = "withdrawn"
	ActionApprove       Action = "approve"
	ActionRevert        Action = "revert"
	ActionCancelApply   Action = "cancel_appli"
	ActionCancelRevert  Action = "cancel_revert"
	ActionCancel        Action = "cancel"
	ActionCancelApprove Action = "cancel_approve"
	ActionSelfApproval  Action = "self_approval"
	ActionSetApprovers  Action = "set_approvers"
	ActionDelete        Action = "delete"
)

// =============================================================================
// WORKFLOW
// =============================================================================

// Stage is one step of an approver chain. Any listed approver may act.
type Stage struct {
	Approvers []string `json:"approvers"`
}

type Workflow struct {
	ID           int64     `json:"id"`
	FunctionCode string    `json:"function_code"`
	WorkflowType string    `json:"workflow_type"`
	Status       Status    `json:"status"`
	RequesterID  string    `json:"requester_id"`
	TargetDate   time.Time `json:"target_date"`
	RouteCode    string    `json:"route_code,omitempty"`

	// Stage indexes Stages while a chain is in progress. It equals
	// len(Stages) once the chain is complete.
	Stage  int     `json:"stage"`
	Stages []Stage `json:"stages,omitempty"`

	SelfApproval    bool `json:"self_approval"`
	ManualApprovers bool `json:"manual_approvers"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (w Workflow) Clone() Workflow {
	w.Stages = cloneStages(w.Stages)
	return w
}

// CurrentApprovers returns the approvers of the stage awaiting action.
func (w Workflow) CurrentApprovers() []string {
	if w.Stage < 0 || w.Stage >= len(w.Stages) {
		return nil
	}
	return w.Stages[w.Stage].Approvers
}

// IsCurrentApprover reports whether actor may act on the current stage.
func (w Workflow) IsCurrentApprover(actor string) bool {
	return actor != "" && slices.Contains(w.CurrentApprovers(), actor)
}

// OnRoute reports whether actor appears on any stage.
func (w Workflow) OnRoute(actor string) bool {
	if actor == "" {
		return false
	}
	for _, s := range w.Stages {
		if slices.Contains(s.Approvers, actor) {
			return true
		}
	}
	return false
}

func cloneStages(in []Stage) []Stage {
	if in == nil {
		return nil
	}
	out := make([]Stage, len(in))
	for i, s := range in {
		out[i] = Stage{Approvers: slices.Clone(s.Approvers)}
	}
	return out
}

// =============================================================================
// COMMENT TRAIL
// =============================================================================

// Comment is an append-only trail entry. Status and Stage are the values
// after the action.
type Comment struct {
	ID         string    `json:"id"`
	WorkflowID int64     `json:"workflow_id"`
	At         time.Time `json:"at"`
	ActorID    string    `json:"actor_id"`
	Action     Action    `json:"action"`
	Status     Status    `json:"status"`
	Stage      int       `json:"stage"`
	Text       string    `json:"text,omitempty"`
}

// =============================================================================
// ROUTE
// =============================================================================

// Route is an effective-dated approver chain definition. Code is the route code.
type Route struct {
	generic.Version
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}
