package workflow

import (
	"context"
	"fmt"

	"github.com/warp/attendance-engine/generic"
)

// ParseAction maps an action name (as used in URLs) to an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionApply, ActionWithdraw, ActionApprove, ActionRevert, ActionCancelApply,
		ActionCancelRevert, ActionCancel, ActionCancelApprove, ActionSelfApproval:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown workflow action %q", generic.ErrInvalidInput, s)
}

// Do applies a single-workflow action by name.
func (e *Engine) Do(ctx context.Context, action Action, cmd Command) (*Workflow, error) {
	switch action {
	case ActionApply:
		return e.Appli(ctx, cmd)
	case ActionWithdraw:
		return e.Withdrawn(ctx, cmd)
	case ActionApprove:
		return e.Approve(ctx, cmd)
	case ActionRevert:
		return e.Revert(ctx, cmd)
	case ActionCancelApply:
		return e.CancelAppli(ctx, cmd)
	case ActionCancelRevert:
		return e.CancelRevert(ctx, cmd)
	case ActionCancel:
		return e.Cancel(ctx, cmd)
	case ActionCancelApprove:
		return e.CancelApprove(ctx, cmd)
	case ActionSelfApproval:
		return e.SetSelfApproval(ctx, cmd)
	}
	return nil, fmt.Errorf("%w: unsupported workflow action %q", generic.ErrInvalidInput, action)
}
