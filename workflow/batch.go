package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/generic"
)

// BatchItem names one workflow in a batch approval together with the
// request it must belong to.
type BatchItem struct {
	WorkflowID  int64     `json:"workflow_id"`
	PersonalID  string    `json:"personal_id"`
	RequestDate time.Time `json:"request_date"`
}

type BatchResult struct {
	Item     BatchItem
	Workflow *Workflow
	Err      error
}

// Approval approves every item independently. APPLYING workflows advance a
// stage, CANCEL_APPLYING workflows have their reversal approved. A failing
// item is reported in its result and in msgs (when non-nil) and does not
// affect the others.
func (e *Engine) Approval(ctx context.Context, items []BatchItem, actorID, comment string, msgs *generic.Messages) []BatchResult {
	results := make([]BatchResult, len(items))
	approved := 0
	for i, item := range items {
		wf, err := e.approveItem(ctx, item, actorID, comment)
		results[i] = BatchResult{Item: item, Workflow: wf, Err: err}
		if err == nil {
			approved++
			if msgs != nil {
				msgs.AddMessage(generic.MsgApproved, strconv.FormatInt(item.WorkflowID, 10))
			}
			continue
		}
		if msgs != nil && !msgs.AddFromError(err, i) {
			msgs.AddError(generic.MsgInfrastructure, strconv.Itoa(i+1), err.Error())
		}
	}
	e.Logger.Info("batch approval finished",
		zap.String("actor", actorID),
		zap.Int("items", len(items)),
		zap.Int("approved", approved))
	return results
}

func (e *Engine) approveItem(ctx context.Context, item BatchItem, actorID, comment string) (*Workflow, error) {
	wf, err := e.Workflows.Get(ctx, item.WorkflowID)
	if err != nil {
		return nil, generic.Fatal("get workflow", err)
	}
	if wf.RequesterID != item.PersonalID || !generic.SameDay(wf.TargetDate, item.RequestDate) {
		return nil, fmt.Errorf("%w: workflow %d does not belong to %s on %s",
			generic.ErrNotFound, item.WorkflowID, item.PersonalID, generic.FormatISO(item.RequestDate))
	}
	cmd := Command{WorkflowID: wf.ID, ActorID: actorID, Comment: comment}
	if wf.Status == StatusCancelApplying {
		return e.CancelApprove(ctx, cmd)
	}
	return e.Approve(ctx, cmd)
}
