package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

func TestApproval_FailingItemDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, []string{"A1"})

	// GIVEN: three applied requests, the second withdrawn by its requester
	first := applied(t, e, "P1")
	second := applied(t, e, "P2")
	third := applied(t, e, "P3")
	_, err := e.Withdrawn(ctx, workflow.Command{WorkflowID: second.ID, ActorID: "P2"})
	require.NoError(t, err)

	items := []workflow.BatchItem{
		{WorkflowID: first.ID, PersonalID: "P1", RequestDate: target},
		{WorkflowID: second.ID, PersonalID: "P2", RequestDate: target},
		{WorkflowID: third.ID, PersonalID: "P3", RequestDate: target},
	}
	msgs := generic.NewMessages()

	// WHEN
	results := e.Approval(ctx, items, "A1", "ok", msgs)

	// THEN: items 1 and 3 approved, item 2 reported against row 2
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, generic.ErrIllegalTransition)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, workflow.StatusApproved, results[0].Workflow.Status)
	assert.Equal(t, workflow.StatusApproved, results[2].Workflow.Status)

	require.Len(t, msgs.Errors(), 1)
	assert.Equal(t, generic.MsgWorkflowProcessFailed, msgs.Errors()[0].Code)
	assert.Equal(t, 1, msgs.Errors()[0].Row)
	assert.Len(t, msgs.Notices(), 2)

	got, err := e.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusWithdrawn, got.Status)
}

func TestApproval_ApprovesCancelRequests(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, []string{"A1"})
	wf := applied(t, e, "P1")
	_, err := e.Approve(ctx, workflow.Command{WorkflowID: wf.ID, ActorID: "A1"})
	require.NoError(t, err)
	_, err = e.CancelAppli(ctx, workflow.Command{WorkflowID: wf.ID, ActorID: "P1"})
	require.NoError(t, err)

	results := e.Approval(ctx, []workflow.BatchItem{{WorkflowID: wf.ID, PersonalID: "P1", RequestDate: target}}, "A1", "", nil)

	require.NoError(t, results[0].Err)
	assert.Equal(t, workflow.StatusCanceled, results[0].Workflow.Status)
}

func TestApproval_ItemMustMatchRequest(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, []string{"A1"})
	wf := applied(t, e, "P1")

	results := e.Approval(ctx, []workflow.BatchItem{
		{WorkflowID: wf.ID, PersonalID: "P2", RequestDate: target},
		{WorkflowID: wf.ID, PersonalID: "P1", RequestDate: target.AddDate(0, 0, 1)},
		{WorkflowID: 999, PersonalID: "P1", RequestDate: target},
	}, "A1", "", generic.NewMessages())

	for _, r := range results {
		assert.ErrorIs(t, r.Err, generic.ErrNotFound)
	}
	got, err := e.Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApplying, got.Status)
	assert.True(t, got.TargetDate.Equal(generic.TruncateToDay(target)))
	assert.Equal(t, time.October, got.TargetDate.Month())
}
