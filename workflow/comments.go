package workflow

import (
	"context"

	"github.com/warp/attendance-engine/generic"
)

// CommentHistory returns the full trail of a workflow, oldest first.
func (e *Engine) CommentHistory(ctx context.Context, workflowID int64) ([]Comment, error) {
	comments, err := e.Workflows.Comments(ctx, workflowID)
	if err != nil {
		return nil, generic.Fatal("load comments", err)
	}
	return comments, nil
}

// LatestComment returns the newest trail entry.
func (e *Engine) LatestComment(ctx context.Context, workflowID int64) (Comment, bool, error) {
	comments, err := e.CommentHistory(ctx, workflowID)
	if err != nil || len(comments) == 0 {
		return Comment{}, false, err
	}
	return comments[len(comments)-1], true, nil
}

// Pending returns workflows waiting on approverID.
func (e *Engine) Pending(ctx context.Context, approverID string) ([]Workflow, error) {
	wfs, err := e.Workflows.ListPending(ctx, approverID)
	if err != nil {
		return nil, generic.Fatal("list pending", err)
	}
	return wfs, nil
}
