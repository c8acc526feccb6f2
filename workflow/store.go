package workflow

import (
	"context"
	"time"
)

// Store persists workflows and their comment trail.
//
// Writes are conditional: Save and Delete succeed only if the stored version
// equals expected, and fail with generic.ErrExclusiveControl otherwise. The
// workflow row and its comments are written atomically.
type Store interface {
	NextID(ctx context.Context) (int64, error)

	// Get returns generic.ErrNotFound for unknown or deleted workflows.
	Get(ctx context.Context, id int64) (Workflow, error)

	// GetMany skips unknown ids.
	GetMany(ctx context.Context, ids []int64) (map[int64]Workflow, error)

	// Insert stores a new workflow at wf.Version.
	Insert(ctx context.Context, wf Workflow, comments ...Comment) error

	// Save replaces the workflow if its stored version equals expected.
	Save(ctx context.Context, wf Workflow, expected int64, comments ...Comment) error

	// Delete logically deletes the workflow and its comments.
	Delete(ctx context.Context, id int64, expected int64) error

	// Comments returns the trail ordered by time of entry.
	Comments(ctx context.Context, id int64) ([]Comment, error)

	// ListPending returns workflows whose current stage lists approverID.
	ListPending(ctx context.Context, approverID string) ([]Workflow, error)

	// ListByRequester returns the requester's workflows with target dates in
	// [from, to]; zero bounds are open.
	ListByRequester(ctx context.Context, requesterID string, from, to time.Time) ([]Workflow, error)
}

// RouteResolver picks the route code for a requester on a date.
type RouteResolver interface {
	RouteFor(ctx context.Context, personalID string, date time.Time, workflowType string) (string, error)
}
