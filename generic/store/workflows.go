package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// =============================================================================
// WORKFLOW MEMORY STORE
// =============================================================================

type Workflows struct {
	mu        sync.RWMutex
	workflows map[int64]workflow.Workflow
	deleted   map[int64]bool
	comments  map[int64][]workflow.Comment
	nextID    int64
}

var _ workflow.Store = (*Workflows)(nil)

func NewWorkflows() *Workflows {
	return &Workflows{
		workflows: make(map[int64]workflow.Workflow),
		deleted:   make(map[int64]bool),
		comments:  make(map[int64][]workflow.Comment),
	}
}

func (s *Workflows) NextID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *Workflows) Get(_ context.Context, id int64) (workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok || s.deleted[id] {
		return workflow.Workflow{}, fmt.Errorf("%w: workflow %d", generic.ErrNotFound, id)
	}
	return wf.Clone(), nil
}

func (s *Workflows) GetMany(_ context.Context, ids []int64) (map[int64]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]workflow.Workflow, len(ids))
	for _, id := range ids {
		if wf, ok := s.workflows[id]; ok && !s.deleted[id] {
			out[id] = wf.Clone()
		}
	}
	return out, nil
}

func (s *Workflows) Insert(_ context.Context, wf workflow.Workflow, comments ...workflow.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[wf.ID]; exists {
		return fmt.Errorf("%w: workflow %d already exists", generic.ErrInvalidInput, wf.ID)
	}
	s.workflows[wf.ID] = wf.Clone()
	s.comments[wf.ID] = append(s.comments[wf.ID], comments...)
	if wf.ID > s.nextID {
		s.nextID = wf.ID
	}
	return nil
}

func (s *Workflows) Save(_ context.Context, wf workflow.Workflow, expected int64, comments ...workflow.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(wf.ID, expected); err != nil {
		return err
	}
	s.workflows[wf.ID] = wf.Clone()
	s.comments[wf.ID] = append(s.comments[wf.ID], comments...)
	return nil
}

func (s *Workflows) Delete(_ context.Context, id int64, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(id, expected); err != nil {
		return err
	}
	s.deleted[id] = true
	return nil
}

func (s *Workflows) checkLocked(id, expected int64) error {
	cur, ok := s.workflows[id]
	if !ok || s.deleted[id] {
		return fmt.Errorf("%w: workflow %d", generic.ErrNotFound, id)
	}
	if cur.Version != expected {
		return &generic.ExclusiveControlError{ID: "workflow " + strconv.FormatInt(id, 10), Expected: expected, Actual: cur.Version}
	}
	return nil
}

func (s *Workflows) Comments(_ context.Context, id int64) ([]workflow.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[id] {
		return nil, nil
	}
	return append([]workflow.Comment(nil), s.comments[id]...), nil
}

func (s *Workflows) ListPending(_ context.Context, approverID string) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Workflow
	for id, wf := range s.workflows {
		if s.deleted[id] || !wf.Status.IsNotApproved() {
			continue
		}
		if wf.Status == workflow.StatusApplying && wf.IsCurrentApprover(approverID) ||
			wf.Status == workflow.StatusCancelApplying && wf.OnRoute(approverID) {
			out = append(out, wf.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Workflows) ListByRequester(_ context.Context, requesterID string, from, to time.Time) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Workflow
	for id, wf := range s.workflows {
		if s.deleted[id] || wf.RequesterID != requesterID {
			continue
		}
		if from.IsZero() && to.IsZero() || generic.IntervalContains(wf.TargetDate, from, to) {
			out = append(out, wf.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func sortByID(wfs []workflow.Workflow) {
	sort.Slice(wfs, func(i, j int) bool { return wfs[i].ID < wfs[j].ID })
}
