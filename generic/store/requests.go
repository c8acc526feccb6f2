package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// REQUEST MEMORY STORE
// =============================================================================

type Requests struct {
	mu          sync.RWMutex
	requests    map[int64]attendance.Request
	deleted     map[int64]bool
	substitutes []attendance.Substitute
	suspensions []attendance.Suspension
	schedules   map[string]map[string]string // personalID -> date -> work type
	nextID      int64
}

var _ attendance.Store = (*Requests)(nil)

func NewRequests() *Requests {
	return &Requests{
		requests:  make(map[int64]attendance.Request),
		deleted:   make(map[int64]bool),
		schedules: make(map[string]map[string]string),
	}
}

func (s *Requests) NextRequestID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *Requests) SaveRequest(_ context.Context, r attendance.Request) error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: request id is required", generic.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
	delete(s.deleted, r.ID)
	if r.ID > s.nextID {
		s.nextID = r.ID
	}
	return nil
}

func (s *Requests) DeleteRequest(_ context.Context, workflowID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.requests {
		if r.WorkflowID == workflowID && !s.deleted[id] {
			s.deleted[id] = true
			return nil
		}
	}
	return fmt.Errorf("%w: request for workflow %d", generic.ErrNotFound, workflowID)
}

func (s *Requests) GetRequestByWorkflow(_ context.Context, workflowID int64) (attendance.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, r := range s.requests {
		if r.WorkflowID == workflowID && !s.deleted[id] {
			return r, nil
		}
	}
	return attendance.Request{}, fmt.Errorf("%w: request for workflow %d", generic.ErrNotFound, workflowID)
}

func (s *Requests) ListRequests(_ context.Context, personalID string, from, to time.Time) ([]attendance.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Request
	for id, r := range s.requests {
		if s.deleted[id] || r.PersonalID != personalID {
			continue
		}
		end := r.Date
		if r.Kind == attendance.KindHoliday && !r.EndDate.IsZero() {
			end = r.EndDate
		}
		if overlaps(r.Date, end, from, to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Requests) SaveSubstitute(_ context.Context, sub attendance.Substitute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.substitutes = append(s.substitutes, sub)
	return nil
}

func (s *Requests) ListSubstitutes(_ context.Context, personalID string, from, to time.Time) ([]attendance.Substitute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Substitute
	for _, sub := range s.substitutes {
		if sub.PersonalID == personalID && overlaps(sub.Date, sub.Date, from, to) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Requests) SaveSuspension(_ context.Context, sus attendance.Suspension) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspensions = append(s.suspensions, sus)
	return nil
}

func (s *Requests) ListSuspensions(_ context.Context, personalID string) ([]attendance.Suspension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Suspension
	for _, sus := range s.suspensions {
		if sus.PersonalID == personalID {
			out = append(out, sus)
		}
	}
	return out, nil
}

func (s *Requests) SaveSchedule(_ context.Context, personalID string, date time.Time, workTypeCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.schedules[personalID]
	if !ok {
		days = make(map[string]string)
		s.schedules[personalID] = days
	}
	days[generic.FormatISO(date)] = workTypeCode
	return nil
}

func (s *Requests) Schedule(_ context.Context, personalID string, from, to time.Time) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for _, d := range generic.DateRange(from, to) {
		key := generic.FormatISO(d)
		if code, ok := s.schedules[personalID][key]; ok {
			out[key] = code
		}
	}
	return out, nil
}

// overlaps reports whether [start, end] intersects [from, to]; zero bounds
// on the query side are open.
func overlaps(start, end, from, to time.Time) bool {
	if !to.IsZero() && generic.TruncateToDay(start).After(generic.TruncateToDay(to)) {
		return false
	}
	if !from.IsZero() && generic.TruncateToDay(end).Before(generic.TruncateToDay(from)) {
		return false
	}
	return true
}
