package detect

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// Loader assembles an Input from the stores.
type Loader struct {
	Employees generic.EmployeeDirectory
	Requests  attendance.Store
	Workflows workflow.Store
}

// Load reads everything detection needs for personalID over [from, to].
// The employee is taken as of to, falling back to from.
func (l *Loader) Load(ctx context.Context, personalID string, from, to time.Time) (Input, error) {
	from, to = generic.TruncateToDay(from), generic.TruncateToDay(to)
	if personalID == "" || from.IsZero() || to.IsZero() || to.Before(from) {
		return Input{}, fmt.Errorf("%w: personal id and a valid term are required", generic.ErrInvalidInput)
	}
	in := Input{TargetDates: generic.DateRange(from, to)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emp, ok, err := l.Employees.FindAsOf(gctx, personalID, to)
		if err == nil && !ok {
			emp, ok, err = l.Employees.FindAsOf(gctx, personalID, from)
		}
		if err != nil {
			return generic.Fatal("find employee", err)
		}
		if !ok {
			return fmt.Errorf("%w: employee %s", generic.ErrNotFound, personalID)
		}
		in.Employee = emp
		return nil
	})
	g.Go(func() error {
		reqs, err := l.Requests.ListRequests(gctx, personalID, from, to)
		in.Requests = reqs
		return generic.Fatal("list requests", err)
	})
	g.Go(func() error {
		subs, err := l.Requests.ListSubstitutes(gctx, personalID, from, to)
		in.Substitutes = subs
		return generic.Fatal("list substitutes", err)
	})
	g.Go(func() error {
		sus, err := l.Requests.ListSuspensions(gctx, personalID)
		in.Suspensions = sus
		return generic.Fatal("list suspensions", err)
	})
	g.Go(func() error {
		sched, err := l.Requests.Schedule(gctx, personalID, from, to)
		in.Schedule = sched
		return generic.Fatal("load schedule", err)
	})
	if err := g.Wait(); err != nil {
		return Input{}, err
	}

	ids := make([]int64, 0, len(in.Requests)+len(in.Substitutes))
	for _, r := range in.Requests {
		ids = append(ids, r.WorkflowID)
	}
	for _, s := range in.Substitutes {
		ids = append(ids, s.WorkflowID)
	}
	wfs, err := l.Workflows.GetMany(ctx, ids)
	if err != nil {
		return Input{}, generic.Fatal("load workflows", err)
	}
	in.Workflows = wfs
	return in, nil
}

// Result is the outcome of a full (non-immediate) run.
type Result struct {
	PersonalID             string   `json:"personal_id"`
	HasUnapproved          bool     `json:"has_unapproved"`
	HasUnsubmitted         bool     `json:"has_unsubmitted"`
	HasUnsubmittedOvertime bool     `json:"has_unsubmitted_overtime"`
	Details                []Detail `json:"details"`
}

func (r Result) Blocked() bool {
	return r.HasUnapproved || r.HasUnsubmitted || r.HasUnsubmittedOvertime
}

// Run evaluates all three queries. A zero before leaves the range alone.
func Run(in Input, before time.Time, immediate bool) Result {
	d := New(in)
	if !before.IsZero() {
		d.SetBeforeDay(before)
	}
	return Result{
		PersonalID:             in.Employee.PersonalID,
		HasUnapproved:          d.HasUnapproved(immediate),
		HasUnsubmitted:         d.HasUnsubmitted(immediate),
		HasUnsubmittedOvertime: d.HasUnsubmittedOvertime(immediate),
		Details:                d.Details(),
	}
}
