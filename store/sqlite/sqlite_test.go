package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/detect"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/store/sqlite"
	"github.com/warp/attendance-engine/workflow"
)

func day(m time.Month, d int) time.Time { return generic.NewDate(2025, m, d) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func employee(id int64, eff time.Time, section string) generic.Employee {
	return generic.Employee{
		Version:      generic.Version{RecordID: id, Code: "P1", EffectiveDate: eff},
		PersonalID:   "P1",
		EmployeeCode: "E001",
		SectionCode:  section,
	}
}

// =============================================================================
// EFFECTIVE RECORDS
// =============================================================================

func TestEffective_AsOfLookups(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	emps := sqlite.Family[generic.Employee](s, sqlite.FamilyEmployee)

	// GIVEN: two versions of one employee
	require.NoError(t, emps.InsertVersion(ctx, employee(1, day(1, 1), "S1")))
	require.NoError(t, emps.InsertVersion(ctx, employee(2, day(4, 1), "S2")))

	// THEN: lookups pick the version in force
	got, ok, err := emps.FindLatestAsOf(ctx, "P1", day(3, 31))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "S1", got.SectionCode)
	assert.True(t, got.EffectiveDate.Equal(day(1, 1)))

	got, ok, err = emps.FindLatestAsOf(ctx, "P1", day(4, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "S2", got.SectionCode)

	_, ok, err = emps.FindLatestAsOf(ctx, "P1", day(1, 1).AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = emps.FindExact(ctx, "P1", day(4, 1))
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := emps.FindHistory(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].RecordID)
}

func TestEffective_DuplicateVersionAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	emps := sqlite.Family[generic.Employee](s, sqlite.FamilyEmployee)

	require.NoError(t, emps.InsertVersion(ctx, employee(1, day(1, 1), "S1")))
	err := emps.InsertVersion(ctx, employee(2, day(1, 1), "S2"))
	assert.ErrorIs(t, err, generic.ErrDuplicateVersion)

	// A deleted version frees its date.
	require.NoError(t, emps.LogicalDelete(ctx, "P1", 1))
	require.NoError(t, emps.InsertVersion(ctx, employee(3, day(1, 1), "S3")))

	got, ok, err := emps.FindLatestAsOf(ctx, "P1", day(2, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "S3", got.SectionCode)

	assert.ErrorIs(t, emps.LogicalDelete(ctx, "P1", 1), generic.ErrNotFound)
	assert.ErrorIs(t, emps.InsertVersion(ctx, generic.Employee{}), generic.ErrInvalidInput)
}

func TestEffective_FamiliesAreSeparate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	emps := sqlite.Family[generic.Employee](s, sqlite.FamilyEmployee)
	routes := sqlite.Family[workflow.Route](s, sqlite.FamilyRoute)

	require.NoError(t, emps.InsertVersion(ctx, employee(1, day(1, 1), "S1")))

	id, err := routes.NextRecordID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id, "record ids are shared across families")

	route := workflow.Route{
		Version: generic.Version{RecordID: id, Code: "R1", EffectiveDate: day(1, 1)},
		Stages:  []workflow.Stage{{Approvers: []string{"BOSS"}}},
	}
	require.NoError(t, routes.InsertVersion(ctx, route))

	all, err := routes.FindAllAsOf(ctx, day(6, 1))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"BOSS"}, all[0].Stages[0].Approvers)

	none, err := emps.FindAllAsOf(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// WORKFLOWS
// =============================================================================

func newWorkflow(id int64) workflow.Workflow {
	return workflow.Workflow{
		ID:           id,
		FunctionCode: "TM1100",
		WorkflowType: attendance.WorkflowTypeTime,
		Status:       workflow.StatusApplying,
		RequesterID:  "P1",
		TargetDate:   day(3, 3),
		RouteCode:    "R1",
		Stages:       []workflow.Stage{{Approvers: []string{"A1"}}, {Approvers: []string{"A2"}}},
		Version:      1,
		UpdatedAt:    time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
}

func comment(id string, wfID int64, action workflow.Action) workflow.Comment {
	return workflow.Comment{ID: id, WorkflowID: wfID, At: time.Now(), ActorID: "P1", Action: action, Status: workflow.StatusApplying}
}

func TestWorkflows_InsertSaveAndComments(t *testing.T) {
	ctx := context.Background()
	wfs := newStore(t).Workflows()

	// GIVEN
	wf := newWorkflow(1)
	require.NoError(t, wfs.Insert(ctx, wf, comment("c1", 1, workflow.ActionApply)))

	// WHEN: an approver advances the chain
	wf.Stage = 1
	wf.Version = 2
	require.NoError(t, wfs.Save(ctx, wf, 1, comment("c2", 1, workflow.ActionApprove)))

	// THEN
	got, err := wfs.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 1, got.Stage)
	assert.Equal(t, []string{"A2"}, got.CurrentApprovers())
	assert.True(t, got.TargetDate.Equal(day(3, 3)))
	assert.True(t, got.UpdatedAt.Equal(wf.UpdatedAt))

	comments, err := wfs.Comments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c1", comments[0].ID)
	assert.Equal(t, workflow.ActionApprove, comments[1].Action)

	// Duplicate id
	assert.ErrorIs(t, wfs.Insert(ctx, wf), generic.ErrInvalidInput)
}

func TestWorkflows_ExclusiveControl(t *testing.T) {
	ctx := context.Background()
	wfs := newStore(t).Workflows()
	require.NoError(t, wfs.Insert(ctx, newWorkflow(1)))

	wf := newWorkflow(1)
	wf.Version = 2
	require.NoError(t, wfs.Save(ctx, wf, 1))

	// A stale writer is rejected and its comment is not kept.
	err := wfs.Save(ctx, wf, 1, comment("stale", 1, workflow.ActionApprove))
	var ec *generic.ExclusiveControlError
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, int64(1), ec.Expected)
	assert.Equal(t, int64(2), ec.Actual)

	comments, err := wfs.Comments(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, comments)

	assert.ErrorIs(t, wfs.Save(ctx, newWorkflow(9), 1), generic.ErrNotFound)
}

func TestWorkflows_ConcurrentSavesSucceedOnce(t *testing.T) {
	ctx := context.Background()
	wfs := newStore(t).Workflows()
	require.NoError(t, wfs.Insert(ctx, newWorkflow(1)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wf := newWorkflow(1)
			wf.Version = 2
			if wfs.Save(ctx, wf, 1) == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestWorkflows_DeleteAndLists(t *testing.T) {
	ctx := context.Background()
	wfs := newStore(t).Workflows()

	first, err := wfs.NextID(ctx)
	require.NoError(t, err)
	require.NoError(t, wfs.Insert(ctx, newWorkflow(first)))

	canceling := newWorkflow(first + 1)
	canceling.Status = workflow.StatusCancelApplying
	canceling.TargetDate = day(4, 10)
	require.NoError(t, wfs.Insert(ctx, canceling))

	// A1 acts on stage 0 of the first; the canceling one lists A2 on its route.
	pending, err := wfs.ListPending(ctx, "A2")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first+1, pending[0].ID)

	pending, err = wfs.ListPending(ctx, "A1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	march, err := wfs.ListByRequester(ctx, "P1", day(3, 1), day(3, 31))
	require.NoError(t, err)
	require.Len(t, march, 1)

	all, err := wfs.ListByRequester(ctx, "P1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	many, err := wfs.GetMany(ctx, []int64{first, first + 1, 99})
	require.NoError(t, err)
	assert.Len(t, many, 2)

	// Delete is version-checked too.
	var ec *generic.ExclusiveControlError
	assert.ErrorAs(t, wfs.Delete(ctx, first, 5), &ec)
	require.NoError(t, wfs.Delete(ctx, first, 1))
	_, err = wfs.Get(ctx, first)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	next, err := wfs.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+2, next)
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestRequests_OverlapAndReplace(t *testing.T) {
	ctx := context.Background()
	reqs := newStore(t).Requests()

	require.NoError(t, reqs.SaveRequest(ctx, attendance.Request{ID: 1, Kind: attendance.KindAttendance, PersonalID: "P1", WorkflowID: 10, Date: day(3, 2)}))
	require.NoError(t, reqs.SaveRequest(ctx, attendance.Request{ID: 2, Kind: attendance.KindHoliday, PersonalID: "P1", WorkflowID: 11,
		Date: day(2, 27), EndDate: day(3, 1), Range: attendance.RangeAll}))
	require.NoError(t, reqs.SaveRequest(ctx, attendance.Request{ID: 3, Kind: attendance.KindAttendance, PersonalID: "P1", WorkflowID: 12, Date: day(4, 1)}))
	require.NoError(t, reqs.SaveRequest(ctx, attendance.Request{ID: 4, Kind: attendance.KindAttendance, PersonalID: "P2", WorkflowID: 13, Date: day(3, 2)}))

	// The holiday starting in February overlaps March.
	got, err := reqs.ListRequests(ctx, "P1", day(3, 1), day(3, 31))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, attendance.KindHoliday, got[0].Kind)
	assert.True(t, got[0].EndDate.Equal(day(3, 1)))
	assert.Equal(t, int64(1), got[1].ID)

	// Save replaces by id.
	upd := got[1]
	upd.OvertimeAfter = 45
	require.NoError(t, reqs.SaveRequest(ctx, upd))
	r, err := reqs.GetRequestByWorkflow(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 45, r.OvertimeAfter)

	require.NoError(t, reqs.DeleteRequest(ctx, 10))
	_, err = reqs.GetRequestByWorkflow(ctx, 10)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.ErrorIs(t, reqs.DeleteRequest(ctx, 10), generic.ErrNotFound)

	id, err := reqs.NextRequestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestRequests_CalendarInputs(t *testing.T) {
	ctx := context.Background()
	reqs := newStore(t).Requests()

	require.NoError(t, reqs.SaveSubstitute(ctx, attendance.Substitute{PersonalID: "P1", Date: day(3, 5), Range: attendance.RangeAll, WorkflowID: 3}))
	require.NoError(t, reqs.SaveSubstitute(ctx, attendance.Substitute{PersonalID: "P1", Date: day(5, 5), Range: attendance.RangeAM, WorkflowID: 4}))
	require.NoError(t, reqs.SaveSuspension(ctx, attendance.Suspension{PersonalID: "P1", Start: day(3, 20)}))
	require.NoError(t, reqs.SaveSchedule(ctx, "P1", day(3, 1), "normal"))
	require.NoError(t, reqs.SaveSchedule(ctx, "P1", day(3, 1), attendance.WorkTypeLegalHoliday))
	require.NoError(t, reqs.SaveSchedule(ctx, "P1", day(4, 1), "normal"))

	subs, err := reqs.ListSubstitutes(ctx, "P1", day(3, 1), day(3, 31))
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, attendance.RangeAll, subs[0].Range)

	sus, err := reqs.ListSuspensions(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, sus, 1)
	assert.True(t, sus[0].End.IsZero())
	assert.True(t, sus[0].Contains(day(12, 31)))

	sched, err := reqs.Schedule(ctx, "P1", day(3, 1), day(3, 31))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2025-03-01": attendance.WorkTypeLegalHoliday}, sched)
}

// =============================================================================
// CUTOFF RUNS
// =============================================================================

func TestCutoffRuns(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	started := time.Date(2025, 3, 16, 1, 0, 0, 0, time.UTC)
	run := sqlite.CutoffRun{ID: "run-1", TargetDate: day(3, 15), Status: sqlite.RunRunning, StartedAt: started}
	require.NoError(t, s.SaveCutoffRun(ctx, run))

	checked, err := s.IsCutoffChecked(ctx, day(3, 15))
	require.NoError(t, err)
	assert.False(t, checked)

	done := started.Add(time.Minute)
	run.Status = sqlite.RunCompleted
	run.Employees = 3
	run.Blocked = 1
	run.Results = []detect.Result{{PersonalID: "P1", HasUnsubmitted: true}}
	run.CompletedAt = &done
	require.NoError(t, s.SaveCutoffRun(ctx, run))

	checked, err = s.IsCutoffChecked(ctx, day(3, 15))
	require.NoError(t, err)
	assert.True(t, checked)

	got, err := s.GetCutoffRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Blocked)
	require.Len(t, got.Results, 1)
	assert.True(t, got.Results[0].Blocked())
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	runs, err := s.ListCutoffRuns(ctx, sqlite.RunFailed)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = s.GetCutoffRun(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	require.NoError(t, s.Reset(ctx))
	runs, err = s.ListCutoffRuns(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
