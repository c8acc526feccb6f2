package detect_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/detect"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/generic/store"
	"github.com/warp/attendance-engine/workflow"
)

func day(d int) time.Time { return generic.NewDate(2025, time.March, d) }

var emp = generic.Employee{
	PersonalID:    "P1",
	EmployeeCode:  "E001",
	LastName:      "Sato",
	FirstName:     "Ken",
	WorkPlaceCode: "WP1",
	SectionCode:   "S1",
}

// builder accumulates requests with their workflows.
type builder struct {
	in     detect.Input
	nextWF int64
}

func newBuilder(from, to int) *builder {
	b := &builder{in: detect.Input{
		Employee:    emp,
		TargetDates: generic.DateRange(day(from), day(to)),
		Workflows:   map[int64]workflow.Workflow{},
		Schedule:    map[string]string{},
	}}
	for d := from; d <= to; d++ {
		b.in.Schedule[generic.FormatISO(day(d))] = "normal"
	}
	return b
}

func (b *builder) add(r attendance.Request, status workflow.Status) attendance.Request {
	b.nextWF++
	r.WorkflowID = b.nextWF
	r.PersonalID = "P1"
	b.in.Workflows[b.nextWF] = workflow.Workflow{ID: b.nextWF, Status: status, FunctionCode: r.Kind.FunctionCode()}
	b.in.Requests = append(b.in.Requests, r)
	return r
}

func (b *builder) attend(d int, status workflow.Status) attendance.Request {
	return b.add(attendance.Request{Kind: attendance.KindAttendance, Date: day(d)}, status)
}

// =============================================================================
// UNAPPROVED
// =============================================================================

func TestHasUnapproved_ShortCircuit(t *testing.T) {
	b := newBuilder(1, 10)
	b.attend(2, workflow.StatusApplying)
	b.add(attendance.Request{Kind: attendance.KindOvertime, Date: day(3), OvertimeType: attendance.OvertimeAfter}, workflow.StatusApplying)
	b.add(attendance.Request{Kind: attendance.KindHoliday, Date: day(5), EndDate: day(6), Range: attendance.RangeAll}, workflow.StatusCancelApplying)
	b.attend(4, workflow.StatusApproved)
	b.attend(20, workflow.StatusApplying) // outside the range

	d := detect.New(b.in)
	require.True(t, d.HasUnapproved(true))
	assert.Len(t, d.Details(), 1)

	d = detect.New(b.in)
	require.True(t, d.HasUnapproved(false))
	details := d.Details()
	require.Len(t, details, 3)
	assert.Equal(t, attendance.KindAttendance.Label(), details[0].Category)
	assert.Equal(t, attendance.KindOvertime.Label(), details[1].Category)
	assert.Equal(t, attendance.KindHoliday.Label(), details[2].Category)
	assert.Equal(t, "not approved", details[0].Status)
	assert.Equal(t, "E001", details[0].EmployeeCode)
	assert.Equal(t, day(2), details[0].Date)
}

func TestHasUnapproved_NoneWhenAllSettled(t *testing.T) {
	b := newBuilder(1, 3)
	b.attend(1, workflow.StatusApproved)
	b.attend(2, workflow.StatusDraft)
	b.attend(3, workflow.StatusWithdrawn)

	d := detect.New(b.in)
	assert.False(t, d.HasUnapproved(false))
	assert.Empty(t, d.Details())
}

func TestHasUnapproved_HolidayMatchedOnFirstDay(t *testing.T) {
	// GIVEN: a pending holiday from the 1st to the 5th, range from the 3rd
	b := newBuilder(3, 5)
	b.add(attendance.Request{Kind: attendance.KindHoliday, Date: day(1), EndDate: day(5), Range: attendance.RangeAll}, workflow.StatusApplying)

	// THEN: it is placed on the 1st, outside the range
	assert.False(t, detect.New(b.in).HasUnapproved(false))
}

func TestHasUnapproved_EmptyRange(t *testing.T) {
	b := newBuilder(1, 3)
	b.attend(1, workflow.StatusApplying)
	b.in.TargetDates = nil

	assert.False(t, detect.New(b.in).HasUnapproved(false))
}

// =============================================================================
// UNSUBMITTED
// =============================================================================

func TestHasUnsubmitted(t *testing.T) {
	// GIVEN: a week with one day of each kind of exemption
	b := newBuilder(1, 7)
	b.in.Schedule[generic.FormatISO(day(6))] = attendance.WorkTypeLegalHoliday
	b.in.Schedule[generic.FormatISO(day(7))] = attendance.WorkTypePrescribedHoliday
	b.attend(1, workflow.StatusApproved)
	b.attend(2, workflow.StatusApplying)
	b.attend(3, workflow.StatusDraft)    // drafted is not submitted
	b.attend(4, workflow.StatusRejected) // neither is reverted
	b.add(attendance.Request{Kind: attendance.KindHoliday, Date: day(5), Range: attendance.RangeAll}, workflow.StatusApproved)

	// WHEN
	d := detect.New(b.in)
	found := d.HasUnsubmitted(false)

	// THEN
	require.True(t, found)
	var dates []time.Time
	for _, det := range d.Details() {
		dates = append(dates, det.Date)
		assert.Equal(t, detect.StatusNotApplied, det.Status)
	}
	assert.Equal(t, []time.Time{day(3), day(4)}, dates)
}

func TestHasUnsubmitted_WorkDayRules(t *testing.T) {
	b := newBuilder(1, 4)
	b.in.Schedule[generic.FormatISO(day(1))] = attendance.WorkTypeLegalHoliday
	// Day 1: worked on a holiday, so attendance is due.
	b.add(attendance.Request{Kind: attendance.KindWorkOnHoliday, Date: day(1), WorkTypeCode: "normal"}, workflow.StatusApproved)
	// Day 2: half-day holiday still leaves a work day.
	b.add(attendance.Request{Kind: attendance.KindHoliday, Date: day(2), Range: attendance.RangeAM}, workflow.StatusApproved)
	// Day 3: substitute day off.
	sub := b.add(attendance.Request{Kind: attendance.KindWorkOnHoliday, Date: day(20), WorkTypeCode: "normal"}, workflow.StatusApproved)
	b.in.Substitutes = append(b.in.Substitutes, attendance.Substitute{PersonalID: "P1", Date: day(3), Range: attendance.RangeAll, WorkflowID: sub.WorkflowID})
	// Day 4: suspended.
	b.in.Suspensions = append(b.in.Suspensions, attendance.Suspension{PersonalID: "P1", Start: day(4)})

	d := detect.New(b.in)
	require.True(t, d.HasUnsubmitted(false))
	var dates []time.Time
	for _, det := range d.Details() {
		dates = append(dates, det.Date)
	}
	assert.Equal(t, []time.Time{day(1), day(2)}, dates)
}

func TestHasUnsubmitted_NoScheduleIsNotAWorkDay(t *testing.T) {
	b := newBuilder(1, 2)
	b.in.Schedule = nil
	assert.False(t, detect.New(b.in).HasUnsubmitted(false))
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestHasUnsubmittedOvertime_MatchesSubType(t *testing.T) {
	b := newBuilder(1, 5)
	b.add(attendance.Request{Kind: attendance.KindAttendance, Date: day(1), OvertimeAfter: 30}, workflow.StatusApproved)
	// An approved BEFORE request does not cover AFTER overtime.
	b.add(attendance.Request{Kind: attendance.KindOvertime, Date: day(1), OvertimeType: attendance.OvertimeBefore, Minutes: 30}, workflow.StatusApproved)

	b.add(attendance.Request{Kind: attendance.KindAttendance, Date: day(2), OvertimeBefore: 15}, workflow.StatusApplying)
	b.add(attendance.Request{Kind: attendance.KindOvertime, Date: day(2), OvertimeType: attendance.OvertimeBefore, Minutes: 15}, workflow.StatusApplying)

	// Attendance still in draft is not evaluated.
	b.add(attendance.Request{Kind: attendance.KindAttendance, Date: day(3), OvertimeAfter: 60}, workflow.StatusDraft)

	d := detect.New(b.in)
	require.True(t, d.HasUnsubmittedOvertime(false))
	details := d.Details()
	require.Len(t, details, 1)
	assert.Equal(t, day(1), details[0].Date)
	assert.Equal(t, attendance.KindOvertime.Label(), details[0].Category)
}

func TestHasUnsubmittedOvertime_SkipsHolidayWork(t *testing.T) {
	b := newBuilder(1, 1)
	b.add(attendance.Request{Kind: attendance.KindWorkOnHoliday, Date: day(1)}, workflow.StatusApproved)
	b.add(attendance.Request{Kind: attendance.KindAttendance, Date: day(1), OvertimeAfter: 60}, workflow.StatusApproved)

	assert.False(t, detect.New(b.in).HasUnsubmittedOvertime(false))
}

// =============================================================================
// RANGE AND DETAILS
// =============================================================================

func TestSetBeforeDay(t *testing.T) {
	b := newBuilder(1, 10)
	b.attend(8, workflow.StatusApplying)

	d := detect.New(b.in)
	d.SetBeforeDay(day(8))
	assert.Len(t, d.TargetDates(), 7)
	assert.False(t, d.HasUnapproved(false))

	// Outside the range: unchanged.
	d = detect.New(b.in)
	d.SetBeforeDay(day(1))
	assert.Len(t, d.TargetDates(), 10)
}

func TestDetails_OrderedBySection(t *testing.T) {
	b := newBuilder(1, 2)
	b.attend(2, workflow.StatusApplying)
	b.in.Requests[0].OvertimeBefore = 10

	d := detect.New(b.in)
	d.HasUnsubmittedOvertime(false)
	d.HasUnsubmitted(false)
	d.HasUnapproved(false)

	var got []string
	for _, det := range d.Details() {
		got = append(got, det.Category+"/"+det.Status)
	}
	assert.Equal(t, []string{
		"Attendance/not approved",
		"Attendance/" + detect.StatusNotApplied,
		"Overtime/" + detect.StatusNotApplied,
	}, got)

	// Re-running one query replaces only its section.
	d.HasUnapproved(true)
	assert.Len(t, d.Details(), 3)
}

func TestRun(t *testing.T) {
	b := newBuilder(1, 1)
	res := detect.Run(b.in, time.Time{}, false)
	assert.True(t, res.Blocked())
	assert.True(t, res.HasUnsubmitted)
	assert.False(t, res.HasUnapproved)
	assert.Equal(t, "P1", res.PersonalID)
}

// =============================================================================
// LOADER
// =============================================================================

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()
	employees := store.NewMemory[generic.Employee]()
	e := emp
	e.Version = generic.Version{RecordID: 1, Code: "P1", EffectiveDate: day(1)}
	require.NoError(t, employees.InsertVersion(ctx, e))

	wfs := store.NewWorkflows()
	require.NoError(t, wfs.Insert(ctx, workflow.Workflow{ID: 7, Status: workflow.StatusApplying, RequesterID: "P1", TargetDate: day(2), Version: 1}))
	reqs := store.NewRequests()
	require.NoError(t, reqs.SaveRequest(ctx, attendance.Request{ID: 1, Kind: attendance.KindAttendance, PersonalID: "P1", WorkflowID: 7, Date: day(2)}))
	require.NoError(t, reqs.SaveRequest(ctx, attendance.Request{ID: 2, Kind: attendance.KindAttendance, PersonalID: "P1", WorkflowID: 8, Date: day(25)}))
	require.NoError(t, reqs.SaveSchedule(ctx, "P1", day(2), "normal"))

	l := &detect.Loader{Employees: generic.DirectoryFromStore(employees), Requests: reqs, Workflows: wfs}
	in, err := l.Load(ctx, "P1", day(1), day(3))

	require.NoError(t, err)
	assert.Equal(t, "E001", in.Employee.EmployeeCode)
	assert.Len(t, in.TargetDates, 3)
	require.Len(t, in.Requests, 1)
	assert.Contains(t, in.Workflows, int64(7))
	assert.Equal(t, "normal", in.Schedule["2025-03-02"])

	res := detect.Run(in, time.Time{}, false)
	assert.True(t, res.HasUnapproved)
	assert.False(t, res.HasUnsubmitted)

	_, err = l.Load(ctx, "NOBODY", day(1), day(3))
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
