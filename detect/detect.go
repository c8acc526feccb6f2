/*
Package detect finds the items that block closing an attendance period for
one employee: requests still waiting on an approver, scheduled work days with
no submitted attendance, and overtime worked without an overtime request.

INPUT:
  Everything is pre-loaded into an Input (see Loader). A Detector does no I/O
  and is not safe for concurrent use; build one per employee and period.

QUERIES:
  HasUnapproved(immediate)           request whose workflow IsNotApproved,
                                     dated inside the target range
  HasUnsubmitted(immediate)          work day, not suspended, with no applied
                                     attendance request
  HasUnsubmittedOvertime(immediate)  applied attendance with before/after
                                     overtime but no applied overtime request
                                     of the same sub-type

  HasUnapproved places every request on its Date. A holiday spanning several
  days is matched on its first day only, so one that starts before the
  target range and runs into it is not reported.

  With immediate=true a query stops at the first hit and records at most one
  detail. Each query replaces only its own section of Details().

WORK DAY:
  An applied work-on-holiday request makes the day a work day. Otherwise a
  full-day substitute, a scheduled holiday work type (or no schedule), or a
  full-day holiday or substitute-holiday request makes it a day off.
  Work type change requests are not considered.
*/
package detect

import (
	"sort"
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// StatusNotApplied labels days and overtime with nothing submitted.
const StatusNotApplied = "not applied"

// Input is the pre-loaded data for one employee and period.
type Input struct {
	Employee    generic.Employee
	TargetDates []time.Time // ascending
	Requests    []attendance.Request
	Substitutes []attendance.Substitute
	Suspensions []attendance.Suspension
	Workflows   map[int64]workflow.Workflow
	Schedule    map[string]string // ISO date -> scheduled work type code
}

// Detail is one reportable cutoff error.
type Detail struct {
	Date                   time.Time `json:"date"`
	PersonalID             string    `json:"personal_id"`
	EmployeeCode           string    `json:"employee_code"`
	LastName               string    `json:"last_name"`
	FirstName              string    `json:"first_name"`
	WorkPlaceCode          string    `json:"work_place_code"`
	EmploymentContractCode string    `json:"employment_contract_code"`
	SectionCode            string    `json:"section_code"`
	PositionCode           string    `json:"position_code"`
	Category               string    `json:"category"`
	Status                 string    `json:"status"`
	WorkflowID             int64     `json:"workflow_id,omitempty"`
}

type Detector struct {
	in     Input
	byKind map[attendance.RequestKind][]attendance.Request

	unapproved  []Detail
	unsubmitted []Detail
	overtime    []Detail
}

func New(in Input) *Detector {
	reqs := append([]attendance.Request(nil), in.Requests...)
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Date.Before(reqs[j].Date) })

	byKind := make(map[attendance.RequestKind][]attendance.Request)
	for _, r := range reqs {
		byKind[r.Kind] = append(byKind[r.Kind], r)
	}
	if in.Workflows == nil {
		in.Workflows = map[int64]workflow.Workflow{}
	}
	if in.Schedule == nil {
		in.Schedule = map[string]string{}
	}
	return &Detector{in: in, byKind: byKind}
}

func (d *Detector) TargetDates() []time.Time { return d.in.TargetDates }

// SetBeforeDay limits the target range to the days before target. Nothing
// changes when the day before target is outside the current range.
func (d *Detector) SetBeforeDay(target time.Time) {
	first, last, ok := d.bounds()
	if !ok {
		return
	}
	before := generic.AddDays(generic.TruncateToDay(target), -1)
	if !generic.IntervalContains(before, first, last) {
		return
	}
	d.in.TargetDates = generic.DateRange(first, before)
}

// =============================================================================
// QUERIES
// =============================================================================

func (d *Detector) HasUnapproved(immediate bool) bool {
	d.unapproved = nil
	first, last, ok := d.bounds()
	if !ok {
		return false
	}
	for _, kind := range attendance.AllKinds {
		for _, r := range d.byKind[kind] {
			if !generic.IntervalContains(generic.TruncateToDay(r.Date), first, last) {
				continue
			}
			wf, ok := d.in.Workflows[r.WorkflowID]
			if !ok || !wf.Status.IsNotApproved() {
				continue
			}
			det := d.detail(r.Date, kind.Label(), wf.Status.Label())
			det.WorkflowID = wf.ID
			d.unapproved = append(d.unapproved, det)
			if immediate {
				return true
			}
		}
	}
	return len(d.unapproved) > 0
}

func (d *Detector) HasUnsubmitted(immediate bool) bool {
	d.unsubmitted = nil
	for _, date := range d.in.TargetDates {
		if d.suspended(date) || !d.isWorkDay(date) || d.attendanceApplied(date) {
			continue
		}
		d.unsubmitted = append(d.unsubmitted, d.detail(date, attendance.KindAttendance.Label(), StatusNotApplied))
		if immediate {
			return true
		}
	}
	return len(d.unsubmitted) > 0
}

func (d *Detector) HasUnsubmittedOvertime(immediate bool) bool {
	d.overtime = nil
	first, last, ok := d.bounds()
	if !ok {
		return false
	}
	for _, r := range d.byKind[attendance.KindAttendance] {
		date := generic.TruncateToDay(r.Date)
		if !generic.IntervalContains(date, first, last) || !d.applied(r) || d.workOnHolidayOnly(date) {
			continue
		}
		for _, need := range []struct {
			minutes int
			typ     attendance.OvertimeType
		}{
			{r.OvertimeBefore, attendance.OvertimeBefore},
			{r.OvertimeAfter, attendance.OvertimeAfter},
		} {
			if need.minutes <= 0 || d.overtimeApplied(date, need.typ) {
				continue
			}
			d.overtime = append(d.overtime, d.detail(date, attendance.KindOvertime.Label(), StatusNotApplied))
			if immediate {
				return true
			}
		}
	}
	return len(d.overtime) > 0
}

// Details returns unapproved, then unsubmitted, then overtime details.
func (d *Detector) Details() []Detail {
	out := make([]Detail, 0, len(d.unapproved)+len(d.unsubmitted)+len(d.overtime))
	out = append(out, d.unapproved...)
	out = append(out, d.unsubmitted...)
	return append(out, d.overtime...)
}

// =============================================================================
// DAY HELPERS
// =============================================================================

func (d *Detector) bounds() (first, last time.Time, ok bool) {
	dates := d.in.TargetDates
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return generic.TruncateToDay(dates[0]), generic.TruncateToDay(dates[len(dates)-1]), true
}

func (d *Detector) applied(r attendance.Request) bool {
	wf, ok := d.in.Workflows[r.WorkflowID]
	return ok && wf.Status.IsApplied()
}

// appliedOn returns the first applied request of kind covering date.
func (d *Detector) appliedOn(kind attendance.RequestKind, date time.Time) (attendance.Request, bool) {
	for _, r := range d.byKind[kind] {
		if r.Covers(date) && d.applied(r) {
			return r, true
		}
	}
	return attendance.Request{}, false
}

func (d *Detector) fullDayOff(kind attendance.RequestKind, date time.Time) bool {
	for _, r := range d.byKind[kind] {
		if r.Range == attendance.RangeAll && r.Covers(date) && d.applied(r) {
			return true
		}
	}
	return false
}

func (d *Detector) attendanceApplied(date time.Time) bool {
	_, ok := d.appliedOn(attendance.KindAttendance, date)
	return ok
}

func (d *Detector) overtimeApplied(date time.Time, typ attendance.OvertimeType) bool {
	for _, r := range d.byKind[attendance.KindOvertime] {
		if r.OvertimeType == typ && r.Covers(date) && d.applied(r) {
			return true
		}
	}
	return false
}

func (d *Detector) substituteOff(date time.Time) bool {
	for _, s := range d.in.Substitutes {
		if s.Range != attendance.RangeAll || !generic.SameDay(s.Date, date) {
			continue
		}
		if wf, ok := d.in.Workflows[s.WorkflowID]; ok && wf.Status.IsApplied() {
			return true
		}
	}
	return false
}

// workOnHolidayOnly reports a day worked on a holiday with no substitute
// day granted for it.
func (d *Detector) workOnHolidayOnly(date time.Time) bool {
	r, ok := d.appliedOn(attendance.KindWorkOnHoliday, date)
	if !ok {
		return false
	}
	for _, s := range d.in.Substitutes {
		if s.WorkflowID == r.WorkflowID {
			return false
		}
	}
	return true
}

func (d *Detector) isWorkDay(date time.Time) bool {
	if _, ok := d.appliedOn(attendance.KindWorkOnHoliday, date); ok {
		return true
	}
	if d.substituteOff(date) {
		return false
	}
	code := d.in.Schedule[generic.FormatISO(date)]
	if code == "" || attendance.IsHolidayWorkType(code) {
		return false
	}
	return !d.fullDayOff(attendance.KindHoliday, date) && !d.fullDayOff(attendance.KindSubHoliday, date)
}

func (d *Detector) suspended(date time.Time) bool {
	for _, s := range d.in.Suspensions {
		if s.Contains(date) {
			return true
		}
	}
	return false
}

func (d *Detector) detail(date time.Time, category, status string) Detail {
	e := d.in.Employee
	return Detail{
		Date:                   generic.TruncateToDay(date),
		PersonalID:             e.PersonalID,
		EmployeeCode:           e.EmployeeCode,
		LastName:               e.LastName,
		FirstName:              e.FirstName,
		WorkPlaceCode:          e.WorkPlaceCode,
		EmploymentContractCode: e.EmploymentContract,
		SectionCode:            e.SectionCode,
		PositionCode:           e.PositionCode,
		Category:               category,
		Status:                 status,
	}
}
