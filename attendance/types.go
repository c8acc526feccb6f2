package attendance

import (
	"context"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// Work type codes that mark a scheduled day off.
const (
	WorkTypeLegalHoliday      = "legal_holiday"
	WorkTypePrescribedHoliday = "prescribed_holiday"
)

// IsHolidayWorkType reports whether a scheduled work type is a day off.
func IsHolidayWorkType(code string) bool {
	return code == WorkTypeLegalHoliday || code == WorkTypePrescribedHoliday
}

type OvertimeType int

const (
	OvertimeNone OvertimeType = iota
	OvertimeBefore
	OvertimeAfter
)

// DayRange is the portion of a day a holiday covers.
type DayRange int

const (
	RangeAll DayRange = iota + 1
	RangeAM
	RangePM
	RangeTime
)

// =============================================================================
// REQUEST
// =============================================================================

// Request is one submitted (or drafted) request of any kind.
type Request struct {
	ID         int64       `json:"id"`
	Kind       RequestKind `json:"kind"`
	PersonalID string      `json:"personal_id"`
	WorkflowID int64       `json:"workflow_id"`
	Date       time.Time   `json:"date"`
	EndDate    time.Time   `json:"end_date,omitzero"`

	OvertimeType OvertimeType `json:"overtime_type,omitempty"`
	Range        DayRange     `json:"range,omitempty"`
	WorkTypeCode string       `json:"work_type_code,omitempty"`
	Minutes      int          `json:"minutes,omitempty"`

	// Attendance only.
	StartTime      time.Time `json:"start_time,omitzero"`
	EndTime        time.Time `json:"end_time,omitzero"`
	OvertimeBefore int       `json:"overtime_before,omitempty"`
	OvertimeAfter  int       `json:"overtime_after,omitempty"`

	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is the projection shared by every kind.
type Item struct {
	Kind       RequestKind
	WorkflowID int64
	Date       time.Time
}

func (r Request) Item() Item {
	return Item{Kind: r.Kind, WorkflowID: r.WorkflowID, Date: r.Date}
}

// Covers reports whether the request applies to date. Holidays cover their
// whole span; other kinds cover Date only.
func (r Request) Covers(date time.Time) bool {
	if r.Kind == KindHoliday && !r.EndDate.IsZero() {
		return generic.IntervalContains(generic.TruncateToDay(date), generic.TruncateToDay(r.Date), generic.TruncateToDay(r.EndDate))
	}
	return generic.SameDay(r.Date, date)
}

// Substitute is a day off granted in exchange for work on a holiday. It
// takes effect while its workflow is applied.
type Substitute struct {
	PersonalID string    `json:"personal_id"`
	Date       time.Time `json:"date"`
	Range      DayRange  `json:"range"`
	WorkflowID int64     `json:"workflow_id"`
}

// Suspension is a leave of absence. A zero End is open-ended.
type Suspension struct {
	PersonalID string    `json:"personal_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end,omitzero"`
	Reason     string    `json:"reason,omitempty"`
}

func (s Suspension) Contains(date time.Time) bool {
	return generic.IntervalContains(generic.TruncateToDay(date), generic.TruncateToDay(s.Start), generic.TruncateToDay(s.End))
}

// =============================================================================
// STORE
// =============================================================================

// Store persists requests and the per-employee calendar inputs detection needs.
type Store interface {
	NextRequestID(ctx context.Context) (int64, error)

	// SaveRequest inserts or replaces by ID.
	SaveRequest(ctx context.Context, r Request) error

	// DeleteRequest logically deletes the request attached to a workflow.
	DeleteRequest(ctx context.Context, workflowID int64) error

	GetRequestByWorkflow(ctx context.Context, workflowID int64) (Request, error)

	// ListRequests returns requests touching [from, to]; holidays are
	// included when their span overlaps.
	ListRequests(ctx context.Context, personalID string, from, to time.Time) ([]Request, error)

	SaveSubstitute(ctx context.Context, s Substitute) error
	ListSubstitutes(ctx context.Context, personalID string, from, to time.Time) ([]Substitute, error)

	SaveSuspension(ctx context.Context, s Suspension) error
	ListSuspensions(ctx context.Context, personalID string) ([]Suspension, error)

	// SaveSchedule records the scheduled work type of a day.
	SaveSchedule(ctx context.Context, personalID string, date time.Time, workTypeCode string) error

	// Schedule returns work type codes keyed by DateLayout.
	Schedule(ctx context.Context, personalID string, from, to time.Time) (map[string]string, error)
}
