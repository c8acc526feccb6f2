/*
Package attendance models the request kinds that go through the approval
workflow: attendance entries, overtime, holiday, work on holiday, substitute
holiday, work type change and time difference.

REQUEST KINDS:
  Every kind shares the same workflow behavior. RequestKind is the tag; the
  kind-specific fields of Request are only meaningful for their kind:

    Kind              Date means            Extra fields
    ----------------  --------------------  ----------------------------------
    Attendance        work date             WorkTypeCode, times, overtime mins
    Overtime          work date             OvertimeType, Minutes
    Holiday           first day off         EndDate, Range
    WorkOnHoliday     holiday worked        WorkTypeCode
    SubHoliday        substitute day off    Range
    WorkTypeChange    changed date          WorkTypeCode
    Difference        shifted date          Minutes

SEE ALSO:
  - service.go: the RequestWorkflow implementation shared by all kinds
  - detect/: scans requests for cutoff validation
*/
package attendance

import (
	"fmt"

	"github.com/warp/attendance-engine/generic"
)

// WorkflowTypeTime is the route discriminator for time-management requests.
const WorkflowTypeTime = "TIME"

type RequestKind int

const (
	KindAttendance RequestKind = iota
	KindOvertime
	KindHoliday
	KindWorkOnHoliday
	KindSubHoliday
	KindWorkTypeChange
	KindDifference
)

// AllKinds is the scan order used by detection.
var AllKinds = []RequestKind{
	KindAttendance, KindOvertime, KindHoliday, KindWorkOnHoliday,
	KindSubHoliday, KindWorkTypeChange, KindDifference,
}

type kindInfo struct {
	name         string
	functionCode string
	label        string
}

var kinds = [...]kindInfo{
	KindAttendance:     {"attendance", "TM1100", "Attendance"},
	KindOvertime:       {"overtime", "TM1210", "Overtime"},
	KindHoliday:        {"holiday", "TM1220", "Holiday"},
	KindWorkOnHoliday:  {"work_on_holiday", "TM1230", "Work on holiday"},
	KindSubHoliday:     {"sub_holiday", "TM1240", "Substitute holiday"},
	KindWorkTypeChange: {"work_type_change", "TM1250", "Work type change"},
	KindDifference:     {"difference", "TM1260", "Time difference"},
}

func (k RequestKind) valid() bool { return k >= 0 && int(k) < len(kinds) }

func (k RequestKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kinds[k].name
}

// FunctionCode is the workflow function code of the kind.
func (k RequestKind) FunctionCode() string {
	if !k.valid() {
		return ""
	}
	return kinds[k].functionCode
}

// Label is the category text used in cutoff reports.
func (k RequestKind) Label() string {
	if !k.valid() {
		return ""
	}
	return kinds[k].label
}

func (k RequestKind) WorkflowType() string { return WorkflowTypeTime }

func (k RequestKind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("%w: request kind %d", generic.ErrInvalidInput, int(k))
	}
	return []byte(k.String()), nil
}

func (k *RequestKind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts a kind name.
func ParseKind(s string) (RequestKind, error) {
	for i, info := range kinds {
		if info.name == s {
			return RequestKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown request kind %q", generic.ErrInvalidInput, s)
}

// KindForFunction maps a workflow function code back to its kind.
func KindForFunction(code string) (RequestKind, bool) {
	for i, info := range kinds {
		if info.functionCode == code {
			return RequestKind(i), true
		}
	}
	return 0, false
}
