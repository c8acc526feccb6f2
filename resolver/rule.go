/*
Package resolver selects the organizational rule that applies to an employee
on a date.

RULE FAMILIES:
  RouteApplication  which approval route a workflow type uses
  Application       which work setting (TimeSetting) and cutoff apply

  Both are effective-dated and scoped either to a list of personal ids
  (PERSON) or to an organizational combination (MASTER) where an empty code
  is a wildcard.

RESOLUTION ORDER (first match wins):
   1. PERSON rule listing the employee
   2. workplace + employment + section + position
   3.             employment + section + position
   4.                          section + position
   5.                                    position
   6. workplace + employment + section
   7.             employment + section
   8.                          section
   9. workplace + employment
  10.             employment
  11. workplace
  12. no specific scope

  A code that a tier does not name must be empty on the rule. Before
  matching, candidates are narrowed to the authoritative active version of
  each rule code on the target date.

SEE ALSO:
  - resolve.go: the algorithm
  - session.go: request-scoped cache and the operations built on it
*/
package resolver

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// APPLICATION SCOPE
// =============================================================================

type ApplicationType string

const (
	ApplicationPerson ApplicationType = "PERSON"
	ApplicationMaster ApplicationType = "MASTER"
)

// Scope is an organizational combination. Empty fields are wildcards on rules.
type Scope struct {
	WorkPlace          string `json:"work_place_code"`
	EmploymentContract string `json:"employment_contract_code"`
	Section            string `json:"section_code"`
	Position           string `json:"position_code"`
}

// ScopeOf returns the employee's organizational attributes.
func ScopeOf(e generic.Employee) Scope {
	return Scope{
		WorkPlace:          e.WorkPlaceCode,
		EmploymentContract: e.EmploymentContract,
		Section:            e.SectionCode,
		Position:           e.PositionCode,
	}
}

// Target is the applicability part of a rule. Embed it.
type Target struct {
	ApplicationType ApplicationType `json:"application_type"`
	Scope           Scope           `json:"scope"`
	PersonalIDs     string          `json:"personal_ids,omitempty"` // comma-joined
}

func (t Target) Type() ApplicationType { return t.ApplicationType }
func (t Target) TargetScope() Scope    { return t.Scope }

// Lists reports whether the PERSON list names personalID exactly.
func (t Target) Lists(personalID string) bool {
	if personalID == "" {
		return false
	}
	return slices.Contains(t.PersonalIDList(), personalID)
}

func (t Target) PersonalIDList() []string {
	var ids []string
	for _, id := range strings.Split(t.PersonalIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Rule is any effective-dated record resolvable by the 12-tier order.
type Rule interface {
	generic.Effective
	Type() ApplicationType
	TargetScope() Scope
	Lists(personalID string) bool
}

// =============================================================================
// RULE FAMILIES
// =============================================================================

// RouteApplication binds a route to a scope for one workflow type.
type RouteApplication struct {
	generic.Version
	Target
	Name         string `json:"name"`
	WorkflowType string `json:"workflow_type"`
	RouteCode    string `json:"route_code"`
}

// Application binds a work setting and cutoff to a scope.
type Application struct {
	generic.Version
	Target
	Name            string `json:"name"`
	WorkSettingCode string `json:"work_setting_code"`
	CutoffCode      string `json:"cutoff_code"`
}

// TimeSetting is the work setting an Application points at.
type TimeSetting struct {
	generic.Version
	Name                 string          `json:"name"`
	GeneralWorkHours     decimal.Decimal `json:"general_work_hours"`
	MonthlyOvertimeLimit decimal.Decimal `json:"monthly_overtime_limit"`
	StartDayTime         string          `json:"start_day_time"` // HH:MM
}
