/*
Package factory provides JSON to Go master-data conversion.

PURPOSE:
  Converts a JSON master document into the effective-dated records the
  resolver and workflow engine read (employees, routes, rule families, time
  settings, cutoffs) plus the calendar inputs detection needs (schedules,
  suspensions), then loads them into stores.

JSON SCHEMA:
  {
    "employees": [
      {"personal_id": "P001", "employee_code": "E001", "last_name": "Sato",
       "first_name": "Ken", "work_place_code": "TKY", "section_code": "DEV",
       "effective_date": "2025-01-01"}
    ],
    "routes": [
      {"code": "R1", "name": "Two step", "effective_date": "2025-01-01",
       "stages": [["P900"], ["P901", "P902"]]}
    ],
    "route_applications": [
      {"code": "RA1", "effective_date": "2025-01-01", "application_type": "MASTER",
       "scope": {"section_code": "DEV"}, "workflow_type": "TIME", "route_code": "R1"}
    ],
    "applications": [
      {"code": "A1", "effective_date": "2025-01-01", "application_type": "PERSON",
       "personal_ids": ["P001"], "work_setting_code": "WS1", "cutoff_code": "C15"}
    ],
    "time_settings": [
      {"code": "WS1", "effective_date": "2025-01-01", "general_work_hours": "8",
       "monthly_overtime_limit": "45", "start_day_time": "05:00"}
    ],
    "cutoffs": [{"code": "C15", "effective_date": "2025-01-01", "cutoff_day": 15}],
    "schedules": [
      {"personal_id": "P001", "from": "2025-03-01", "to": "2025-03-31",
       "work_type_code": "normal", "weekends": true}
    ],
    "suspensions": [{"personal_id": "P001", "start": "2025-06-01", "end": "2025-06-30"}]
  }

KEY FEATURES:
  - Validates dates, application types and decimal quantities
  - Rule records without a code get the next free four digit code
  - Load assigns record ids from the target store and inserts in dependency
    order; a version already present on the same date fails the load

USAGE:
  f := factory.NewMasterFactory()
  master, err := f.ParseMaster(jsonString)
  summary, err := f.Load(ctx, master, targets)

SEE ALSO:
  - generic/effective.go: Version, the common record header
  - resolver/rule.go: rule families
  - api/scenarios.go: demo documents
*/
package factory

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/resolver"
	"github.com/warp/attendance-engine/workflow"
)

// CodeFormat is the layout of generated rule codes.
const CodeFormat = "0000"

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// MasterJSON is the JSON representation of a master document.
type MasterJSON struct {
	Employees         []EmployeeJSON    `json:"employees,omitempty"`
	Routes            []RouteJSON       `json:"routes,omitempty"`
	RouteApplications []RuleJSON        `json:"route_applications,omitempty"`
	Applications      []RuleJSON        `json:"applications,omitempty"`
	TimeSettings      []TimeSettingJSON `json:"time_settings,omitempty"`
	Cutoffs           []CutoffJSON      `json:"cutoffs,omitempty"`
	Schedules         []ScheduleJSON    `json:"schedules,omitempty"`
	Suspensions       []SuspensionJSON  `json:"suspensions,omitempty"`
}

// VersionJSON is the header shared by every effective-dated record.
type VersionJSON struct {
	Code          string `json:"code"`
	Name          string `json:"name,omitempty"`
	EffectiveDate string `json:"effective_date"`
	Inactive      bool   `json:"inactive,omitempty"`
}

type EmployeeJSON struct {
	PersonalID             string `json:"personal_id"`
	EmployeeCode           string `json:"employee_code"`
	LastName               string `json:"last_name"`
	FirstName              string `json:"first_name"`
	WorkPlaceCode          string `json:"work_place_code,omitempty"`
	EmploymentContractCode string `json:"employment_contract_code,omitempty"`
	SectionCode            string `json:"section_code,omitempty"`
	PositionCode           string `json:"position_code,omitempty"`
	EffectiveDate          string `json:"effective_date"`
	Inactive               bool   `json:"inactive,omitempty"`
}

type RouteJSON struct {
	VersionJSON
	Stages [][]string `json:"stages"`
}

// RuleJSON covers both rule families; WorkflowType and RouteCode are read
// for route applications, WorkSettingCode and CutoffCode for applications.
type RuleJSON struct {
	VersionJSON
	ApplicationType string         `json:"application_type"`
	Scope           resolver.Scope `json:"scope"`
	PersonalIDs     []string       `json:"personal_ids,omitempty"`

	WorkflowType string `json:"workflow_type,omitempty"`
	RouteCode    string `json:"route_code,omitempty"`

	WorkSettingCode string `json:"work_setting_code,omitempty"`
	CutoffCode      string `json:"cutoff_code,omitempty"`
}

type TimeSettingJSON struct {
	VersionJSON
	GeneralWorkHours     string `json:"general_work_hours"`
	MonthlyOvertimeLimit string `json:"monthly_overtime_limit,omitempty"`
	StartDayTime         string `json:"start_day_time,omitempty"`
}

type CutoffJSON struct {
	VersionJSON
	CutoffDay int `json:"cutoff_day"`
}

// ScheduleJSON assigns one work type to every day in [from, to]. With
// Weekends set, Saturdays become prescribed holidays and Sundays legal
// holidays.
type ScheduleJSON struct {
	PersonalID   string `json:"personal_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	WorkTypeCode string `json:"work_type_code"`
	Weekends     bool   `json:"weekends,omitempty"`
}

type SuspensionJSON struct {
	PersonalID string `json:"personal_id"`
	Start      string `json:"start"`
	End        string `json:"end,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// =============================================================================
// TYPED MASTER
// =============================================================================

// ScheduleDay is one scheduled work type.
type ScheduleDay struct {
	PersonalID   string
	Date         time.Time
	WorkTypeCode string
}

// Master holds parsed records. Record ids are assigned on Load.
type Master struct {
	Employees         []generic.Employee
	Routes            []workflow.Route
	RouteApplications []resolver.RouteApplication
	Applications      []resolver.Application
	TimeSettings      []resolver.TimeSetting
	Cutoffs           []resolver.Cutoff
	Schedules         []ScheduleDay
	Suspensions       []attendance.Suspension
}

// =============================================================================
// MASTER FACTORY
// =============================================================================

// MasterFactory converts JSON master documents to typed records.
type MasterFactory struct{}

// NewMasterFactory creates a new master factory.
func NewMasterFactory() *MasterFactory {
	return &MasterFactory{}
}

// ParseMaster parses a JSON string into a Master.
func (f *MasterFactory) ParseMaster(jsonStr string) (*Master, error) {
	var mj MasterJSON
	if err := json.Unmarshal([]byte(jsonStr), &mj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse master JSON: %v", generic.ErrInvalidInput, err)
	}
	return f.FromJSON(mj)
}

// FromJSON converts MasterJSON to typed records.
func (f *MasterFactory) FromJSON(mj MasterJSON) (*Master, error) {
	m := &Master{}

	for i, ej := range mj.Employees {
		eff, err := requiredDate(ej.EffectiveDate, "employees", i)
		if err != nil {
			return nil, err
		}
		if ej.PersonalID == "" {
			return nil, fieldError("employees", i, "personal_id is required")
		}
		m.Employees = append(m.Employees, generic.Employee{
			Version:            generic.Version{Code: ej.PersonalID, EffectiveDate: eff, Inactive: ej.Inactive},
			PersonalID:         ej.PersonalID,
			EmployeeCode:       ej.EmployeeCode,
			LastName:           ej.LastName,
			FirstName:          ej.FirstName,
			WorkPlaceCode:      ej.WorkPlaceCode,
			EmploymentContract: ej.EmploymentContractCode,
			SectionCode:        ej.SectionCode,
			PositionCode:       ej.PositionCode,
		})
	}

	for i, rj := range mj.Routes {
		v, err := parseVersion(rj.VersionJSON, "routes", i)
		if err != nil {
			return nil, err
		}
		if v.Code == "" {
			return nil, fieldError("routes", i, "code is required")
		}
		route := workflow.Route{Version: v, Name: rj.Name}
		for _, approvers := range rj.Stages {
			route.Stages = append(route.Stages, workflow.Stage{Approvers: slices.Clone(approvers)})
		}
		m.Routes = append(m.Routes, route)
	}

	raCodes := ruleCodes(mj.RouteApplications)
	for i, rj := range mj.RouteApplications {
		v, target, err := parseRule(rj, "route_applications", i, &raCodes)
		if err != nil {
			return nil, err
		}
		if rj.WorkflowType == "" || rj.RouteCode == "" {
			return nil, fieldError("route_applications", i, "workflow_type and route_code are required")
		}
		m.RouteApplications = append(m.RouteApplications, resolver.RouteApplication{
			Version: v, Target: target, Name: rj.Name,
			WorkflowType: rj.WorkflowType, RouteCode: rj.RouteCode,
		})
	}

	appCodes := ruleCodes(mj.Applications)
	for i, rj := range mj.Applications {
		v, target, err := parseRule(rj, "applications", i, &appCodes)
		if err != nil {
			return nil, err
		}
		if rj.WorkSettingCode == "" || rj.CutoffCode == "" {
			return nil, fieldError("applications", i, "work_setting_code and cutoff_code are required")
		}
		m.Applications = append(m.Applications, resolver.Application{
			Version: v, Target: target, Name: rj.Name,
			WorkSettingCode: rj.WorkSettingCode, CutoffCode: rj.CutoffCode,
		})
	}

	for i, tj := range mj.TimeSettings {
		ts, err := parseTimeSetting(tj, i)
		if err != nil {
			return nil, err
		}
		m.TimeSettings = append(m.TimeSettings, ts)
	}

	for i, cj := range mj.Cutoffs {
		v, err := parseVersion(cj.VersionJSON, "cutoffs", i)
		if err != nil {
			return nil, err
		}
		if v.Code == "" {
			return nil, fieldError("cutoffs", i, "code is required")
		}
		m.Cutoffs = append(m.Cutoffs, resolver.Cutoff{Version: v, Name: cj.Name, CutoffDay: cj.CutoffDay})
	}

	for i, sj := range mj.Schedules {
		days, err := parseSchedule(sj, i)
		if err != nil {
			return nil, err
		}
		m.Schedules = append(m.Schedules, days...)
	}

	for i, sj := range mj.Suspensions {
		start, err := requiredDate(sj.Start, "suspensions", i)
		if err != nil {
			return nil, err
		}
		end, err := generic.ParseDate(sj.End)
		if err != nil {
			return nil, fieldError("suspensions", i, "invalid end date %q", sj.End)
		}
		m.Suspensions = append(m.Suspensions, attendance.Suspension{
			PersonalID: sj.PersonalID, Start: start, End: end, Reason: sj.Reason,
		})
	}

	return m, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func fieldError(section string, row int, format string, args ...any) error {
	return fmt.Errorf("%w: %s[%d]: %s", generic.ErrInvalidInput, section, row, fmt.Sprintf(format, args...))
}

func requiredDate(s, section string, row int) (time.Time, error) {
	if s == "" {
		return time.Time{}, fieldError(section, row, "date is required")
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return time.Time{}, fieldError(section, row, "invalid date %q", s)
	}
	return d, nil
}

func parseVersion(vj VersionJSON, section string, row int) (generic.Version, error) {
	eff, err := requiredDate(vj.EffectiveDate, section, row)
	if err != nil {
		return generic.Version{}, err
	}
	return generic.Version{Code: vj.Code, EffectiveDate: eff, Inactive: vj.Inactive}, nil
}

// ruleCodes collects the codes a document already uses.
func ruleCodes(rules []RuleJSON) []string {
	var codes []string
	for _, r := range rules {
		if r.Code != "" {
			codes = append(codes, r.Code)
		}
	}
	return codes
}

// nextCode returns the next free generated code and records it as used.
func nextCode(used *[]string) (string, error) {
	n := generic.NextSequence(CodeFormat, 1, 9999, *used)
	code := generic.FormatSequence(CodeFormat, n)
	if slices.Contains(*used, code) {
		return "", fmt.Errorf("%w: no free rule code after %s", generic.ErrInvalidInput, code)
	}
	*used = append(*used, code)
	return code, nil
}

func parseRule(rj RuleJSON, section string, row int, used *[]string) (generic.Version, resolver.Target, error) {
	v, err := parseVersion(rj.VersionJSON, section, row)
	if err != nil {
		return generic.Version{}, resolver.Target{}, err
	}
	if v.Code == "" {
		if v.Code, err = nextCode(used); err != nil {
			return generic.Version{}, resolver.Target{}, err
		}
	}

	target := resolver.Target{Scope: rj.Scope}
	switch resolver.ApplicationType(strings.ToUpper(rj.ApplicationType)) {
	case resolver.ApplicationPerson:
		target.ApplicationType = resolver.ApplicationPerson
		if len(rj.PersonalIDs) == 0 {
			return generic.Version{}, resolver.Target{}, fieldError(section, row, "PERSON rules need personal_ids")
		}
		target.PersonalIDs = strings.Join(rj.PersonalIDs, ",")
	case resolver.ApplicationMaster, "":
		target.ApplicationType = resolver.ApplicationMaster
	default:
		return generic.Version{}, resolver.Target{}, fieldError(section, row, "unknown application_type %q", rj.ApplicationType)
	}
	return v, target, nil
}

func parseTimeSetting(tj TimeSettingJSON, row int) (resolver.TimeSetting, error) {
	v, err := parseVersion(tj.VersionJSON, "time_settings", row)
	if err != nil {
		return resolver.TimeSetting{}, err
	}
	if v.Code == "" {
		return resolver.TimeSetting{}, fieldError("time_settings", row, "code is required")
	}
	hours, err := parseDecimal(tj.GeneralWorkHours)
	if err != nil {
		return resolver.TimeSetting{}, fieldError("time_settings", row, "invalid general_work_hours %q", tj.GeneralWorkHours)
	}
	limit, err := parseDecimal(tj.MonthlyOvertimeLimit)
	if err != nil {
		return resolver.TimeSetting{}, fieldError("time_settings", row, "invalid monthly_overtime_limit %q", tj.MonthlyOvertimeLimit)
	}
	if hours.IsNegative() || limit.IsNegative() {
		return resolver.TimeSetting{}, fieldError("time_settings", row, "hours must not be negative")
	}
	return resolver.TimeSetting{
		Version:              v,
		Name:                 tj.Name,
		GeneralWorkHours:     hours,
		MonthlyOvertimeLimit: limit,
		StartDayTime:         tj.StartDayTime,
	}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseSchedule(sj ScheduleJSON, row int) ([]ScheduleDay, error) {
	if sj.PersonalID == "" || sj.WorkTypeCode == "" {
		return nil, fieldError("schedules", row, "personal_id and work_type_code are required")
	}
	from, err := requiredDate(sj.From, "schedules", row)
	if err != nil {
		return nil, err
	}
	to, err := requiredDate(sj.To, "schedules", row)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fieldError("schedules", row, "to is before from")
	}
	var out []ScheduleDay
	for _, d := range generic.DateRange(from, to) {
		code := sj.WorkTypeCode
		if sj.Weekends {
			switch d.Weekday() {
			case time.Saturday:
				code = attendance.WorkTypePrescribedHoliday
			case time.Sunday:
				code = attendance.WorkTypeLegalHoliday
			}
		}
		out = append(out, ScheduleDay{PersonalID: sj.PersonalID, Date: d, WorkTypeCode: code})
	}
	return out, nil
}
