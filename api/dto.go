/*
dto.go - Request and response bodies of the HTTP API

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external contract: dates travel as YYYY-MM-DD
  strings, enums as their lowercase names.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request bodies carry `validate` tags checked by go-playground/validator.
  Every failure becomes a field message named by the json tag, with a
  display label as its first argument, so one response lists every problem:

    {"error": "Validation failed", "code": "INVALID_VALUE",
     "messages": [{"code": "REQUIRED", "field": "personal_id", "args": ["Personal Id"], "row": -1}]}

SEE ALSO:
  - handlers.go: Uses these types
  - generic/messages.go: Message codes
*/
package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/workflow"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// DraftWorkflowRequest creates a bare workflow without a request payload.
type DraftWorkflowRequest struct {
	FunctionCode string `json:"function_code" validate:"required,max=20"`
	WorkflowType string `json:"workflow_type" validate:"max=20"`
	RequesterID  string `json:"requester_id" validate:"required"`
	TargetDate   string `json:"target_date" validate:"required,datetime=2006-01-02"`
	SelfApproval bool   `json:"self_approval"`
	Comment      string `json:"comment" validate:"max=1000"`
}

// ActionRequest carries the version the caller last read. Zero skips the
// version check.
type ActionRequest struct {
	Version int64  `json:"version" validate:"gte=0"`
	Comment string `json:"comment" validate:"max=1000"`
}

type ApproversRequest struct {
	Version int64      `json:"version" validate:"gte=0"`
	Stages  [][]string `json:"stages" validate:"required,min=1,dive,min=1,dive,required"`
}

type BatchItemRequest struct {
	WorkflowID  int64  `json:"workflow_id" validate:"required,gt=0"`
	PersonalID  string `json:"personal_id" validate:"required"`
	RequestDate string `json:"request_date" validate:"required,datetime=2006-01-02"`
}

type BatchApprovalRequest struct {
	Items   []BatchItemRequest `json:"items" validate:"required,min=1,max=500,dive"`
	Comment string             `json:"comment" validate:"max=1000"`
}

// SubmitRequest drafts (Submit false) or applies one request of any kind.
// WorkflowID set re-drafts an existing DRAFT or REJECTED request.
type SubmitRequest struct {
	Kind           string     `json:"kind" validate:"required"`
	PersonalID     string     `json:"personal_id" validate:"required"`
	Date           string     `json:"date" validate:"required,datetime=2006-01-02"`
	EndDate        string     `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	OvertimeType   string     `json:"overtime_type" validate:"omitempty,oneof=before after"`
	Range          string     `json:"range" validate:"omitempty,oneof=all am pm time"`
	WorkTypeCode   string     `json:"work_type_code" validate:"max=20"`
	Minutes        int        `json:"minutes" validate:"gte=0"`
	StartTime      string     `json:"start_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime        string     `json:"end_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	OvertimeBefore int        `json:"overtime_before" validate:"gte=0"`
	OvertimeAfter  int        `json:"overtime_after" validate:"gte=0"`
	Reason         string     `json:"reason" validate:"max=500"`
	WorkflowID     int64      `json:"workflow_id" validate:"gte=0"`
	Version        int64      `json:"version" validate:"gte=0"`
	Submit         bool       `json:"submit"`
	SelfApproval   bool       `json:"self_approval"`
	Approvers      [][]string `json:"approvers" validate:"omitempty,dive,min=1,dive,required"`
	Comment        string     `json:"comment" validate:"max=1000"`
}

// DetectRequest runs the cutoff checks for one employee over [from, to].
// Before narrows the range to days before it; Immediate stops at the
// first finding.
type DetectRequest struct {
	PersonalID string `json:"personal_id" validate:"required"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
	Before     string `json:"before" validate:"omitempty,datetime=2006-01-02"`
	Immediate  bool   `json:"immediate"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Code     string            `json:"code,omitempty"`
	Details  string            `json:"details,omitempty"`
	Messages []generic.Message `json:"messages,omitempty"`
}

// WorkflowDTO is a workflow plus the values clients display.
type WorkflowDTO struct {
	workflow.Workflow
	StatusLabel      string   `json:"status_label"`
	CurrentApprovers []string `json:"current_approvers"`
}

type RequestDTO struct {
	Request  attendance.Request `json:"request"`
	Workflow WorkflowDTO        `json:"workflow"`
}

type BatchItemResultDTO struct {
	WorkflowID int64           `json:"workflow_id"`
	PersonalID string          `json:"personal_id"`
	Status     workflow.Status `json:"status,omitempty"`
	Version    int64           `json:"version,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type BatchApprovalResponse struct {
	Approved int                  `json:"approved"`
	Failed   int                  `json:"failed"`
	Results  []BatchItemResultDTO `json:"results"`
	Errors   []generic.Message    `json:"errors"`
	Notices  []generic.Message    `json:"notices"`
}

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toWorkflowDTO(w workflow.Workflow) WorkflowDTO {
	approvers := w.CurrentApprovers()
	if approvers == nil {
		approvers = []string{}
	}
	return WorkflowDTO{Workflow: w, StatusLabel: w.Status.Label(), CurrentApprovers: approvers}
}

func toWorkflowDTOs(wfs []workflow.Workflow) []WorkflowDTO {
	out := make([]WorkflowDTO, len(wfs))
	for i, w := range wfs {
		out[i] = toWorkflowDTO(w)
	}
	return out
}

var overtimeTypes = map[string]attendance.OvertimeType{
	"before": attendance.OvertimeBefore,
	"after":  attendance.OvertimeAfter,
}

var dayRanges = map[string]attendance.DayRange{
	"all":  attendance.RangeAll,
	"am":   attendance.RangeAM,
	"pm":   attendance.RangePM,
	"time": attendance.RangeTime,
}

// toRequest converts an already validated body. Values the tags cannot
// express (the kind name) are reported on msgs.
func (s SubmitRequest) toRequest(msgs *generic.Messages) attendance.Request {
	kind, err := attendance.ParseKind(s.Kind)
	if err != nil {
		msgs.AddFieldError(generic.MsgInvalidValue, "kind", generic.NoRow, fieldLabel("kind"))
	}
	date, _ := generic.ParseDate(s.Date)
	end, _ := generic.ParseDate(s.EndDate)
	r := attendance.Request{
		Kind:           kind,
		PersonalID:     s.PersonalID,
		WorkflowID:     s.WorkflowID,
		Date:           date,
		EndDate:        end,
		OvertimeType:   overtimeTypes[s.OvertimeType],
		Range:          dayRanges[s.Range],
		WorkTypeCode:   s.WorkTypeCode,
		Minutes:        s.Minutes,
		StartTime:      parseTimestamp(s.StartTime),
		EndTime:        parseTimestamp(s.EndTime),
		OvertimeBefore: s.OvertimeBefore,
		OvertimeAfter:  s.OvertimeAfter,
		Reason:         s.Reason,
	}
	if r.Kind == attendance.KindHoliday && r.Range == 0 {
		r.Range = attendance.RangeAll
	}
	return r
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateBody records every tag failure of body on msgs.
func validateBody(body any, msgs *generic.Messages) {
	err := validate.Struct(body)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		msgs.AddError(generic.MsgInvalidValue, err.Error())
		return
	}
	for _, fe := range verrs {
		msgs.AddFieldError(codeForTag(fe.Tag()), fieldPath(fe.Namespace()), generic.NoRow, fieldLabel(fe.Field()))
	}
}

func codeForTag(tag string) string {
	switch tag {
	case "required", "required_if", "required_with":
		return generic.MsgRequired
	case "datetime":
		return generic.MsgInvalidFormat
	}
	return generic.MsgInvalidValue
}

// fieldPath drops the struct name: "SubmitRequest.personal_id" -> "personal_id".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// fieldLabel renders a json name for display: "personal_id" -> "Personal Id".
// Casers keep state, so each call gets its own.
func fieldLabel(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	return cases.Title(language.English).String(strings.ReplaceAll(field, "_", " "))
}

// dateRangeError reports an inverted [from, to] pair on the to field.
func dateRangeError(msgs *generic.Messages, from, to time.Time, toField string) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		msgs.AddFieldError(generic.MsgDateRange, toField, generic.NoRow, fieldLabel(toField),
			fmt.Sprintf("%s > %s", generic.FormatISO(from), generic.FormatISO(to)))
	}
}
