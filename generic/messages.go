package generic

import (
	"errors"
	"strconv"
	"sync"
)

// Message codes. Rendering to user text belongs to the caller.
const (
	MsgWorkflowProcessFailed    = "WORKFLOW_PROCESS_FAILED"
	MsgNotApprover              = "WORKFLOW_NOT_APPROVER"
	MsgWorkflowInFlight         = "WORKFLOW_IN_FLIGHT"
	MsgSettingApplicationDefect = "SETTING_APPLICATION_DEFECT"
	MsgExclusiveControl         = "EXCLUSIVE_CONTROL"
	MsgNotFound                 = "NOT_FOUND"
	MsgDuplicateVersion         = "DUPLICATE_VERSION"
	MsgRequired                 = "REQUIRED"
	MsgInvalidFormat            = "INVALID_FORMAT"
	MsgInvalidValue             = "INVALID_VALUE"
	MsgDateRange                = "DATE_RANGE"
	MsgInfrastructure           = "INFRASTRUCTURE"

	MsgApplied   = "APPLIED"
	MsgApproved  = "APPROVED"
	MsgProcessed = "PROCESSED"
)

// NoRow marks a message that is not tied to a batch row.
const NoRow = -1

// Message is a code plus positional replacement arguments.
type Message struct {
	Code  string   `json:"code"`
	Args  []string `json:"args,omitempty"`
	Field string   `json:"field,omitempty"`
	Row   int      `json:"row"`
}

// MessageSink receives message codes from the core.
type MessageSink interface {
	AddError(code string, args ...string)
	AddMessage(code string, args ...string)
}

// Messages collects errors and notices for one logical request. Validation
// keeps adding to it so every problem is reported in one pass; callers check
// HasError before each step of a multi-step operation.
type Messages struct {
	mu      sync.Mutex
	errors  []Message
	notices []Message
}

func NewMessages() *Messages { return &Messages{} }

func (m *Messages) AddError(code string, args ...string) {
	m.add(&m.errors, Message{Code: code, Args: args, Row: NoRow})
}

func (m *Messages) AddMessage(code string, args ...string) {
	m.add(&m.notices, Message{Code: code, Args: args, Row: NoRow})
}

// AddFieldError records a validation error against a field and optional row.
func (m *Messages) AddFieldError(code, field string, row int, args ...string) {
	m.add(&m.errors, Message{Code: code, Args: args, Field: field, Row: row})
}

func (m *Messages) add(list *[]Message, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*list = append(*list, msg)
}

func (m *Messages) HasError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors) > 0
}

func (m *Messages) Errors() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.errors...)
}

func (m *Messages) Notices() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.notices...)
}

// AddFromError records a state or lookup error under its message code and
// reports whether it did. Infrastructure errors are not recorded: they must
// propagate.
func (m *Messages) AddFromError(err error, row int) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	var args []string
	if row != NoRow {
		args = append(args, strconv.Itoa(row+1))
	}
	var code string
	var res *ResolutionError
	switch {
	case errors.As(err, &res):
		code = MsgSettingApplicationDefect
		args = append(args, FormatISO(res.Date), res.What)
	case errors.Is(err, ErrExclusiveControl):
		code = MsgExclusiveControl
	case errors.Is(err, ErrNotApprover):
		code = MsgNotApprover
	case errors.Is(err, ErrWorkflowInFlight):
		code = MsgWorkflowInFlight
	case errors.Is(err, ErrWorkflowProcess):
		code = MsgWorkflowProcessFailed
	case errors.Is(err, ErrDuplicateVersion):
		code = MsgDuplicateVersion
	case errors.Is(err, ErrNotFound):
		code = MsgNotFound
	case errors.Is(err, ErrInvalidInput):
		code = MsgInvalidValue
	default:
		return false
	}
	m.add(&m.errors, Message{Code: code, Args: args, Row: row})
	return true
}
