/*
errors.go - Centralized error types for the attendance core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. State errors - illegal transition, missing configuration,
     exclusive-control conflict. The operation is aborted, prior state
     is untouched, and the caller may re-fetch and retry.
  2. Validation errors - user-correctable input problems. These are
     collected in Messages (messages.go), not returned one at a time.
  3. Infrastructure errors - store failures. Always wrapped in
     InfrastructureError, never swallowed.

USAGE:
    if errors.Is(err, generic.ErrExclusiveControl) {
        // re-read and retry
    }
    if generic.IsFatal(err) {
        return err
    }

SEE ALSO:
  - messages.go: maps these errors to message codes
  - workflow/engine.go: TransitionError producer
  - resolver/session.go: ResolutionError producer
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrWorkflowProcess is the umbrella for a workflow operation that could not be applied.
	ErrWorkflowProcess = errors.New("workflow process failed")

	// ErrIllegalTransition is returned when the current status does not permit the action.
	ErrIllegalTransition = fmt.Errorf("%w: illegal transition", ErrWorkflowProcess)

	// ErrNotApprover is returned when the actor is not on the current approval stage.
	ErrNotApprover = fmt.Errorf("%w: actor is not an approver", ErrWorkflowProcess)

	// ErrWorkflowInFlight is returned when deleting a workflow awaiting approver action.
	ErrWorkflowInFlight = fmt.Errorf("%w: workflow is awaiting approval", ErrWorkflowProcess)

	// ErrConfigurationMissing is returned when no rule resolves for an employee and date.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrExclusiveControl is returned when the persisted version changed underneath an operation.
	ErrExclusiveControl = errors.New("exclusive control: record was modified")

	// ErrDuplicateVersion is returned when a key already has a version on that effective date.
	ErrDuplicateVersion = errors.New("duplicate effective version")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError describes a rejected workflow action.
type TransitionError struct {
	WorkflowID int64
	Action     string
	From       string
	Err        error // one of the workflow sentinels
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("workflow %d: %s from %s: %v", e.WorkflowID, e.Action, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	if e.Err == nil {
		return ErrIllegalTransition
	}
	return e.Err
}

// ResolutionError reports that no rule applies to an employee on a date.
type ResolutionError struct {
	PersonalID string
	Date       time.Time
	What       string // e.g. "route application", "time setting"
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no %s for %s on %s", e.What, e.PersonalID, FormatISO(e.Date))
}

func (e *ResolutionError) Unwrap() error {
	return ErrConfigurationMissing
}

// ExclusiveControlError reports a version mismatch.
type ExclusiveControlError struct {
	ID       string
	Expected int64
	Actual   int64
}

func (e *ExclusiveControlError) Error() string {
	return fmt.Sprintf("%s: expected version %d, found %d", e.ID, e.Expected, e.Actual)
}

func (e *ExclusiveControlError) Unwrap() error {
	return ErrExclusiveControl
}

// InfrastructureError is the single fatal error type: a store or
// instance-creation failure that aborts the enclosing operation.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as an InfrastructureError unless it already carries a
// state meaning. nil stays nil.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsNotFound(err) || IsRetryable(err) || IsFatal(err) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed after re-reading.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExclusiveControl)
}

// IsClientError returns true if the error is a state or validation error.
func IsClientError(err error) bool {
	return errors.Is(err, ErrWorkflowProcess) ||
		errors.Is(err, ErrConfigurationMissing) ||
		errors.Is(err, ErrDuplicateVersion) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFatal returns true for infrastructure failures.
func IsFatal(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}
