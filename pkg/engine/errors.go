// Package engine implements the goal-seeking orchestration core: goal graph
// construction, dependency scheduling, strategy resolution, action execution,
// success evaluation, and adaptive failure recovery.
package engine

import (
	"errors"
	"fmt"
)

// EngineError represents a classified error with context.
// Parse-time codes (ErrCodeParse, ErrCodeCyclicDependency) abort a run before
// any execution. Execution-time codes stay local to a single goal and are
// absorbed by the recovery engine.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the failure classification for recovery logic. Empty for
	// parse-time errors, which are never recovered.
	Class FailureClass `json:"class,omitempty"`

	// Code is the error code for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// GoalID is the goal that caused the error, if applicable.
	GoalID string `json:"goal_id,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	prefix := e.Code
	if e.Class != "" {
		prefix = fmt.Sprintf("%s/%s", e.Class, e.Code)
	}
	if e.GoalID != "" {
		prefix = fmt.Sprintf("%s (goal=%s)", prefix, e.GoalID)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", prefix, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithGoal adds goal context to an error.
func (e *EngineError) WithGoal(goalID string) *EngineError {
	e.GoalID = goalID
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Engine error codes.
const (
	// ErrCodeParse marks malformed reasoner output. Fatal to the run.
	ErrCodeParse = "PARSE_ERROR"

	// ErrCodeCyclicDependency marks a cycle in the declared goal graph.
	// Fatal to the run; no valid plan exists.
	ErrCodeCyclicDependency = "CYCLIC_DEPENDENCY"

	// ErrCodePreflight marks a goal whose parameter references could not
	// be resolved yet. The goal is deferred, not failed.
	ErrCodePreflight = "PREFLIGHT_FAILED"

	// ErrCodeActionTimeout marks an action that exceeded its timeout.
	ErrCodeActionTimeout = "ACTION_TIMEOUT"

	// ErrCodeAction wraps a tool failure with no more specific code.
	ErrCodeAction = "ACTION_FAILED"

	// ErrCodeEvaluationAmbiguous marks an evaluation whose signals
	// conflict, such as a clean execution with a failed hard criterion.
	// Never promoted to success.
	ErrCodeEvaluationAmbiguous = "EVALUATION_AMBIGUOUS"

	// ErrCodeValidation marks invalid input to an engine component.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeInternal marks an engine invariant violation.
	ErrCodeInternal = "INTERNAL_ERROR"
)

// Structured tool error codes. Tools attach these so the recovery engine can
// classify failures without string sniffing.
const (
	ToolCodeTimeout       = "TIMEOUT"
	ToolCodeThrottled     = "THROTTLED"
	ToolCodeNameTaken     = "NAME_TAKEN"
	ToolCodeQuotaExceeded = "QUOTA_EXCEEDED"
	ToolCodeAuthDenied    = "AUTH_DENIED"
	ToolCodeInvalidConfig = "INVALID_CONFIG"
	ToolCodeNotFound      = "NOT_FOUND"
	ToolCodeExecFailed    = "EXEC_FAILED"
)

// NewParseError creates a fatal parse error for malformed reasoner output.
func NewParseError(message string, err error) *EngineError {
	return &EngineError{Code: ErrCodeParse, Message: message, Err: err}
}

// NewCyclicDependencyError creates a fatal error for a cyclic goal graph.
func NewCyclicDependencyError(cycle string) *EngineError {
	return &EngineError{
		Code:    ErrCodeCyclicDependency,
		Message: fmt.Sprintf("circular dependency detected: %s", cycle),
	}
}

// NewPreflightError creates a deferral error for unresolved references.
func NewPreflightError(goalID string, missing []string) *EngineError {
	return &EngineError{
		Code:    ErrCodePreflight,
		Message: "parameter references not yet resolvable",
		GoalID:  goalID,
		Details: map[string]interface{}{"missing": missing},
	}
}

// NewActionTimeoutError creates a transient timeout error for an action.
func NewActionTimeoutError(goalID string, err error) *EngineError {
	return &EngineError{
		Class:   FailureClassTransient,
		Code:    ErrCodeActionTimeout,
		Message: "action exceeded its timeout",
		GoalID:  goalID,
		Err:     err,
	}
}

// NewActionError wraps a tool failure with its structured code.
func NewActionError(goalID, toolCode, message string, err error) *EngineError {
	if toolCode == "" {
		toolCode = ErrCodeAction
	}
	return &EngineError{
		Code:    toolCode,
		Message: message,
		GoalID:  goalID,
		Err:     err,
	}
}

// NewEvaluationAmbiguousError creates an error for conflicting evaluation
// signals.
func NewEvaluationAmbiguousError(goalID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeEvaluationAmbiguous,
		Message: "evaluation signals conflict",
		GoalID:  goalID,
	}
}

// NewValidationError creates an error for invalid component input.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{Code: ErrCodeValidation, Message: message, Err: err}
}

// NewInternalError creates an error for an engine invariant violation.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{Code: ErrCodeInternal, Message: message, Err: err}
}

// IsParseError returns true for malformed reasoner output errors.
func IsParseError(err error) bool {
	return hasCode(err, ErrCodeParse)
}

// IsCyclicDependencyError returns true for goal graph cycle errors.
func IsCyclicDependencyError(err error) bool {
	return hasCode(err, ErrCodeCyclicDependency)
}

// IsPreflightError returns true for deferral errors.
func IsPreflightError(err error) bool {
	return hasCode(err, ErrCodePreflight)
}

// IsFatal returns true for errors that abort the whole run before execution.
func IsFatal(err error) bool {
	return IsParseError(err) || IsCyclicDependencyError(err)
}

func hasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ErrorCode extracts the engine error code from an error chain, or "" if
// the error carries none.
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsEngineError extracts an EngineError from an error chain, wrapping plain
// errors as generic action failures.
func AsEngineError(err error) *EngineError {
	if err == nil {
		return nil
	}
	var e *EngineError
	if errors.As(err, &e) {
		return e
	}
	return NewActionError("", ErrCodeAction, "execution failed", err)
}
