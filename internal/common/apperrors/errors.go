// Package apperrors defines the orchestrator's error taxonomy. Every error
// that can reach a session boundary (an API response or an error event) is
// constructed here, so handlers never leak a raw internal error.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// Code identifies a class of orchestrator failure.
type Code string

const (
	CodeInvalidSpec           Code = "invalid_spec"
	CodeAlreadyStarted        Code = "already_started"
	CodeWorkspacePathRejected Code = "workspace_path_rejected"
	CodePlannerFailed         Code = "planner_failed"
	CodeCycleDetected         Code = "cycle_detected"
	CodeTaskFailedTerminal    Code = "task_failed_terminal"
	CodeCompilationFailed     Code = "compilation_failed"
	CodeBudgetExceeded        Code = "budget_exceeded"
	CodeCancelled             Code = "cancelled"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"
	CodeInternal              Code = "internal_error"
)

// AppError is the single error type crossing the orchestrator boundary. It
// carries enough information to render both an HTTP response and an error
// event without the caller needing to re-classify the underlying cause.
type AppError struct {
	Code       Code
	Message    string
	HTTPStatus int
	// Path identifies the offending field for validation-style errors (e.g.
	// "nugget.goal"). Empty when not applicable.
	Path string
	// Violations holds every validation failure (one or more) when the
	// error was built by InvalidSpecMulti; Path/Message
	// above always mirror Violations[0] so callers that only look at
	// the single-error fields still see a meaningful message.
	Violations []models.ValidationError
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the status code to use on the HTTP boundary,
// defaulting to 500 when unset.
func (e *AppError) HTTPStatusCode() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

func newErr(code Code, status int, msg string) *AppError {
	return &AppError{Code: code, Message: msg, HTTPStatus: status}
}

// InvalidSpec reports a NuggetSpec that failed validation. path identifies
// the offending field, e.g. "nugget.goal" or "workspace_path".
func InvalidSpec(path, msg string) *AppError {
	return &AppError{Code: CodeInvalidSpec, Message: msg, HTTPStatus: http.StatusBadRequest, Path: path}
}

// InvalidSpecMulti reports a NuggetSpec that failed validation with one or
// more violations, preserving every entry so the HTTP boundary can render
// the full list instead of truncating to the first. errs must be non-empty.
func InvalidSpecMulti(errs []models.ValidationError) *AppError {
	first := errs[0]
	return &AppError{
		Code:       CodeInvalidSpec,
		Message:    first.Message,
		HTTPStatus: http.StatusBadRequest,
		Path:       first.Path,
		Violations: errs,
	}
}

// AlreadyStarted reports a start() race loser: the session was not idle.
func AlreadyStarted(sessionID string) *AppError {
	return newErr(CodeAlreadyStarted, http.StatusConflict, fmt.Sprintf("session %s already started", sessionID))
}

// WorkspacePathRejected reports a workspace path that failed policy (too
// long, null byte, UNC, blocked root, blocked home subdirectory).
func WorkspacePathRejected(path, reason string) *AppError {
	return &AppError{
		Code:       CodeWorkspacePathRejected,
		Message:    reason,
		HTTPStatus: http.StatusBadRequest,
		Path:       path,
	}
}

// PlannerFailed reports that the planner could not produce a DAG from the
// NuggetSpec.
func PlannerFailed(msg string, err error) *AppError {
	return &AppError{Code: CodePlannerFailed, Message: msg, HTTPStatus: http.StatusUnprocessableEntity, Err: err}
}

// CycleDetected reports that the planned DAG contains a cycle; the
// orchestrator also reports a dependency on an unknown task id with it.
// No task is ever dispatched for such a plan.
func CycleDetected(msg string) *AppError {
	return newErr(CodeCycleDetected, http.StatusUnprocessableEntity, msg)
}

// TaskFailedTerminal reports a task that exhausted retries without a human
// gate resolving it, or whose gate was rejected without a revision path.
func TaskFailedTerminal(taskID, msg string) *AppError {
	return &AppError{Code: CodeTaskFailedTerminal, Message: msg, HTTPStatus: http.StatusUnprocessableEntity, Path: taskID}
}

// CompilationFailed reports a build that failed to compile during the
// deploying phase.
func CompilationFailed(msg string) *AppError {
	return newErr(CodeCompilationFailed, http.StatusUnprocessableEntity, msg)
}

// BudgetExceeded reports that dispatching a task would push the effective
// token budget past its configured maximum.
func BudgetExceeded(msg string) *AppError {
	return newErr(CodeBudgetExceeded, http.StatusUnprocessableEntity, msg)
}

// Cancelled reports a session that was stopped via cancellation.
func Cancelled(msg string) *AppError {
	return newErr(CodeCancelled, http.StatusConflict, msg)
}

// NotFound reports a missing session, task, or resource.
func NotFound(msg string) *AppError {
	return newErr(CodeNotFound, http.StatusNotFound, msg)
}

// Conflict reports a generic state conflict not covered by a more specific
// constructor.
func Conflict(msg string) *AppError {
	return newErr(CodeConflict, http.StatusConflict, msg)
}

// Internal wraps an unexpected internal error. It should be rare: every
// anticipated failure mode has its own constructor above.
func Internal(msg string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// Wrap attaches additional context to an existing AppError, preserving its
// code and HTTP status.
func Wrap(err *AppError, msg string) *AppError {
	return &AppError{
		Code:       err.Code,
		Message:    msg + ": " + err.Message,
		HTTPStatus: err.HTTPStatus,
		Path:       err.Path,
		Err:        err,
	}
}

// As extracts an *AppError from err, matching the stdlib errors.As convention.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err is an AppError of the given code.
func Is(err error, code Code) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}
