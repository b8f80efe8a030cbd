// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
	ErrConfig     = errors.New("configuration error")

	// Screening run failures.
	ErrLaunch     = errors.New("launch failure")
	ErrTimeout    = errors.New("timeout exceeded")
	ErrParse      = errors.New("parse failure")
	ErrScreener   = errors.New("screener failure")
	ErrExitStatus = errors.New("non-zero exit status")

	// ErrAlreadyRunning is a conflict: admission was refused, try again shortly.
	ErrAlreadyRunning = fmt.Errorf("%w: already running", ErrConflict)

	ErrEmpty       = errors.New("no result available")
	ErrPersistence = errors.New("persistence failure")
)

// maxOutputInMessage bounds how much raw process output is copied into a message.
const maxOutputInMessage = 512

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "interval")
	Resource string // For not found/conflict (e.g., "screening")
	Op       string // Operation that failed (e.g., "runner.start")
	Output   string // Raw process output kept for diagnostics
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Config marks a startup configuration problem.
func Config(cause error) error {
	return &Error{
		Sentinel: ErrConfig,
		Message:  fmt.Sprintf("invalid configuration: %v", cause),
		Cause:    cause,
	}
}

// Launch reports that the screener could not be started at all.
func Launch(command string, cause error) error {
	return &Error{
		Sentinel: ErrLaunch,
		Message:  fmt.Sprintf("failed to launch screener %q: %v", command, cause),
		Op:       "runner.start",
		Cause:    cause,
	}
}

// Timeout reports a run that was terminated after exceeding its deadline.
func Timeout(after time.Duration) error {
	return &Error{
		Sentinel: ErrTimeout,
		Message:  fmt.Sprintf("screening run exceeded timeout of %s", after),
		Op:       "runner.wait",
		Cause:    context.DeadlineExceeded,
	}
}

// Parse reports output that did not contain a decodable result.
// The full candidate text is kept in Output.
func Parse(candidate string, cause error) error {
	return &Error{
		Sentinel: ErrParse,
		Message:  fmt.Sprintf("screener output is not a valid result: %v (output: %q)", cause, truncate(candidate)),
		Op:       "extract",
		Output:   candidate,
		Cause:    cause,
	}
}

// Screener reports a failure the screener itself declared in its payload.
func Screener(reported string) error {
	if reported == "" {
		reported = "no reason given"
	}
	return &Error{
		Sentinel: ErrScreener,
		Message:  fmt.Sprintf("screener reported failure: %s", reported),
		Op:       "extract",
	}
}

// ExitStatus reports a screener that exited non-zero.
func ExitStatus(code int, stderr string) error {
	msg := fmt.Sprintf("screener exited with code %d", code)
	if stderr != "" {
		msg += ": " + truncate(stderr)
	}
	return &Error{
		Sentinel: ErrExitStatus,
		Message:  msg,
		Op:       "runner.wait",
		Output:   stderr,
	}
}

// AlreadyRunning reports a rejected admission.
func AlreadyRunning() error {
	return &Error{
		Sentinel: ErrAlreadyRunning,
		Message:  "a screening run is already in progress",
		Resource: "screening",
	}
}

// Empty reports a read before the first successful run.
func Empty() error {
	return &Error{
		Sentinel: ErrEmpty,
		Message:  "no screening result available yet",
		Resource: "screening",
	}
}

// Persistence wraps a failed durable write or read of the result document.
func Persistence(op string, cause error) error {
	return &Error{
		Sentinel: ErrPersistence,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Reason returns a short, low-cardinality label for err, suitable for
// metrics and status output.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrLaunch):
		return "launch"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrScreener):
		return "screener"
	case errors.Is(err, ErrExitStatus):
		return "exit_status"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

func truncate(s string) string {
	if len(s) <= maxOutputInMessage {
		return s
	}
	return s[:maxOutputInMessage] + "..."
}
