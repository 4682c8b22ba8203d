// Package errs defines the error taxonomy shared by the clock, the event
// queue and the graph controller.
//
// Every failure surfaced by those components is an *Error carrying a Code.
// Callers branch on the category with the Is* helpers, which use errors.As
// and therefore see through fmt.Errorf wrapping. A PartialFailure keeps the
// first stage error it saw as its cause, so errors.Is still reaches it.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeInvalidArgument indicates a nil handle, bad interval or bad flag value.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeUnexpected indicates a goroutine or synchronization primitive could
	// not be set up. Unrecoverable for the owning component.
	CodeUnexpected Code = "UNEXPECTED"

	// CodeTimeout is returned by blocking waits whose deadline expired.
	CodeTimeout Code = "TIMEOUT"

	// CodePartialFailure indicates at least one stage failed during a
	// broadcast. Only the first stage error is retained.
	CodePartialFailure Code = "PARTIAL_FAILURE"

	// CodeTransitioning is the intermediate GetState result. It is not a
	// failure: the stage has simply not finished its last state change.
	CodeTransitioning Code = "TRANSITIONING"
)

// Error is the structured error type used across the engine.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation that failed (e.g. "clock.advise_time").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Code, e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code, so the sentinels below work
// with errors.Is regardless of Op or Message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument}
	ErrUnexpected      = &Error{Code: CodeUnexpected}
	ErrTimeout         = &Error{Code: CodeTimeout}
	ErrPartialFailure  = &Error{Code: CodePartialFailure}
	ErrTransitioning   = &Error{Code: CodeTransitioning}
)

// InvalidArgument creates a CodeInvalidArgument error.
func InvalidArgument(op, msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Op: op, Message: msg}
}

// Unexpected creates a CodeUnexpected error wrapping cause.
func Unexpected(op, msg string, cause error) *Error {
	return &Error{Code: CodeUnexpected, Op: op, Message: msg, Err: cause}
}

// Timeout creates a CodeTimeout error.
func Timeout(op string) *Error {
	return &Error{Code: CodeTimeout, Op: op, Message: "wait timed out"}
}

// PartialFailure wraps the first stage error seen during a broadcast.
func PartialFailure(op string, first error) *Error {
	return &Error{Code: CodePartialFailure, Op: op, Message: "one or more stages failed", Err: first}
}

// Transitioning creates a CodeTransitioning result for op.
func Transitioning(op string) *Error {
	return &Error{Code: CodeTransitioning, Op: op, Message: "state change still in progress"}
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidArgument reports whether err is an invalid-argument error.
func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }

// IsUnexpected reports whether err is an unexpected (fatal) error.
func IsUnexpected(err error) bool { return CodeOf(err) == CodeUnexpected }

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return CodeOf(err) == CodeTimeout }

// IsPartialFailure reports whether err is a broadcast partial failure.
func IsPartialFailure(err error) bool { return CodeOf(err) == CodePartialFailure }

// IsTransitioning reports whether err is the intermediate GetState result.
func IsTransitioning(err error) bool { return CodeOf(err) == CodeTransitioning }
