// Package taberrors provides structured error handling for tabfetch with
// error categorization, rich context, and cause preservation.
//
// # Overview
//
// The taberrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType, matching the engine's
//     failure taxonomy (schema, query, parse, coercion, write, transport)
//   - Structured context with key-value details
//   - Automatic stack trace capture at creation points
//   - Error wrapping with cause preservation
//   - Retryability detection (transport errors only)
//
// # Basic Usage
//
//	// Create a new error
//	err := taberrors.New(taberrors.ErrorTypeQuery, "unknown filter field")
//
//	// Add context
//	err = err.WithDetail("field", "date_upd").
//	         WithDetail("expected_kind", "DateTime")
//
//	// Wrap existing errors
//	if err := dec.Decode(&page); err != nil {
//	    return taberrors.Wrap(err, taberrors.ErrorTypeParse, "malformed page").
//	        WithDetail("offset", dec.InputOffset())
//	}
//
// # Propagation policy
//
// Schema and query errors are fatal and must be produced before any network
// fetch. Parse and coercion errors fail the whole page rather than skipping
// rows. Transport errors are the only retryable kind; retry policy belongs
// to the transport layer.
package taberrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType categorizes an error for handling strategies and reporting.
type ErrorType string

const (
	// ErrorTypeSchema represents a malformed or unrecognized remote schema
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeQuery represents an invalid user constraint against a resolved schema
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeParse represents malformed page bytes
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeCoercion represents a value that does not match its declared field kind
	ErrorTypeCoercion ErrorType = "coercion"
	// ErrorTypeWrite represents an output sink failure or schema drift between batches
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeTransport represents a network or timeout failure from the collaborator
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents internal errors (caller misuse, impossible states)
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error with a type, contextual details, and an
// optional cause. The Details map carries the identifiers the user needs
// to root-cause a failure: resource, field, page, offending literal.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame of the call stack captured at error creation.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Chainable.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key, or nil.
func (e *Error) Detail(key string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// New creates an error with the given type and message, capturing the call
// stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates an error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error, preserving it as the cause. If err is
// already a structured Error its stack trace is preserved. Returns nil if
// err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable reports whether the error may be retried. Only transport
// errors qualify; everything else is either a caller mistake or would
// produce silently incomplete output if retried past.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == ErrorTypeTransport
}

// IsType checks whether err carries the given ErrorType.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
