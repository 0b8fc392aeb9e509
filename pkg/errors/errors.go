// Package errors provides structured error handling for ciftree
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeStructural represents structural validation failures on raw
	// hierarchical input, raised before any flattening is attempted
	ErrorTypeStructural ErrorType = "structural_validation"
	// ErrorTypeContent represents content validation failures on resolver
	// output in strict mode
	ErrorTypeContent ErrorType = "content_validation"
	// ErrorTypeRelationship represents unresolved parent references in
	// strict mode
	ErrorTypeRelationship ErrorType = "relationship"
	// ErrorTypeCycle represents a cyclic parent chain, rejected in every mode
	ErrorTypeCycle ErrorType = "cycle"
	// ErrorTypeCache represents metadata cache read/write failures; these are
	// recovered locally by reparsing and never reach callers
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents malformed data errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeNotFound represents missing files, categories or items
	ErrorTypeNotFound ErrorType = "not_found"
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Message    string
	Cause      error
	Details    map[string]interface{}
	Violations []string
	Stack      []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Violations) > 0 {
		fmt.Fprintf(&b, " (%d violations)", len(e.Violations))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithViolations appends individual violation messages. Validation and
// resolution errors carry the full list so callers can report every failure,
// not just the first one encountered.
func (e *Error) WithViolations(violations ...string) *Error {
	e.Violations = append(e.Violations, violations...)
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the original stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// IsType reports whether err is an *Error of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// ViolationsOf extracts the violation list from an error, if any
func ViolationsOf(err error) []string {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	return e.Violations
}

// captureStack captures the current call stack
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
