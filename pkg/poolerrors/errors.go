// Package poolerrors provides structured error handling for imagepool with
// categorization, key-value context and stack traces. Pools use it to build
// the sentinel errors callers match with errors.Is.
//
// # Overview
//
// The poolerrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//   - Sentinel matching by type and message
//
// # Basic Usage
//
//	// Declare a sentinel
//	var ErrInvalidSize = poolerrors.New(poolerrors.ErrorTypeValidation, "invalid size")
//
//	// Return a detailed instance that still matches the sentinel
//	return poolerrors.New(poolerrors.ErrorTypeValidation, "invalid size").
//	    WithDetail("size", size)
//
//	// errors.Is(err, ErrInvalidSize) == true
//
// # Error Types
//
// Errors are categorized by type, which helps with:
//   - Fallback strategies (skip caching on capacity errors)
//   - Monitoring and alerting
//   - Debugging and troubleshooting
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Never call
// WithDetail on a shared sentinel; create a new instance instead.
package poolerrors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error, used for fallback strategies
// and monitoring.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid arguments such as non-positive sizes
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeCapacity represents pool size cap violations
	ErrorTypeCapacity ErrorType = "capacity"
	// ErrorTypeState represents use of a resource in the wrong lifecycle state
	ErrorTypeState ErrorType = "state"
	// ErrorTypeAllocation represents failures of the underlying allocator
	ErrorTypeAllocation ErrorType = "allocation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface. Details are appended in key order
// so messages are stable across runs.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a structured error with the same type and
// message. This lets a detailed instance match its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithDetail adds a key-value detail to the error. This method can be
// chained for adding multiple details.
//
// Example:
//
//	err := poolerrors.New(ErrorTypeCapacity, "pool hard cap violation").
//	    WithDetail("hard_cap", hardCap).
//	    WithDetail("used_bytes", used)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the original
// error as the cause. If the error is already a structured Error, its stack
// trace is preserved. Returns nil if the input error is nil.
//
// Example:
//
//	chunk, err := nativemem.Allocate(size)
//	if err != nil {
//	    return poolerrors.Wrap(err, poolerrors.ErrorTypeAllocation, "failed to map chunk").
//	        WithDetail("size", size)
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
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

// IsType checks if the error is of the given type.
//
// Example:
//
//	if poolerrors.IsType(err, poolerrors.ErrorTypeCapacity) {
//	    // the pool is full: decode without caching
//	    return decodeUnpooled()
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// DetailOf returns the named detail of the first structured error in the
// chain that carries it.
func DetailOf(err error, key string) (interface{}, bool) {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return nil, false
		}
		if v, ok := e.Details[key]; ok {
			return v, true
		}
		err = e.Cause
	}
	return nil, false
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
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
