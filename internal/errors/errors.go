// Package errors defines the failure taxonomy for the research engine and
// helpers for classifying arbitrary errors onto it.
//
// # Taxonomy
//
// Task-unit level classes describe one failed tool invocation. They are
// counted by the owning worker and never propagate past it:
//   - ToolUnavailable: the provider could not be reached or answered 5xx
//   - ToolTimeout: the call exceeded its per-invocation timeout
//   - ToolRejected: the provider refused the call (auth, quota, bad tool)
//   - MalformedResponse: the provider answered with an unparseable payload
//
// Supervisor level classes describe run-wide conditions:
//   - DeadlineExceeded: the process-wide deadline cancelled a worker
//   - AllWorkersFailed: every worker ended Failed (reported, never raised)
//   - InvalidRequest: the request itself is unusable; the only error that
//     prevents producing a report at all
//
// # Usage
//
// Tool providers wrap transport failures:
//
//	return "", rerr.NewToolError("web_search", rerr.ClassToolUnavailable, err)
//
// Callers classify without caring about the concrete type:
//
//	switch rerr.Classify(err) {
//	case rerr.ClassToolTimeout:
//	    ...
//	}
//
// and check retry semantics with rerr.IsFatal / rerr.IsRetryable.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Re-export standard library functions so callers need only this import
// for error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Class identifies one failure class in the taxonomy.
type Class string

const (
	ClassToolUnavailable   Class = "tool_unavailable"
	ClassToolTimeout       Class = "tool_timeout"
	ClassToolRejected      Class = "tool_rejected"
	ClassMalformedResponse Class = "malformed_response"
	ClassDeadlineExceeded  Class = "deadline_exceeded"
	ClassAllWorkersFailed  Class = "all_workers_failed"
	ClassInvalidRequest    Class = "invalid_request"
	ClassUnknown           Class = "unknown"
)

// Sentinel errors, one per class. Typed errors produced in this package
// match their class sentinel under errors.Is.
var (
	// ErrToolUnavailable indicates the external provider could not serve the call.
	ErrToolUnavailable = New("tool unavailable")
	// ErrToolTimeout indicates a single tool invocation exceeded its timeout.
	ErrToolTimeout = New("tool call timed out")
	// ErrToolRejected indicates the provider refused the call outright.
	ErrToolRejected = New("tool call rejected")
	// ErrMalformedResponse indicates the provider payload could not be parsed.
	ErrMalformedResponse = New("malformed tool response")
	// ErrDeadlineExceeded indicates the process-wide research deadline fired.
	ErrDeadlineExceeded = New("research deadline exceeded")
	// ErrAllWorkersFailed indicates no worker produced a usable result.
	ErrAllWorkersFailed = New("all research workers failed")
	// ErrInvalidRequest indicates the request cannot be researched at all.
	ErrInvalidRequest = New("invalid research request")
)

var sentinelByClass = map[Class]error{
	ClassToolUnavailable:   ErrToolUnavailable,
	ClassToolTimeout:       ErrToolTimeout,
	ClassToolRejected:      ErrToolRejected,
	ClassMalformedResponse: ErrMalformedResponse,
	ClassDeadlineExceeded:  ErrDeadlineExceeded,
	ClassAllWorkersFailed:  ErrAllWorkersFailed,
	ClassInvalidRequest:    ErrInvalidRequest,
}

// Sentinel returns the sentinel error for a class, or nil for ClassUnknown.
func Sentinel(c Class) error {
	return sentinelByClass[c]
}

// String returns the class identifier.
func (c Class) String() string {
	return string(c)
}

// -----------------------------------------------------------------------------
// ToolError
// -----------------------------------------------------------------------------

// ToolError describes one failed tool invocation. It carries the tool name,
// the taxonomy class, and the underlying cause.
//
// Example:
//
//	err := errors.NewToolError("web_search", errors.ClassToolTimeout, cause)
//	errors.Is(err, errors.ErrToolTimeout) // true
type ToolError struct {
	Tool  string
	Class Class
	Err   error
}

// NewToolError creates a ToolError for the given tool and class.
func NewToolError(tool string, class Class, cause error) *ToolError {
	return &ToolError{Tool: tool, Class: class, Err: cause}
}

// Error returns the formatted error message.
func (e *ToolError) Error() string {
	sentinel := Sentinel(e.Class)
	if sentinel == nil {
		sentinel = New("tool call failed")
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, sentinel.Error(), e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, sentinel.Error())
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is matches the class sentinel and any wrapped cause.
func (e *ToolError) Is(target error) bool {
	if target == Sentinel(e.Class) {
		return true
	}
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// Classify maps an arbitrary error onto the taxonomy. Unrecognized errors
// classify as ClassUnknown; nil classifies as the empty class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}

	var toolErr *ToolError
	if As(err, &toolErr) {
		return toolErr.Class
	}

	for class, sentinel := range sentinelByClass {
		if Is(err, sentinel) {
			return class
		}
	}

	// Context errors: a per-invocation timeout classifies as a tool timeout;
	// a plain cancellation means the run deadline cancelled us cooperatively.
	if Is(err, context.DeadlineExceeded) {
		return ClassToolTimeout
	}
	if Is(err, context.Canceled) {
		return ClassDeadlineExceeded
	}

	var netErr net.Error
	if As(err, &netErr) {
		if netErr.Timeout() {
			return ClassToolTimeout
		}
		return ClassToolUnavailable
	}
	var opErr *net.OpError
	if As(err, &opErr) {
		return ClassToolUnavailable
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if As(err, &syntaxErr) || As(err, &typeErr) {
		return ClassMalformedResponse
	}

	return ClassUnknown
}

// ClassifyStatus maps an HTTP response status onto the taxonomy.
// 2xx statuses classify as the empty class.
func ClassifyStatus(status int) Class {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == 408:
		return ClassToolTimeout
	case status == 429:
		return ClassToolUnavailable
	case status >= 400 && status < 500:
		return ClassToolRejected
	case status >= 500:
		return ClassToolUnavailable
	default:
		return ClassUnknown
	}
}

// IsFatal reports whether the error belongs to a class that must not be
// retried within a worker loop. Rejections (authorization, quota, disallowed
// tool) and invalid requests terminate the worker immediately.
func IsFatal(err error) bool {
	switch Classify(err) {
	case ClassToolRejected, ClassInvalidRequest:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether the error represents a transient condition
// that a worker may absorb and continue iterating past.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ClassToolUnavailable, ClassToolTimeout, ClassMalformedResponse:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Descriptor
// -----------------------------------------------------------------------------

// Descriptor is the serializable failure record frozen into a WorkerResult.
// It survives the error value itself so results can be archived and rendered.
type Descriptor struct {
	Class  Class  `json:"class"`
	Detail string `json:"detail,omitempty"`
}

// Describe builds a Descriptor from an error, or nil for a nil error.
func Describe(err error) *Descriptor {
	if err == nil {
		return nil
	}
	return &Descriptor{
		Class:  Classify(err),
		Detail: err.Error(),
	}
}

// String returns "class: detail" or just the class when detail is empty.
func (d *Descriptor) String() string {
	if d == nil {
		return ""
	}
	if d.Detail == "" {
		return string(d.Class)
	}
	return fmt.Sprintf("%s: %s", d.Class, d.Detail)
}

// Err reconstructs an error carrying the descriptor's class sentinel, for
// callers that need errors.Is matching after deserialization.
func (d *Descriptor) Err() error {
	if d == nil {
		return nil
	}
	sentinel := Sentinel(d.Class)
	if sentinel == nil {
		return New(d.Detail)
	}
	if d.Detail == "" || d.Detail == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, d.Detail)
}
