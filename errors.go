package saga

import (
	"errors"
	"fmt"
)

// ErrorKind partitions step and workflow failures into categories a caller
// can branch on without string-parsing messages. The enumeration is closed:
// collaborators must map their own failures onto one of these kinds, falling
// back to KindUnknown.
type ErrorKind string

const (
	// KindNotFound means a referenced entity does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindCapacityExceeded means a room or bed has no free slot.
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	// KindValidationFailed means the input failed a business rule.
	KindValidationFailed ErrorKind = "validation_failed"
	// KindConflict means the operation collides with concurrent or prior
	// state (duplicate record, in-flight idempotent execution, unpaid dues).
	KindConflict ErrorKind = "conflict"
	// KindPermissionDenied means the acting identity may not perform
	// the operation.
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindUnavailable means a collaborator (datastore, channel) is down.
	KindUnavailable ErrorKind = "unavailable"
	// KindUnknown is the fallback for unclassified failures.
	KindUnknown ErrorKind = "unknown"
)

// DetailStep is the Details key under which the engine records the name of
// the step that produced an error, so observability tooling never loses the
// failing step's identity.
const DetailStep = "step"

// Error is the structured failure value carried by every failed [Result]
// and surfaced in workflow outcomes. Kind is always present.
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewError creates an Error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WithDetail returns a copy of e with the detail key set. The receiver is
// not mutated so shared errors stay immutable.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Details: details}
}

// Detail returns the detail stored under key, if any.
func (e *Error) Detail(key string) (any, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// AsError coerces an arbitrary error into an *Error. A nil error yields nil;
// an *Error anywhere in the chain is returned as-is; anything else becomes
// KindUnknown with the original message preserved.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindUnknown, Message: err.Error()}
}

// KindOf reports the ErrorKind of err, or KindUnknown for errors that are
// not *Error.
func KindOf(err error) ErrorKind {
	if se := AsError(err); se != nil {
		return se.Kind
	}
	return KindUnknown
}

// Sentinel errors for infrastructure failures. Business failures travel as
// *Error inside outcomes; these cover the plumbing around them.
var (
	// ErrWorkflowNotRegistered is returned when a registry lookup by name
	// finds no executor.
	ErrWorkflowNotRegistered = errors.New("saga: workflow not registered")
	// ErrDuplicateWorkflow is returned when registering a name twice.
	ErrDuplicateWorkflow = errors.New("saga: workflow already registered")
	// ErrExecutionNotFound is returned by history stores for unknown IDs.
	ErrExecutionNotFound = errors.New("saga: execution not found")
	// ErrInvalidDefinition is returned when a workflow definition fails
	// validation.
	ErrInvalidDefinition = errors.New("saga: invalid workflow definition")
)
