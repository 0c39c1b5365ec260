package schema

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed input field. It is raised
// before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is required"
	}
	return fmt.Sprintf("%s %s", e.Field, reason)
}

// TransportError wraps a failed request, an unreachable backend, an
// unexpected HTTP status or an undecodable body.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExecutionTriggerError is returned when the backend rejects an execution request.
type ExecutionTriggerError struct {
	GroupID    string
	StatusCode int
	Body       string
}

func (e *ExecutionTriggerError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("execute group %s: backend returned %d: %s", e.GroupID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("execute group %s: backend returned %d", e.GroupID, e.StatusCode)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
