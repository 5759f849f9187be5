package models

import "fmt"

// ValidationError reports input with the wrong shape: an unsupported file,
// an upload with no fillable fields, or an answer for an expired session.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// NotFoundError reports an unknown session, field, or artifact.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IncompleteFormError is returned when synthesis is requested before every
// field of the session has been filled.
type IncompleteFormError struct {
	SessionID string
	Filled    int
	Total     int
}

func (e *IncompleteFormError) Error() string {
	return fmt.Sprintf("form incomplete for session %s: %d fields remaining", e.SessionID, e.Total-e.Filled)
}

// Remaining is the number of fields still waiting for an answer.
func (e *IncompleteFormError) Remaining() int {
	return e.Total - e.Filled
}

// OracleError wraps a failed text-generation call. It is only ever logged;
// the composer and normalizer substitute their deterministic fallback.
type OracleError struct {
	Op    string
	Field string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s for field %q: %v", e.Op, e.Field, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// SynthesisError wraps a rendering-engine failure while producing the
// flattened document. The original document is left untouched.
type SynthesisError struct {
	SessionID string
	Err       error
}

func (e *SynthesisError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("synthesis failed: %v", e.Err)
	}
	return fmt.Sprintf("synthesis failed for session %s: %v", e.SessionID, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
