package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGuardrailTripped is matched by every *GuardrailTrippedError.
	ErrGuardrailTripped = errors.New("guardrail tripwire triggered")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("structured output validation failed")
	// ErrBackend is matched by every *BackendError.
	ErrBackend = errors.New("model backend failure")
	// ErrDelegationContract is matched by every *DelegationError.
	ErrDelegationContract = errors.New("delegation contract violated")
	// ErrModelCallLimit is returned once a run exceeds its model call budget.
	ErrModelCallLimit = errors.New("exceeded max model calls")
)

// GuardrailTrippedError reports that an agent's guardrail rejected the input.
// The agent's own model call never happened.
type GuardrailTrippedError struct {
	Agent      string
	Guardrail  string
	OutputInfo any
}

func (e *GuardrailTrippedError) Error() string {
	return fmt.Sprintf("agent %s: guardrail %s tripped", e.Agent, e.Guardrail)
}

// Is reports whether target is ErrGuardrailTripped.
func (e *GuardrailTrippedError) Is(target error) bool { return target == ErrGuardrailTripped }

// FieldError names a single field that failed schema validation.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError reports that raw model output did not conform to an agent's
// output schema. Field and Reason describe the first failure in declaration
// order; Fields lists all of them. Field is empty when the output was not JSON.
type ValidationError struct {
	Schema string
	Field  string
	Reason string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema %s: %s", e.Schema, e.Reason)
	}

	msg := fmt.Sprintf("schema %s: field %q: %s", e.Schema, e.Field, e.Reason)
	if len(e.Fields) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(e.Fields)-1)
	}

	return msg
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// BackendError wraps a failed model backend call.
type BackendError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *BackendError) Error() string {
	var b strings.Builder

	b.WriteString("backend")
	if e.Provider != "" {
		b.WriteString(" " + e.Provider)
	}

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}

	if e.Retryable {
		b.WriteString(" [retryable]")
	}

	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrBackend.
func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// NewBackendError wraps cause into a *BackendError unless it already is one.
// Deadline expiry is classified as retryable; HTTP 429 and 5xx statuses are
// classified as retryable by RetryableStatus.
func NewBackendError(provider string, statusCode int, cause error) *BackendError {
	var be *BackendError
	if errors.As(cause, &be) {
		return be
	}

	return &BackendError{
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  RetryableStatus(statusCode) || errors.Is(cause, context.DeadlineExceeded),
		Cause:      cause,
	}
}

// RetryableStatus reports whether an HTTP status code signals a transient failure.
func RetryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// IsRetryable reports whether err wraps a retryable *BackendError.
func IsRetryable(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}

	return false
}

// DelegationError reports that an agent with handoff targets produced a
// decision that did not select exactly one of them.
type DelegationError struct {
	Agent    string
	Selected []string
	Reason   string
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("agent %s: %s (selected %v)", e.Agent, e.Reason, e.Selected)
}

// Is reports whether target is ErrDelegationContract.
func (e *DelegationError) Is(target error) bool { return target == ErrDelegationContract }
