package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a backend failure.
type ErrorKind string

const (
	// KindRetryable covers timeouts, transient network failures and rate
	// limiting. Consumes one attempt of the retry budget.
	KindRetryable ErrorKind = "retryable"

	// KindFatal covers auth walls, missing resources and permanent
	// unavailability. The backend is cooled down immediately.
	KindFatal ErrorKind = "fatal"
)

// BackendError is the typed failure an adapter reports. Adapters that know
// their error surface wrap failures in one of these; anything untyped falls
// back to string classification in the retry policy.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewRetryableError wraps err as a transient backend failure.
func NewRetryableError(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindRetryable, Err: err}
}

// NewFatalError wraps err as a permanent backend failure.
func NewFatalError(backend string, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: KindFatal, Err: err}
}

// ValidationError explains why a single candidate was rejected. It is
// counted, never raised past the validator.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AggregateError is returned when every backend was either cooling down or
// failed. It carries each backend's latest reason so the operator sees the
// whole chain, not just the last link.
type AggregateError struct {
	Reasons map[string]string // backend name -> latest failure reason
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for name, reason := range e.Reasons {
		parts = append(parts, name+": "+reason)
	}
	return "all backends failed: [" + strings.Join(parts, "; ") + "]"
}

// IsAggregate reports whether err (or anything it wraps) is a total
// backend exhaustion.
func IsAggregate(err error) bool {
	var agg *AggregateError
	return errors.As(err, &agg)
}
