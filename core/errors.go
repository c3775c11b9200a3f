package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	// ErrCircuitOpen is returned when a dependency's circuit breaker is open
	// and calls fail fast without contacting the dependency. It is
	// classified fatal so the retry loop does not hammer an open breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrCacheCorrupted signals a cached value that failed content-hash
	// validation or no longer parses. Readers treat it as a miss and
	// refetch rather than serve the damaged entry.
	ErrCacheCorrupted = errors.New("cache entry corrupted")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// TransientError wraps a dependency failure that is worth retrying: a
// timeout, a rate limit, or a transient 5xx-equivalent. The resilience layer
// retries these with backoff; the graph executor only sees them once retries
// are exhausted.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil when err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// FatalError wraps a dependency failure that retrying cannot fix:
// authentication failure, a malformed request, or permanent quota
// exhaustion. It short-circuits the current node immediately.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: fatal: %v", e.Op, e.Err) }

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as non-retryable. Returns nil when err is nil.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Op: op, Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is classified as non-retryable. An open
// circuit breaker counts as fatal for classification purposes.
func IsFatal(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// ErrorContext describes a failure for trace events and for the structured
// error surfaced to the caller. Transient, never persisted.
type ErrorContext struct {
	Op           string `json:"op"`
	Kind         string `json:"kind"` // "transient", "fatal", "persistence", "distillation"
	Message      string `json:"message"`
	Retries      int    `json:"retries,omitempty"`
	BreakerState string `json:"breaker_state,omitempty"`
}

// NewErrorContext classifies err and builds its trace representation.
func NewErrorContext(op string, err error, retries int, breakerState string) *ErrorContext {
	if err == nil {
		return nil
	}
	kind := "fatal"
	if IsTransient(err) {
		kind = "transient"
	}
	return &ErrorContext{
		Op:           op,
		Kind:         kind,
		Message:      err.Error(),
		Retries:      retries,
		BreakerState: breakerState,
	}
}
