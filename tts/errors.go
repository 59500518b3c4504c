package tts

import (
	"context"
	"errors"
	"fmt"
)

// Buffer misuse sentinels.
var (
	// ErrNotSealed is returned when an artifact is requested from a
	// buffer that is still receiving data.
	ErrNotSealed = errors.New("buffer not sealed")

	// ErrSealed is returned when data is appended after Seal.
	ErrSealed = errors.New("buffer already sealed")

	// ErrDiscarded is returned by any operation on a discarded buffer.
	ErrDiscarded = errors.New("buffer discarded")
)

// ValidationError reports invalid generation input. It is always
// returned before any network activity has happened.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// ConcurrencyError reports that a generation session is already
// running. The caller must cancel it before starting another.
type ConcurrencyError struct {
	ActiveID string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("session %s is still active", e.ActiveID)
}

// ServiceError is a structured error returned by the synthesis
// service for a request it refused.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service error (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("service error (HTTP %d): %s", e.StatusCode, e.Message)
}

// TransportError is a network-level failure while opening or reading
// an audio stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// isCancellation reports whether err is the outcome of a cancelled or
// expired context rather than a genuine failure. Deadlines count as
// cancellation: a timeout is a caller-imposed cancellation trigger.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
