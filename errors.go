package netsched

import (
	"errors"
	"fmt"
	"time"
)

// Error type identifiers used in SchedulerError.Type.
const (
	ErrorTypeTransport  = "Transport"
	ErrorTypeCancelled  = "Cancelled"
	ErrorTypeTimeout    = "Timeout"
	ErrorTypeCapacity   = "Capacity"
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCancelled is delivered to every pending and in-flight caller when
	// CancelAllRequests is invoked.
	ErrCancelled = errors.New("netsched: request cancelled")

	// ErrDisconnected is used internally when dispatch is attempted while
	// offline; callers never observe it because flushing simply pauses.
	ErrDisconnected = errors.New("netsched: not connected")

	// ErrCapacityDenied drives the admission backoff loop. It is internal
	// only and never surfaced to a caller.
	ErrCapacityDenied = errors.New("netsched: capacity denied")
)

// SchedulerError is the typed error surfaced by the scheduling layer. It
// wraps transport failures and cancellations with request context.
type SchedulerError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Tier       Priority
	StatusCode int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *SchedulerError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SchedulerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *SchedulerError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*SchedulerError); ok {
		return e.Type == targetErr.Type
	}
	switch e.Type {
	case ErrorTypeCancelled:
		return target == ErrCancelled
	case ErrorTypeCapacity:
		return target == ErrCapacityDenied
	}
	return false
}

// IsCancellation reports whether err represents a CancelAllRequests
// settlement.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var se *SchedulerError
	return errors.As(err, &se) && se.Type == ErrorTypeCancelled
}

// IsTransport reports whether err originates from a failed transport call
// (the call failed outright or returned a failure status). Such errors are
// propagated to every coalesced caller and are not retried at this layer.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var se *SchedulerError
	return errors.As(err, &se) && se.Type == ErrorTypeTransport
}
