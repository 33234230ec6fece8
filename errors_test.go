package netsched

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSchedulerErrorFormatting(t *testing.T) {
	err := &SchedulerError{
		Type:      ErrorTypeTransport,
		Message:   "request failed",
		Cause:     errors.New("connection reset"),
		RequestID: "req-42",
		Timestamp: time.Now(),
	}

	msg := err.Error()
	if !strings.Contains(msg, "Transport") {
		t.Errorf("Error message should contain the type, got %q", msg)
	}
	if !strings.Contains(msg, "connection reset") {
		t.Errorf("Error message should contain the cause, got %q", msg)
	}
	if !strings.Contains(msg, "req-42") {
		t.Errorf("Error message should contain the request ID, got %q", msg)
	}
}

func TestSchedulerErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &SchedulerError{Type: ErrorTypeTransport, Message: "wrapped", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	var se *SchedulerError
	if !errors.As(wrapped, &se) {
		t.Error("errors.As should extract SchedulerError through wrapping")
	}
}

func TestSchedulerErrorIsMatchesSentinels(t *testing.T) {
	cancelled := &SchedulerError{Type: ErrorTypeCancelled, Message: "cancelled"}
	if !errors.Is(cancelled, ErrCancelled) {
		t.Error("Cancelled errors should match ErrCancelled")
	}

	capacity := &SchedulerError{Type: ErrorTypeCapacity, Message: "denied"}
	if !errors.Is(capacity, ErrCapacityDenied) {
		t.Error("Capacity errors should match ErrCapacityDenied")
	}

	if errors.Is(cancelled, ErrCapacityDenied) {
		t.Error("Types must not cross-match sentinels")
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation(&SchedulerError{Type: ErrorTypeCancelled}) {
		t.Error("Typed cancellation should be recognized")
	}
	if !IsCancellation(fmt.Errorf("wrapped: %w", ErrCancelled)) {
		t.Error("Wrapped sentinel should be recognized")
	}
	if IsCancellation(&SchedulerError{Type: ErrorTypeTransport}) {
		t.Error("Transport errors are not cancellations")
	}
	if IsCancellation(nil) {
		t.Error("nil is not a cancellation")
	}
}

func TestIsTransport(t *testing.T) {
	if !IsTransport(&SchedulerError{Type: ErrorTypeTransport}) {
		t.Error("Typed transport error should be recognized")
	}
	if IsTransport(errors.New("plain")) {
		t.Error("Plain errors are not transport errors")
	}
	if IsTransport(nil) {
		t.Error("nil is not a transport error")
	}
}
