package backoff

import (
	"testing"
	"time"
)

func TestDeferralScalesWithOverage(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		overage  int
		penalty  time.Duration
		max      time.Duration
		expected time.Duration
	}{
		{"no overage", time.Second, 0, 500 * time.Millisecond, 30 * time.Second, time.Second},
		{"linear penalty", time.Second, 4, 500 * time.Millisecond, 30 * time.Second, 3 * time.Second},
		{"capped at max", time.Second, 100, 500 * time.Millisecond, 30 * time.Second, 30 * time.Second},
		{"negative overage clamps", time.Second, -3, 500 * time.Millisecond, 30 * time.Second, time.Second},
		{"zero max disables cap", time.Second, 100, 500 * time.Millisecond, 0, 51 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deferral(tt.base, tt.overage, tt.penalty, tt.max)
			if got != tt.expected {
				t.Errorf("Deferral(%v, %d, %v, %v) = %v, want %v", tt.base, tt.overage, tt.penalty, tt.max, got, tt.expected)
			}
		})
	}
}

func TestJitteredStaysInRange(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := Jittered(base, 0.1)
		if d < base || d > base+100*time.Millisecond {
			t.Fatalf("Jittered delay %v outside [1s, 1.1s]", d)
		}
	}
}

func TestJitteredZeroJitterIsIdentity(t *testing.T) {
	if d := Jittered(time.Second, 0); d != time.Second {
		t.Errorf("Zero jitter should return the input, got %v", d)
	}
	if d := Jittered(time.Second, -1); d != time.Second {
		t.Errorf("Negative jitter clamps to zero, got %v", d)
	}
}

func TestJitteredClampsExcessiveJitter(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := Jittered(base, 5)
		if d < base || d > 2*base {
			t.Fatalf("Jitter factor should clamp to 1, got %v", d)
		}
	}
}
