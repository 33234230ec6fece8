// Package backoff computes the delays used when the scheduling layer has to
// wait: rate-window overage deferrals and admission retry pauses.
package backoff

import (
	"math/rand"
	"time"
)

// Deferral returns how long a batch flush should wait when the sliding rate
// window is at or over its limit: a fixed base plus a penalty proportional to
// the overage, capped at max. Requests are never dropped, only delayed.
func Deferral(base time.Duration, overage int, penalty, max time.Duration) time.Duration {
	if overage < 0 {
		overage = 0
	}
	d := base + time.Duration(overage)*penalty
	if max > 0 && d > max {
		d = max
	}
	return d
}

// Jittered spreads a delay by up to jitter (fraction in [0,1]) to keep
// retrying callers from waking in lockstep.
func Jittered(d time.Duration, jitter float64) time.Duration {
	jitter = clampJitter(jitter)
	if jitter <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*jitter*rand.Float64())
}

func clampJitter(j float64) float64 {
	if j < 0 {
		return 0
	}
	if j > 1 {
		return 1
	}
	return j
}
