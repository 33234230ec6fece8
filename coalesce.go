package netsched

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"sync"
)

// Result is a broadcast-once completion handle shared by every caller
// coalesced onto one in-flight request. It is resolved exactly once with a
// value or an error.
type Result struct {
	mu      sync.Mutex
	resp    *Response
	err     error
	done    chan struct{}
	settled bool
	waiters int
}

func newResult() *Result {
	return &Result{done: make(chan struct{}), waiters: 1}
}

// Wait blocks until the request settles or ctx cancels.
func (r *Result) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		resp, err := r.resp, r.err
		r.mu.Unlock()
		return resp, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle resolves the result. Later calls are no-ops, so a transport call
// returning after cancellation cannot re-settle its group.
func (r *Result) settle(resp *Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return
	}
	r.resp = resp
	r.err = err
	r.settled = true
	close(r.done)
}

// Settled reports whether the result has been resolved.
func (r *Result) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}

// Waiters returns the number of callers attached to this result.
func (r *Result) Waiters() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiters
}

func (r *Result) addWaiter() {
	r.mu.Lock()
	r.waiters++
	r.mu.Unlock()
}

// CoalesceKeyFunc builds the dedup hash identifying identical requests.
type CoalesceKeyFunc func(method, url string, body []byte) string

// DefaultCoalesceKeyFunc hashes method + URL + body. All in-flight requests
// sharing the resulting key settle identically through one transport call.
func DefaultCoalesceKeyFunc(method, url string, body []byte) string {
	h := fnv.New64a()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		h.Write(sum[:])
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// CoalesceCondition decides whether a request is eligible for coalescing.
type CoalesceCondition func(method, url string) bool

// DefaultCoalesceCondition coalesces every request; identical bodies hash
// identically, so mutating verbs only merge when truly duplicated.
func DefaultCoalesceCondition(method, url string) bool {
	return true
}
