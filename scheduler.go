package netsched

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/Havanyani/ecocartapp-sub006/internal/backoff"
)

// activeRequest tracks one admitted in-flight request. It exists only while
// the request is admitted; the advisory timeout evicts it without cancelling
// the underlying transport call.
type activeRequest struct {
	id        string
	tier      Priority
	startedAt time.Time
	timer     *clock.Timer
}

// Scheduler is the priority admission layer. It assigns priority tiers,
// enforces per-tier and global concurrency ceilings, and tracks in-flight
// requests with tier-scaled advisory timeouts. Admitted calls are forwarded
// to the BatchScheduler. It is safe for concurrent use.
type Scheduler struct {
	batcher *BatchScheduler
	clk     clock.Clock
	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector

	globalCeiling int
	tierCeilings  map[Priority]int
	tierTimeouts  map[Priority]time.Duration
	retryDelays   map[Priority]time.Duration
	retryJitter   float64
	requestIDGen  func() string

	mu            sync.Mutex
	active        map[string]*activeRequest
	activeByTier  map[Priority]int
	cancelCh      chan struct{}
	totalAdmitted uint64
	totalDenied   uint64
	totalTimedOut uint64

	validationError error
}

// NewScheduler constructs an admission scheduler layered above the given
// batch scheduler.
func NewScheduler(batcher *BatchScheduler, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		batcher:       batcher,
		clk:           clock.New(),
		debug:         DefaultDebugConfig(),
		globalCeiling: DefaultGlobalCeiling,
		tierCeilings:  defaultTierCeilings(),
		tierTimeouts:  defaultTierTimeouts(),
		retryDelays:   defaultRetryDelays(),
		retryJitter:   0.1,
		requestIDGen:  uuid.NewString,
		active:        make(map[string]*activeRequest),
		activeByTier:  make(map[Priority]int),
		cancelCh:      make(chan struct{}),
	}

	for _, option := range options {
		option(s)
	}

	if err := s.validateConfiguration(); err != nil {
		s.validationError = err
	}

	return s
}

// IsValid reports whether configuration validation passed at construction.
func (s *Scheduler) IsValid() bool {
	return s.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (s *Scheduler) ValidationError() error {
	return s.validationError
}

// Get schedules an HTTP GET.
func (s *Scheduler) Get(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return s.Do(ctx, "GET", url, nil, opts)
}

// Post schedules an HTTP POST.
func (s *Scheduler) Post(ctx context.Context, url string, body []byte, opts *RequestOptions) (*Response, error) {
	return s.Do(ctx, "POST", url, body, opts)
}

// Put schedules an HTTP PUT.
func (s *Scheduler) Put(ctx context.Context, url string, body []byte, opts *RequestOptions) (*Response, error) {
	return s.Do(ctx, "PUT", url, body, opts)
}

// Patch schedules an HTTP PATCH.
func (s *Scheduler) Patch(ctx context.Context, url string, body []byte, opts *RequestOptions) (*Response, error) {
	return s.Do(ctx, "PATCH", url, body, opts)
}

// Delete schedules an HTTP DELETE.
func (s *Scheduler) Delete(ctx context.Context, url string, opts *RequestOptions) (*Response, error) {
	return s.Do(ctx, "DELETE", url, nil, opts)
}

// Do funnels every verb through one enqueue path. The request waits for
// admission under the tier and global ceilings (retrying after a tier-scaled
// delay, never discarded), is registered with an advisory timeout, forwarded
// to the batch scheduler and awaited.
func (s *Scheduler) Do(ctx context.Context, method, url string, body []byte, opts *RequestOptions) (*Response, error) {
	o := RequestOptions{}
	if opts != nil {
		o = *opts
	}
	tier := clampPriority(o.Priority)
	o.Priority = tier

	id := s.requestIDGen()
	start := s.clk.Now()

	if err := s.awaitAdmission(ctx, id, tier); err != nil {
		return nil, err
	}

	if o.Timeout == 0 {
		o.Timeout = s.tierTimeouts[tier]
	}

	req := &Request{
		ID:       id,
		Method:   method,
		URL:      url,
		Body:     body,
		Options:  o,
		Priority: tier,
	}

	if s.debug != nil && s.debug.Enabled && s.debug.LogRequests && s.logger != nil {
		s.logger.Debug("Request admitted", "requestID", id, "method", method, "url", url, "tier", tier.String())
	}

	res := s.batcher.Enqueue(req)
	resp, err := res.Wait(ctx)

	s.release(id)

	duration := s.clk.Now().Sub(start)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if IsCancellation(err) {
			outcome = "cancelled"
		}
	}
	s.metrics.RecordRequest(method, tier, outcome, duration)

	return resp, err
}

// awaitAdmission blocks until the request is admitted, the context cancels or
// CancelAllRequests fires. Sustained high-priority load can starve lower
// tiers indefinitely; there is no aging.
func (s *Scheduler) awaitAdmission(ctx context.Context, id string, tier Priority) error {
	for {
		s.mu.Lock()
		cancelCh := s.cancelCh
		if s.admitLocked(tier) {
			s.registerLocked(id, tier)
			s.mu.Unlock()
			return nil
		}
		s.totalDenied++
		s.mu.Unlock()

		s.metrics.RecordAdmissionDenied(tier)
		delay := backoff.Jittered(s.retryDelays[tier], s.retryJitter)
		if s.debug != nil && s.debug.Enabled && s.debug.LogAdmission && s.logger != nil {
			s.logger.Debug("Admission denied, retrying", "requestID", id, "tier", tier.String(), "delay", delay)
		}

		select {
		case <-s.clk.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		case <-cancelCh:
			return &SchedulerError{
				Type:      ErrorTypeCancelled,
				Message:   "request cancelled while awaiting admission",
				RequestID: id,
				Tier:      tier,
				Timestamp: s.clk.Now(),
			}
		}
	}
}

// admitLocked applies the admission rule: the global ceiling bounds the sum
// of non-CRITICAL actives; CRITICAL requests bypass it but still respect
// their own tier ceiling.
func (s *Scheduler) admitLocked(tier Priority) bool {
	if s.activeByTier[tier] >= s.tierCeilings[tier] {
		return false
	}
	if tier == PriorityCritical {
		return true
	}
	return s.nonCriticalActiveLocked() < s.globalCeiling
}

func (s *Scheduler) nonCriticalActiveLocked() int {
	total := 0
	for _, t := range Tiers {
		if t == PriorityCritical {
			continue
		}
		total += s.activeByTier[t]
	}
	return total
}

func (s *Scheduler) registerLocked(id string, tier Priority) {
	ar := &activeRequest{
		id:        id,
		tier:      tier,
		startedAt: s.clk.Now(),
	}
	ar.timer = s.clk.AfterFunc(s.tierTimeouts[tier], func() {
		s.evict(id)
	})
	s.active[id] = ar
	s.activeByTier[tier]++
	s.totalAdmitted++
	s.metrics.RecordAdmission(tier, 1)
}

// evict removes timeout-expired bookkeeping. It deliberately does not settle
// or cancel the underlying transport call; the caller keeps waiting for it.
func (s *Scheduler) evict(id string) {
	s.mu.Lock()
	ar, ok := s.active[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	s.activeByTier[ar.tier]--
	s.totalTimedOut++
	s.mu.Unlock()

	s.metrics.RecordAdmission(ar.tier, -1)
	s.metrics.RecordAdmissionTimeout(ar.tier)
	if s.logger != nil {
		s.logger.Warn("Advisory timeout evicted tracking", "requestID", id, "tier", ar.tier.String())
	}
}

// release deregisters a settled request. A request already evicted by its
// advisory timeout is a no-op.
func (s *Scheduler) release(id string) {
	s.mu.Lock()
	ar, ok := s.active[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	s.activeByTier[ar.tier]--
	s.mu.Unlock()

	ar.timer.Stop()
	s.metrics.RecordAdmission(ar.tier, -1)
}

// CancelAllRequests synchronously clears all records and timers, clears the
// batch scheduler's pending queue, and rejects every pending and in-flight
// caller with a cancellation error. Already-dispatched transport calls
// cannot be recalled.
func (s *Scheduler) CancelAllRequests() {
	s.mu.Lock()
	for _, ar := range s.active {
		ar.timer.Stop()
		s.metrics.RecordAdmission(ar.tier, -1)
	}
	s.active = make(map[string]*activeRequest)
	s.activeByTier = make(map[Priority]int)
	close(s.cancelCh)
	s.cancelCh = make(chan struct{})
	s.mu.Unlock()

	s.batcher.CancelAll(&SchedulerError{
		Type:      ErrorTypeCancelled,
		Message:   "all requests cancelled",
		Cause:     ErrCancelled,
		Timestamp: s.clk.Now(),
	})

	if s.logger != nil {
		s.logger.Info("All requests cancelled")
	}
}

// QueueStats exposes active counts per tier and the age of the oldest active
// request for diagnostics.
func (s *Scheduler) QueueStats() QueueStats {
	s.mu.Lock()
	byTier := make(map[Priority]int, len(Tiers))
	for _, t := range Tiers {
		byTier[t] = s.activeByTier[t]
	}
	var oldest time.Time
	for _, ar := range s.active {
		if oldest.IsZero() || ar.startedAt.Before(oldest) {
			oldest = ar.startedAt
		}
	}
	stats := QueueStats{
		ActiveByTier:  byTier,
		TotalAdmitted: s.totalAdmitted,
		TotalDenied:   s.totalDenied,
		TotalTimedOut: s.totalTimedOut,
	}
	if !oldest.IsZero() {
		stats.OldestActiveAge = s.clk.Now().Sub(oldest)
	}
	s.mu.Unlock()

	stats.PendingBatch = s.batcher.PendingLen()
	return stats
}

func clampPriority(p Priority) Priority {
	if p < PriorityBackground {
		return PriorityBackground
	}
	if p > PriorityCritical {
		return PriorityCritical
	}
	return p
}
