package netsched

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/Havanyani/ecocartapp-sub006/internal/backoff"
)

// BatchScheduler is the lowest internal layer: it deduplicates identical
// concurrent requests, batches dispatch based on network quality and enforces
// a sliding per-minute rate limit. It is safe for concurrent use.
type BatchScheduler struct {
	transport Transport
	observer  ConnectivityObserver
	store     Store
	clk       clock.Clock
	logger    Logger
	debug     *DebugConfig
	metrics   *MetricsCollector

	maxBatchSize int
	batchDelay   time.Duration
	baseRate     int
	deferralBase time.Duration
	deferralStep time.Duration
	deferralMax  time.Duration
	coalesce     bool
	keyFunc      CoalesceKeyFunc
	condition    CoalesceCondition

	window *rateWindow

	mu          sync.Mutex
	pending     []*Request
	groups      map[string]*Result
	seq         uint64
	timer       *clock.Timer
	timerArmed  bool
	unsubscribe func()

	validationError error
}

// NewBatchScheduler constructs a batch scheduler over the given transport and
// connectivity observer, applying the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func NewBatchScheduler(transport Transport, observer ConnectivityObserver, options ...BatchOption) *BatchScheduler {
	b := &BatchScheduler{
		transport:    transport,
		observer:     observer,
		clk:          clock.New(),
		debug:        DefaultDebugConfig(),
		maxBatchSize: DefaultBatchMaxSize,
		batchDelay:   DefaultBatchDelay,
		baseRate:     DefaultBaseRatePerMinute,
		deferralBase: DefaultDeferralBase,
		deferralStep: DefaultDeferralStep,
		deferralMax:  DefaultDeferralMax,
		coalesce:     true,
		keyFunc:      DefaultCoalesceKeyFunc,
		condition:    DefaultCoalesceCondition,
		groups:       make(map[string]*Result),
	}

	for _, option := range options {
		option(b)
	}

	b.window = newRateWindow(b.clk, time.Minute)

	if err := b.validateConfiguration(); err != nil {
		b.validationError = err
	}

	if observer != nil {
		b.unsubscribe = observer.OnChange(b.onConnectivityChange)
	}

	return b
}

// IsValid reports whether configuration validation passed at construction.
func (b *BatchScheduler) IsValid() bool {
	return b.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (b *BatchScheduler) ValidationError() error {
	return b.validationError
}

// Enqueue accepts a raw request. If an identical request (same dedup hash
// over method, url and body) is already queued or in flight, the caller
// attaches to that group's shared result instead of creating a new entry.
// Otherwise the request joins the pending list ordered by descending priority
// and a batch-flush timer is armed if not already running.
func (b *BatchScheduler) Enqueue(req *Request) *Result {
	b.mu.Lock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = b.clk.Now()
	}
	b.seq++
	req.seq = b.seq

	eligible := b.coalesce && b.condition(req.Method, req.URL)
	if coalesceOverride := req.Options.Coalesce; coalesceOverride != nil {
		eligible = *coalesceOverride
	}
	if eligible {
		req.key = b.keyFunc(req.Method, req.URL, req.Body)
	} else {
		req.key = req.ID
	}

	if res, ok := b.groups[req.key]; ok && eligible {
		res.addWaiter()
		b.mu.Unlock()
		b.metrics.RecordCoalesced(req.Method)
		if b.debug != nil && b.debug.Enabled && b.debug.LogBatching && b.logger != nil {
			b.logger.Debug("Coalesced onto in-flight request", "requestID", req.ID, "key", req.key)
		}
		return res
	}

	res := newResult()
	req.result = res
	b.groups[req.key] = res

	b.pending = append(b.pending, req)
	sort.SliceStable(b.pending, func(i, j int) bool {
		if b.pending[i].Priority != b.pending[j].Priority {
			return b.pending[i].Priority > b.pending[j].Priority
		}
		return b.pending[i].seq < b.pending[j].seq
	})

	b.armTimerLocked(b.batchDelay)
	b.mu.Unlock()

	if b.debug != nil && b.debug.Enabled && b.debug.LogBatching && b.logger != nil {
		b.logger.Debug("Request queued", "requestID", req.ID, "method", req.Method, "url", req.URL, "tier", req.Priority.String())
	}

	return res
}

// Flush triggers an immediate flush attempt, subject to the same connectivity
// and rate-window checks as timer-driven flushes.
func (b *BatchScheduler) Flush() {
	b.flush()
}

// PendingLen returns the number of queued (not yet dispatched) entries.
func (b *BatchScheduler) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// CancelAll clears the pending queue and settles every pending and in-flight
// group with err. Already-dispatched transport calls cannot be recalled;
// their late completions are dropped by the settle-once result.
func (b *BatchScheduler) CancelAll(err error) {
	b.mu.Lock()
	results := make([]*Result, 0, len(b.groups))
	for _, res := range b.groups {
		results = append(results, res)
	}
	b.pending = nil
	b.groups = make(map[string]*Result)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerArmed = false
	b.mu.Unlock()

	for _, res := range results {
		res.settle(nil, err)
	}
}

// Close unsubscribes from connectivity notifications and stops the flush
// timer. Pending requests are left queued.
func (b *BatchScheduler) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerArmed = false
	b.mu.Unlock()
}

// NetworkTelemetry returns the persisted connectivity transition journal.
func (b *BatchScheduler) NetworkTelemetry() ([]TelemetryEntry, error) {
	return loadTelemetry(b.store)
}

func (b *BatchScheduler) armTimerLocked(delay time.Duration) {
	if b.timerArmed {
		return
	}
	b.timerArmed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = b.clk.AfterFunc(delay, b.flush)
}

// flush dispatches up to one network-sized batch of the highest-priority
// pending entries. It proceeds only while connected and under the sliding
// per-minute limit; otherwise dispatch is paused or deferred, never dropped.
func (b *BatchScheduler) flush() {
	b.mu.Lock()
	b.timerArmed = false

	state := ConnectivityState{Connected: true, Type: ConnectionUnknown}
	if b.observer != nil {
		state = b.observer.State()
	}
	if !state.Connected {
		// Dispatch pauses until the reconnect notification flushes again.
		b.mu.Unlock()
		if b.debug != nil && b.debug.Enabled && b.debug.LogBatching && b.logger != nil {
			b.logger.Debug("Flush skipped while disconnected", "pending", b.PendingLen())
		}
		return
	}

	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}

	limit := adjustedRateLimit(b.baseRate, state)
	if count := b.window.Count(); count >= limit {
		overage := count - limit
		delay := backoff.Deferral(b.deferralBase, overage, b.deferralStep, b.deferralMax)
		b.armTimerLocked(delay)
		b.mu.Unlock()
		b.metrics.RecordRateDeferral()
		if b.debug != nil && b.debug.Enabled && b.debug.LogRateLimit && b.logger != nil {
			b.logger.Warn("Rate window full, deferring flush", "count", count, "limit", limit, "delay", delay)
		}
		return
	}

	size := optimalBatchSize(b.maxBatchSize, state)
	if size > len(b.pending) {
		size = len(b.pending)
	}
	batch := make([]*Request, size)
	copy(batch, b.pending[:size])
	b.pending = append(b.pending[:0], b.pending[size:]...)

	for range batch {
		b.window.Record()
	}
	if len(b.pending) > 0 {
		b.armTimerLocked(b.batchDelay)
	}
	b.mu.Unlock()

	b.metrics.RecordBatchFlush(state.Type, size)
	if b.debug != nil && b.debug.Enabled && b.debug.LogBatching && b.logger != nil {
		b.logger.Debug("Flushing batch", "size", size, "connection", string(state.Type))
	}

	for _, req := range batch {
		go b.dispatch(req)
	}
}

// dispatch executes one transport call and settles the request's group. A
// transport error rejects every coalesced caller sharing the hash.
func (b *BatchScheduler) dispatch(req *Request) {
	start := b.clk.Now()
	resp, err := b.transport.Do(context.Background(), &TransportRequest{
		Method:  req.Method,
		URL:     req.URL,
		Body:    req.Body,
		Headers: req.Options.Headers,
		Timeout: req.Options.Timeout,
	})

	b.mu.Lock()
	if b.groups[req.key] == req.result {
		delete(b.groups, req.key)
	}
	b.mu.Unlock()

	if err != nil {
		err = &SchedulerError{
			Type:      ErrorTypeTransport,
			Message:   "transport call failed",
			Cause:     err,
			RequestID: req.ID,
			Method:    req.Method,
			URL:       req.URL,
			Tier:      req.Priority,
			Timestamp: b.clk.Now(),
			Duration:  b.clk.Now().Sub(start),
		}
		if b.debug != nil && b.debug.Enabled && b.debug.LogRequests && b.logger != nil {
			b.logger.Warn("Transport call failed", "requestID", req.ID, "url", req.URL, "error", err.Error())
		}
	}

	req.result.settle(resp, err)
}

// onConnectivityChange records each transition to telemetry storage and
// resumes dispatch on reconnection. Already-dispatched calls are unaffected.
func (b *BatchScheduler) onConnectivityChange(state ConnectivityState) {
	b.metrics.RecordConnectivityTransition(state)
	if err := appendTelemetry(b.store, b.clk.Now(), state); err != nil && b.logger != nil {
		b.logger.Warn("Failed to record connectivity telemetry", "error", err.Error())
	}
	if b.debug != nil && b.debug.Enabled && b.debug.LogBatching && b.logger != nil {
		b.logger.Info("Connectivity changed", "connected", state.Connected, "type", string(state.Type))
	}
	if state.Connected {
		b.flush()
	}
}
