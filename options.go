package netsched

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Default configuration values for the scheduling layer.
const (
	DefaultGlobalCeiling     = 8
	DefaultBatchMaxSize      = 5
	DefaultBatchDelay        = 50 * time.Millisecond
	DefaultBaseRatePerMinute = 60
	DefaultDeferralBase      = time.Second
	DefaultDeferralStep      = 500 * time.Millisecond
	DefaultDeferralMax       = 30 * time.Second
	DefaultPrefetchMaxItems  = 5
	DefaultPrefetchCycle     = 60 * time.Second
	DefaultPrefetchDataCap   = 5 * 1024 * 1024
)

func defaultTierCeilings() map[Priority]int {
	return map[Priority]int{
		PriorityCritical:   4,
		PriorityHigh:       3,
		PriorityNormal:     2,
		PriorityLow:        1,
		PriorityBackground: 1,
	}
}

func defaultTierTimeouts() map[Priority]time.Duration {
	return map[Priority]time.Duration{
		PriorityCritical:   10 * time.Second,
		PriorityHigh:       15 * time.Second,
		PriorityNormal:     30 * time.Second,
		PriorityLow:        45 * time.Second,
		PriorityBackground: 60 * time.Second,
	}
}

func defaultRetryDelays() map[Priority]time.Duration {
	return map[Priority]time.Duration{
		PriorityCritical:   100 * time.Millisecond,
		PriorityHigh:       500 * time.Millisecond,
		PriorityNormal:     time.Second,
		PriorityLow:        2 * time.Second,
		PriorityBackground: 5 * time.Second,
	}
}

// DefaultExcludedRoutes returns route fragments never tracked or prefetched.
func DefaultExcludedRoutes() []string {
	return []string{"auth", "login", "logout", "payment", "checkout"}
}

// BatchOption configures a BatchScheduler.
type BatchOption func(*BatchScheduler)

// WithBatchMaxSize sets the largest batch dispatched per flush on wifi.
func WithBatchMaxSize(n int) BatchOption {
	return func(b *BatchScheduler) {
		b.maxBatchSize = n
	}
}

// WithBatchDelay sets the batch window length.
func WithBatchDelay(d time.Duration) BatchOption {
	return func(b *BatchScheduler) {
		b.batchDelay = d
	}
}

// WithBaseRatePerMinute sets the sliding-window request limit on wifi.
func WithBaseRatePerMinute(n int) BatchOption {
	return func(b *BatchScheduler) {
		b.baseRate = n
	}
}

// WithDeferral tunes the rate-window overage deferral: base plus step per
// over-limit request, capped at max.
func WithDeferral(base, step, max time.Duration) BatchOption {
	return func(b *BatchScheduler) {
		b.deferralBase = base
		b.deferralStep = step
		b.deferralMax = max
	}
}

// WithCoalescing toggles request coalescing.
func WithCoalescing(enabled bool) BatchOption {
	return func(b *BatchScheduler) {
		b.coalesce = enabled
	}
}

// WithCoalesceKeyFunc sets a custom dedup hash function.
func WithCoalesceKeyFunc(fn CoalesceKeyFunc) BatchOption {
	return func(b *BatchScheduler) {
		b.keyFunc = fn
	}
}

// WithCoalesceCondition sets a custom coalescing eligibility function.
func WithCoalesceCondition(fn CoalesceCondition) BatchOption {
	return func(b *BatchScheduler) {
		b.condition = fn
	}
}

// WithTelemetryStore sets the durable store receiving connectivity telemetry.
func WithTelemetryStore(store Store) BatchOption {
	return func(b *BatchScheduler) {
		b.store = store
	}
}

// WithBatchClock sets the clock driving the batch window and rate window.
func WithBatchClock(clk clock.Clock) BatchOption {
	return func(b *BatchScheduler) {
		b.clk = clk
	}
}

// WithBatchLogger sets the batch scheduler's logger.
func WithBatchLogger(logger Logger) BatchOption {
	return func(b *BatchScheduler) {
		b.logger = logger
	}
}

// WithBatchDebugConfig sets the batch scheduler's debug configuration.
func WithBatchDebugConfig(config *DebugConfig) BatchOption {
	return func(b *BatchScheduler) {
		b.debug = config
	}
}

// WithBatchMetrics sets the batch scheduler's metrics collector.
func WithBatchMetrics(mc *MetricsCollector) BatchOption {
	return func(b *BatchScheduler) {
		b.metrics = mc
	}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithGlobalCeiling bounds the sum of non-CRITICAL active requests.
func WithGlobalCeiling(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.globalCeiling = n
	}
}

// WithTierCeiling sets one tier's concurrency ceiling.
func WithTierCeiling(tier Priority, n int) SchedulerOption {
	return func(s *Scheduler) {
		s.tierCeilings[tier] = n
	}
}

// WithTierTimeout sets one tier's advisory timeout.
func WithTierTimeout(tier Priority, d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.tierTimeouts[tier] = d
	}
}

// WithAdmissionRetryDelay sets one tier's delay between admission attempts.
func WithAdmissionRetryDelay(tier Priority, d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.retryDelays[tier] = d
	}
}

// WithAdmissionJitter sets the jitter factor applied to admission retry
// delays (0.0 to 1.0).
func WithAdmissionJitter(f float64) SchedulerOption {
	return func(s *Scheduler) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		s.retryJitter = f
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) SchedulerOption {
	return func(s *Scheduler) {
		s.requestIDGen = gen
	}
}

// WithSchedulerClock sets the clock driving admission retries and advisory
// timeouts.
func WithSchedulerClock(clk clock.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clk = clk
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(logger Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithSchedulerDebugConfig sets the scheduler's debug configuration.
func WithSchedulerDebugConfig(config *DebugConfig) SchedulerOption {
	return func(s *Scheduler) {
		s.debug = config
	}
}

// WithSchedulerMetrics sets the scheduler's metrics collector.
func WithSchedulerMetrics(mc *MetricsCollector) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = mc
	}
}

// PrefetchOption configures a Prefetcher.
type PrefetchOption func(*Prefetcher)

// WithExcludedRoutes replaces the exclusion list. A route containing any
// listed fragment is never tracked or prefetched.
func WithExcludedRoutes(routes []string) PrefetchOption {
	return func(p *Prefetcher) {
		p.excludedRoutes = routes
	}
}

// WithPrefetchMaxItems caps the number of candidates dispatched per cycle.
func WithPrefetchMaxItems(n int) PrefetchOption {
	return func(p *Prefetcher) {
		p.maxItems = n
	}
}

// WithPrefetchCycle sets the scoring cycle interval.
func WithPrefetchCycle(d time.Duration) PrefetchOption {
	return func(p *Prefetcher) {
		p.cycleInterval = d
	}
}

// WithWifiOnly gates prefetching on a wifi connection.
func WithWifiOnly(enabled bool) PrefetchOption {
	return func(p *Prefetcher) {
		p.wifiOnly = enabled
	}
}

// WithChargingOnly gates prefetching on the device charging.
func WithChargingOnly(enabled bool) PrefetchOption {
	return func(p *Prefetcher) {
		p.chargingOnly = enabled
	}
}

// WithPrefetchDataCap bounds cumulative prefetch data usage in bytes.
func WithPrefetchDataCap(n int64) PrefetchOption {
	return func(p *Prefetcher) {
		p.dataCap = n
	}
}

// WithPrefetchStagger sets the fixed delay between dispatches in one cycle.
func WithPrefetchStagger(d time.Duration) PrefetchOption {
	return func(p *Prefetcher) {
		p.stagger = d
	}
}

// WithPersistDebounce sets how long after the last mutation state is
// persisted.
func WithPersistDebounce(d time.Duration) PrefetchOption {
	return func(p *Prefetcher) {
		p.persistDebounce = d
	}
}

// WithIdleScheduler routes opportunistic cycles through a host idle hook.
func WithIdleScheduler(idle IdleScheduler) PrefetchOption {
	return func(p *Prefetcher) {
		p.idle = idle
	}
}

// WithPrefetchClock sets the clock driving cycles, stagger and debounce.
func WithPrefetchClock(clk clock.Clock) PrefetchOption {
	return func(p *Prefetcher) {
		p.clk = clk
	}
}

// WithPrefetchLogger sets the prefetcher's logger.
func WithPrefetchLogger(logger Logger) PrefetchOption {
	return func(p *Prefetcher) {
		p.logger = logger
	}
}

// WithPrefetchDebugConfig sets the prefetcher's debug configuration.
func WithPrefetchDebugConfig(config *DebugConfig) PrefetchOption {
	return func(p *Prefetcher) {
		p.debug = config
	}
}

// WithPrefetchMetrics sets the prefetcher's metrics collector.
func WithPrefetchMetrics(mc *MetricsCollector) PrefetchOption {
	return func(p *Prefetcher) {
		p.metrics = mc
	}
}

// validateConfiguration validates batch scheduler configuration.
func (b *BatchScheduler) validateConfiguration() error {
	var errs []string

	if b.transport == nil {
		errs = append(errs, "transport must not be nil")
	}
	if b.maxBatchSize < 1 {
		errs = append(errs, "maxBatchSize must be at least 1")
	}
	if b.batchDelay <= 0 {
		errs = append(errs, "batchDelay must be positive")
	}
	if b.baseRate < 1 {
		errs = append(errs, "baseRate must be at least 1")
	}
	if b.deferralBase <= 0 {
		errs = append(errs, "deferralBase must be positive")
	}
	if b.deferralMax > 0 && b.deferralMax < b.deferralBase {
		errs = append(errs, "deferralMax must be greater than or equal to deferralBase")
	}
	if b.keyFunc == nil {
		errs = append(errs, "coalesce key function must not be nil")
	}
	if b.condition == nil {
		errs = append(errs, "coalesce condition must not be nil")
	}

	return validationError(errs)
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (b *BatchScheduler) ValidateConfigurationStrict() {
	if b.validationError != nil {
		panic(fmt.Sprintf("invalid batch scheduler configuration: %v", b.validationError))
	}
}

// validateConfiguration validates admission scheduler configuration.
func (s *Scheduler) validateConfiguration() error {
	var errs []string

	if s.batcher == nil {
		errs = append(errs, "batch scheduler must not be nil")
	}
	if s.globalCeiling < 1 {
		errs = append(errs, "globalCeiling must be at least 1")
	}
	for _, tier := range Tiers {
		if s.tierCeilings[tier] < 1 {
			errs = append(errs, fmt.Sprintf("ceiling for tier %s must be at least 1", tier))
		}
		if s.tierTimeouts[tier] <= 0 {
			errs = append(errs, fmt.Sprintf("timeout for tier %s must be positive", tier))
		}
		if s.retryDelays[tier] <= 0 {
			errs = append(errs, fmt.Sprintf("admission retry delay for tier %s must be positive", tier))
		}
	}
	if s.requestIDGen == nil {
		errs = append(errs, "request ID generator must not be nil")
	}

	return validationError(errs)
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (s *Scheduler) ValidateConfigurationStrict() {
	if s.validationError != nil {
		panic(fmt.Sprintf("invalid scheduler configuration: %v", s.validationError))
	}
}

func validationError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return &SchedulerError{
		Type:    ErrorTypeValidation,
		Message: "configuration validation failed",
		Cause:   fmt.Errorf("validation errors: %v", errs),
	}
}
