package netsched

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the scheduling layer's
// request lifecycle, batching, admission control and prefetching. It is safe
// for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	coalescedTotal *prometheus.CounterVec

	batchFlushesTotal  *prometheus.CounterVec
	batchSize          *prometheus.HistogramVec
	rateDeferralsTotal prometheus.Counter

	admissionDeniedTotal  *prometheus.CounterVec
	admissionTimeoutTotal *prometheus.CounterVec

	prefetchIssuedTotal prometheus.Counter
	prefetchHitsTotal   prometheus.Counter
	prefetchMissesTotal prometheus.Counter
	prefetchBytesTotal  prometheus.Counter

	connectivityTransitions *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsched_requests_total",
				Help: "Total number of requests settled, by verb, tier and outcome",
			},
			[]string{"method", "tier", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netsched_request_duration_seconds",
				Help:    "Duration from enqueue to settlement in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "tier"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netsched_requests_in_flight",
				Help: "Number of admitted requests currently tracked",
			},
			[]string{"tier"},
		),
		coalescedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsched_coalesced_requests_total",
				Help: "Total number of callers attached to an existing in-flight request",
			},
			[]string{"method"},
		),
		batchFlushesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsched_batch_flushes_total",
				Help: "Total number of batch flushes, by connection type",
			},
			[]string{"connection"},
		),
		batchSize: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netsched_batch_size",
				Help:    "Number of requests dispatched per flush",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 13, 21},
			},
			[]string{"connection"},
		),
		rateDeferralsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "netsched_rate_deferrals_total",
				Help: "Total number of flushes deferred by the sliding rate window",
			},
		),
		admissionDeniedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsched_admission_denied_total",
				Help: "Total number of admission denials, by tier",
			},
			[]string{"tier"},
		),
		admissionTimeoutTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsched_admission_timeouts_total",
				Help: "Total number of advisory timeout evictions, by tier",
			},
			[]string{"tier"},
		),
		prefetchIssuedTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "netsched_prefetch_issued_total",
				Help: "Total number of prefetch requests dispatched",
			},
		),
		prefetchHitsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "netsched_prefetch_hits_total",
				Help: "Total accesses landing within the prefetch grace window",
			},
		),
		prefetchMissesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "netsched_prefetch_misses_total",
				Help: "Total accesses landing outside the prefetch grace window",
			},
		),
		prefetchBytesTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "netsched_prefetch_bytes_total",
				Help: "Cumulative bytes fetched by prefetching",
			},
		),
		connectivityTransitions: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsched_connectivity_transitions_total",
				Help: "Total connectivity transitions observed, by resulting type",
			},
			[]string{"connection", "connected"},
		),
	}
}

// RecordRequest records a settled request.
func (mc *MetricsCollector) RecordRequest(method string, tier Priority, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(method, tier.String(), outcome).Inc()
	mc.requestDuration.WithLabelValues(method, tier.String()).Observe(duration.Seconds())
}

// RecordAdmission adjusts the in-flight gauge for a tier.
func (mc *MetricsCollector) RecordAdmission(tier Priority, delta float64) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(tier.String()).Add(delta)
}

// RecordCoalesced counts a caller attached to an existing group.
func (mc *MetricsCollector) RecordCoalesced(method string) {
	if mc == nil {
		return
	}
	mc.coalescedTotal.WithLabelValues(method).Inc()
}

// RecordBatchFlush records one flush and its dispatched size.
func (mc *MetricsCollector) RecordBatchFlush(conn ConnectionType, size int) {
	if mc == nil {
		return
	}
	mc.batchFlushesTotal.WithLabelValues(string(conn)).Inc()
	mc.batchSize.WithLabelValues(string(conn)).Observe(float64(size))
}

// RecordRateDeferral counts a flush deferred by the rate window.
func (mc *MetricsCollector) RecordRateDeferral() {
	if mc == nil {
		return
	}
	mc.rateDeferralsTotal.Inc()
}

// RecordAdmissionDenied counts a capacity denial.
func (mc *MetricsCollector) RecordAdmissionDenied(tier Priority) {
	if mc == nil {
		return
	}
	mc.admissionDeniedTotal.WithLabelValues(tier.String()).Inc()
}

// RecordAdmissionTimeout counts an advisory timeout eviction.
func (mc *MetricsCollector) RecordAdmissionTimeout(tier Priority) {
	if mc == nil {
		return
	}
	mc.admissionTimeoutTotal.WithLabelValues(tier.String()).Inc()
}

// RecordPrefetchIssued counts one dispatched prefetch.
func (mc *MetricsCollector) RecordPrefetchIssued() {
	if mc == nil {
		return
	}
	mc.prefetchIssuedTotal.Inc()
}

// RecordPrefetchHit counts an access inside the grace window.
func (mc *MetricsCollector) RecordPrefetchHit() {
	if mc == nil {
		return
	}
	mc.prefetchHitsTotal.Inc()
}

// RecordPrefetchMiss counts an access outside the grace window.
func (mc *MetricsCollector) RecordPrefetchMiss() {
	if mc == nil {
		return
	}
	mc.prefetchMissesTotal.Inc()
}

// RecordPrefetchBytes adds fetched bytes to the cumulative counter.
func (mc *MetricsCollector) RecordPrefetchBytes(n int) {
	if mc == nil {
		return
	}
	mc.prefetchBytesTotal.Add(float64(n))
}

// RecordConnectivityTransition counts an observed transition.
func (mc *MetricsCollector) RecordConnectivityTransition(state ConnectivityState) {
	if mc == nil {
		return
	}
	connected := "false"
	if state.Connected {
		connected = "true"
	}
	mc.connectivityTransitions.WithLabelValues(string(state.Type), connected).Inc()
}
