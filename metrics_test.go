package netsched

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorRecordsAcrossFamilies(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", PriorityNormal, "success", 120*time.Millisecond)
	mc.RecordRequest("GET", PriorityNormal, "error", 80*time.Millisecond)
	mc.RecordAdmission(PriorityNormal, 1)
	mc.RecordAdmission(PriorityNormal, -1)
	mc.RecordCoalesced("GET")
	mc.RecordBatchFlush(ConnectionWifi, 3)
	mc.RecordRateDeferral()
	mc.RecordAdmissionDenied(PriorityLow)
	mc.RecordAdmissionTimeout(PriorityBackground)
	mc.RecordPrefetchIssued()
	mc.RecordPrefetchHit()
	mc.RecordPrefetchMiss()
	mc.RecordPrefetchBytes(2048)
	mc.RecordConnectivityTransition(ConnectivityState{Connected: true, Type: ConnectionWifi})

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "normal", "success")); got != 1 {
		t.Errorf("requests_total success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("normal")); got != 0 {
		t.Errorf("requests_in_flight = %v, want 0 after release", got)
	}
	if got := testutil.ToFloat64(mc.coalescedTotal.WithLabelValues("GET")); got != 1 {
		t.Errorf("coalesced_requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.rateDeferralsTotal); got != 1 {
		t.Errorf("rate_deferrals_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.admissionDeniedTotal.WithLabelValues("low")); got != 1 {
		t.Errorf("admission_denied_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.prefetchBytesTotal); got != 2048 {
		t.Errorf("prefetch_bytes_total = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(mc.connectivityTransitions.WithLabelValues("wifi", "true")); got != 1 {
		t.Errorf("connectivity_transitions_total = %v, want 1", got)
	}
}

func TestMetricsCollectorNilIsSafe(t *testing.T) {
	var mc *MetricsCollector
	mc.RecordRequest("GET", PriorityNormal, "success", time.Second)
	mc.RecordAdmission(PriorityNormal, 1)
	mc.RecordCoalesced("GET")
	mc.RecordBatchFlush(ConnectionWifi, 1)
	mc.RecordRateDeferral()
	mc.RecordAdmissionDenied(PriorityNormal)
	mc.RecordAdmissionTimeout(PriorityNormal)
	mc.RecordPrefetchIssued()
	mc.RecordPrefetchHit()
	mc.RecordPrefetchMiss()
	mc.RecordPrefetchBytes(1)
	mc.RecordConnectivityTransition(ConnectivityState{})
}
