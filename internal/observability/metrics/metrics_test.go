package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBookingCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveBooking("native", "success")
	m.ObserveBooking("native", "success")
	m.ObserveBooking("ehr", "slot_unavailable")

	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("native", "success")); got != 2 {
		t.Fatalf("expected 2 native successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("ehr", "slot_unavailable")); got != 1 {
		t.Fatalf("expected 1 ehr unavailable, got %v", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("native", "success")
	m.ObserveCancellation("native", "success")
	m.ObserveReconcile("created")
	m.ObserveBackendLatency("ehr", "create", 0.2)
	m.ObservePostCommitFailure()
}
