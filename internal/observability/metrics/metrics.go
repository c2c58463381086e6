package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking flows.
type SchedulingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	cancellationsTotal *prometheus.CounterVec
	reconcileTotal     *prometheus.CounterVec
	backendLatency     *prometheus.HistogramVec
	postCommitFailures prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Total booking attempts by backend and outcome",
		}, []string{"backend", "outcome"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "cancellations_total",
			Help:      "Total cancellation attempts by backend and outcome",
		}, []string{"backend", "outcome"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "reconcile_records_total",
			Help:      "Reconciliation actions taken against the local mirror",
		}, []string{"action"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "backend_latency_seconds",
			Help:      "Latency of remote scheduling backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		postCommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "post_commit_failures_total",
			Help:      "Deferred post-commit actions that failed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.cancellationsTotal, m.reconcileTotal, m.backendLatency, m.postCommitFailures)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(backend, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(backend, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveCancellation(backend, outcome string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(backend, outcome).Inc()
}

// ObserveReconcile records one reconciliation action: created, canceled
// or skipped.
func (m *SchedulingMetrics) ObserveReconcile(action string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(action).Inc()
}

func (m *SchedulingMetrics) ObserveBackendLatency(backend, operation string, seconds float64) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(backend, operation).Observe(seconds)
}

func (m *SchedulingMetrics) ObservePostCommitFailure() {
	if m == nil {
		return
	}
	m.postCommitFailures.Inc()
}
