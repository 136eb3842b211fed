package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReservationMetrics records reservation transaction outcomes.
type ReservationMetrics struct {
	duration  *prometheus.HistogramVec
	committed *prometheus.CounterVec
	conflict  *prometheus.CounterVec
	transient *prometheus.CounterVec
}

// NewReservationMetrics registers the reservation metrics on the provided registerer.
func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reservation_txn_duration_seconds",
		Help:    "Duration of reservation transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_committed_total",
		Help: "Committed reservation transactions.",
	}, []string{"channel"})
	conflict := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_conflict_total",
		Help: "Reservation attempts rejected for insufficient capacity.",
	}, []string{"channel"})
	transient := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_transient_total",
		Help: "Reservation attempts that exhausted contention retries.",
	}, []string{"channel"})
	reg.MustRegister(duration, committed, conflict, transient)
	return &ReservationMetrics{
		duration:  duration,
		committed: committed,
		conflict:  conflict,
		transient: transient,
	}
}

// ObserveDuration records the duration for the named operation.
func (r *ReservationMetrics) ObserveDuration(operation string, duration time.Duration) {
	if r == nil || r.duration == nil {
		return
	}
	r.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncCommitted increments the committed counter for the given channel.
func (r *ReservationMetrics) IncCommitted(channel string) {
	if r == nil || r.committed == nil {
		return
	}
	r.committed.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncConflict increments the conflict counter for the given channel.
func (r *ReservationMetrics) IncConflict(channel string) {
	if r == nil || r.conflict == nil {
		return
	}
	r.conflict.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncTransient increments the transient-failure counter for the given channel.
func (r *ReservationMetrics) IncTransient(channel string) {
	if r == nil || r.transient == nil {
		return
	}
	r.transient.WithLabelValues(normalizeLabel(channel)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
