package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotifierMetrics records change-feed fan-out health.
type NotifierMetrics struct {
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers prometheus.Gauge
}

// NewNotifierMetrics registers the notifier metrics on the provided registerer.
func NewNotifierMetrics(reg prometheus.Registerer) *NotifierMetrics {
	if reg == nil {
		return &NotifierMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_delivered_total",
		Help: "Occupancy change notifications delivered to subscribers.",
	}, []string{"event_type"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_dropped_total",
		Help: "Notifications dropped because a subscriber buffer was full.",
	}, []string{"event_type"})
	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_subscribers",
		Help: "Currently attached change-feed subscribers.",
	})
	reg.MustRegister(delivered, dropped, subscribers)
	return &NotifierMetrics{
		delivered:   delivered,
		dropped:     dropped,
		subscribers: subscribers,
	}
}

// IncDelivered increments the delivered counter for the event type.
func (n *NotifierMetrics) IncDelivered(eventType string) {
	if n == nil || n.delivered == nil {
		return
	}
	n.delivered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDropped increments the dropped counter for the event type.
func (n *NotifierMetrics) IncDropped(eventType string) {
	if n == nil || n.dropped == nil {
		return
	}
	n.dropped.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// SetSubscribers updates the attached subscriber gauge.
func (n *NotifierMetrics) SetSubscribers(count int) {
	if n == nil || n.subscribers == nil {
		return
	}
	n.subscribers.Set(float64(count))
}
