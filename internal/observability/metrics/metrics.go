package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the lead intake pipeline.
type IntakeMetrics struct {
	submissionsTotal   *prometheus.CounterVec
	relayAttemptsTotal *prometheus.CounterVec
	relayDeliveries    *prometheus.CounterVec
	relayLatency       prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "contact",
			Name:      "submissions_total",
			Help:      "Total contact form submissions by outcome",
		}, []string{"outcome"}),
		relayAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "relay",
			Name:      "attempts_total",
			Help:      "Total webhook delivery attempts",
		}, []string{"outcome"}),
		relayDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Total webhook deliveries by final outcome",
		}, []string{"outcome"}),
		relayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "relay",
			Name:      "delivery_seconds",
			Help:      "End-to-end webhook delivery latency including retries",
			Buckets:   prometheus.DefBuckets,
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "notify",
			Name:      "sends_total",
			Help:      "Total notification email sends by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.relayAttemptsTotal, m.relayDeliveries, m.relayLatency, m.notificationsTotal)
	return m
}

func (m *IntakeMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveRelayAttempt(outcome string) {
	if m == nil {
		return
	}
	m.relayAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveRelayDelivery(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.relayDeliveries.WithLabelValues(outcome).Inc()
	m.relayLatency.Observe(seconds)
}

func (m *IntakeMetrics) ObserveNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, outcome).Inc()
}
