package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for webhook and booking flows.
type ConversationMetrics struct {
	webhookTotal    *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	modelCalls      *prometheus.CounterVec
	bookingCalls    *prometheus.CounterVec
	fallbackTotal   *prometheus.CounterVec
	probeLatency    *prometheus.HistogramVec
	curationActions *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound chat webhooks",
		}, []string{"route", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of chat webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "llm",
			Name:      "model_calls_total",
			Help:      "Total LLM invocations",
		}, []string{"provider", "status"}),
		bookingCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "booking",
			Name:      "adapter_calls_total",
			Help:      "Total booking adapter operations",
		}, []string{"system", "operation", "status"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "fallback",
			Name:      "responses_total",
			Help:      "Total fallback responses served",
		}, []string{"category"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "booking",
			Name:      "region_probe_seconds",
			Help:      "Latency of booking region discovery probes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"system", "outcome"}),
		curationActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "curation",
			Name:      "actions_total",
			Help:      "Total review actions on conversation sessions",
		}, []string{"action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.webhookTotal, m.webhookLatency, m.modelCalls,
		m.bookingCalls, m.fallbackTotal, m.probeLatency, m.curationActions,
	)
	return m
}

func (m *ConversationMetrics) ObserveWebhook(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(route, status).Inc()
	m.webhookLatency.WithLabelValues(route).Observe(seconds)
}

func (m *ConversationMetrics) ObserveModelCall(provider, status string) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(provider, status).Inc()
}

func (m *ConversationMetrics) ObserveBookingCall(system, operation, status string) {
	if m == nil {
		return
	}
	m.bookingCalls.WithLabelValues(system, operation, status).Inc()
}

func (m *ConversationMetrics) ObserveFallback(category string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(category).Inc()
}

func (m *ConversationMetrics) ObserveRegionProbe(system, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.probeLatency.WithLabelValues(system, outcome).Observe(seconds)
}

func (m *ConversationMetrics) ObserveCuration(action string) {
	if m == nil {
		return
	}
	m.curationActions.WithLabelValues(action).Inc()
}
