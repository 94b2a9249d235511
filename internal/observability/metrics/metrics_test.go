package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversationMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	require.NotNil(t, m)

	m.ObserveWebhook("webhook_id", "ok", 0.05)
	m.ObserveModelCall("gemini", "ok")
	m.ObserveBookingCall("cliniko", "check_availability", "ok")
	m.ObserveFallback("provider_outage")
	m.ObserveRegionProbe("cliniko", "found", 1.2)
	m.ObserveCuration("approve")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *ConversationMetrics
	assert.NotPanics(t, func() {
		m.ObserveWebhook("legacy", "ok", 0.01)
		m.ObserveModelCall("bedrock", "error")
		m.ObserveBookingCall("mock", "book_appointment", "ok")
		m.ObserveFallback("timeout")
		m.ObserveRegionProbe("cliniko", "exhausted", 8)
		m.ObserveCuration("reject")
	})
}
