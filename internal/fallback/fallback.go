// Package fallback classifies dependency failures and produces safe,
// detail-free user-facing text. It keeps the chat responsive when the model
// provider, booking provider, or a persistent store is down.
package fallback

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/careloop/clinic-concierge/internal/clinic"
)

// Scenario identifies the class of dependency failure.
type Scenario string

const (
	StoreUnavailable   Scenario = "store_unavailable"
	BookingUnavailable Scenario = "booking_unavailable"
	ModelUnavailable   Scenario = "model_unavailable"
	GeneralError       Scenario = "general_error"
)

// Sentinel errors wrapped by component boundaries so Classify can sort
// failures without string matching.
var (
	ErrStore   = errors.New("store unavailable")
	ErrBooking = errors.New("booking provider unavailable")
	ErrModel   = errors.New("model provider unavailable")
)

// Manager is a stateless classification and templating utility.
type Manager struct {
	messages map[Scenario]string
}

// NewManager returns a Manager with the standard pre-approved messages.
func NewManager() *Manager {
	return &Manager{
		messages: map[Scenario]string{
			StoreUnavailable:   "I'm having a little trouble accessing our records right now. I can still answer questions, and our team will follow up to confirm any booking details.",
			BookingUnavailable: "Our booking system is temporarily unavailable, so I can't confirm appointments right now. I've noted your request and our team will be in touch to finalize it.",
			ModelUnavailable:   "I'm having trouble processing messages at the moment. Please try again in a few minutes, or call the clinic directly.",
			GeneralError:       "Something went wrong on our side. Please try again shortly, and sorry for the inconvenience.",
		},
	}
}

// Classify sorts an error into a fallback scenario. Timeouts and cancelled
// contexts are treated as provider failures, never surfaced raw.
func (m *Manager) Classify(err error) Scenario {
	if err == nil {
		return GeneralError
	}
	switch {
	case errors.Is(err, ErrStore), errors.Is(err, redis.ErrClosed):
		return StoreUnavailable
	case errors.Is(err, ErrBooking):
		return BookingUnavailable
	case errors.Is(err, ErrModel):
		return ModelUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return BookingUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return BookingUnavailable
	}
	// Last resort for errors from layers that could not wrap a sentinel.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "redis"), strings.Contains(msg, "dynamodb"):
		return StoreUnavailable
	case strings.Contains(msg, "model"), strings.Contains(msg, "gemini"), strings.Contains(msg, "bedrock"):
		return ModelUnavailable
	}
	return GeneralError
}

// ErrorMessage returns the pre-approved user-facing text for a scenario.
// The text never contains identifiers, credentials, or error detail.
func (m *Manager) ErrorMessage(scenario Scenario) string {
	if msg, ok := m.messages[scenario]; ok {
		return msg
	}
	return m.messages[GeneralError]
}

// BuildFallbackConfig synthesizes a clearly-fake, credential-free clinic
// config usable only by the mock booking adapter.
func (m *Manager) BuildFallbackConfig(tenantID, clinicID string) *clinic.Config {
	cfg := clinic.DefaultConfig(tenantID, clinicID)
	cfg.BookingSystem = clinic.SystemMock
	cfg.Credentials = clinic.Credentials{}
	return cfg
}
