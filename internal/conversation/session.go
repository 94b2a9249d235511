// Package conversation implements the per-session chat engine: it turns one
// inbound patient message into model-directed booking calls and a reply.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Status is the curation lifecycle of a session.
type Status string

const (
	StatusActive        Status = "active"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

// Quality tiers assigned at approval time.
const (
	TierGold   = "gold"
	TierSilver = "silver"
	TierBronze = "bronze"
)

// FunctionCallRecord captures one adapter invocation made during a turn,
// including failures. Results are structured so curation and admin review
// can replay what happened.
type FunctionCallRecord struct {
	Name         string                 `dynamodbav:"name" json:"name"`
	Arguments    map[string]interface{} `dynamodbav:"arguments,omitempty" json:"arguments,omitempty"`
	Result       map[string]interface{} `dynamodbav:"result,omitempty" json:"result,omitempty"`
	Error        string                 `dynamodbav:"error,omitempty" json:"error,omitempty"`
	FallbackMode bool                   `dynamodbav:"fallbackMode,omitempty" json:"fallbackMode,omitempty"`
}

// Turn is one message in a session's history.
type Turn struct {
	Role          string               `dynamodbav:"role" json:"role"` // "user" or "assistant"
	Content       string               `dynamodbav:"content" json:"content"`
	FunctionCalls []FunctionCallRecord `dynamodbav:"functionCalls,omitempty" json:"functionCalls,omitempty"`
	CreatedAt     string               `dynamodbav:"createdAt" json:"createdAt"`
}

// Session is the persisted conversation state. History-append ordering is
// load-bearing: processing for one session is serialized by the engine.
type Session struct {
	SessionID string `dynamodbav:"sessionId" json:"sessionId"`
	TenantID  string `dynamodbav:"tenantId" json:"tenantId"`
	ClinicID  string `dynamodbav:"clinicId" json:"clinicId"`
	Status    Status `dynamodbav:"status" json:"status"`
	Tier      string `dynamodbav:"tier,omitempty" json:"tier,omitempty"`

	Turns []Turn `dynamodbav:"turns" json:"turns"`

	// PatientID is set once find_or_create_patient succeeds.
	PatientID string `dynamodbav:"patientId,omitempty" json:"patientId,omitempty"`
	// BookedAppointmentID is set when a booking completes, and cleared on
	// cancellation.
	BookedAppointmentID string `dynamodbav:"bookedAppointmentId,omitempty" json:"bookedAppointmentId,omitempty"`
	// Declined is set when the patient explicitly declined to book.
	Declined bool `dynamodbav:"declined,omitempty" json:"declined,omitempty"`

	LastIntent string `dynamodbav:"lastIntent,omitempty" json:"lastIntent,omitempty"`

	CreatedAt     string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt     string `dynamodbav:"updatedAt" json:"updatedAt"`
	LastMessageAt string `dynamodbav:"lastMessageAt" json:"lastMessageAt"`

	// ReviewedBy/ReviewedAt are set by the curation pipeline.
	ReviewedBy string `dynamodbav:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt string `dynamodbav:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
}

// NewSession creates an active session for a clinic.
func NewSession(tenantID, clinicID string) *Session {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return &Session{
		SessionID:     uuid.NewString(),
		TenantID:      tenantID,
		ClinicID:      clinicID,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
}

// AppendTurn adds a turn and bumps the session timestamps.
func (s *Session) AppendTurn(turn Turn) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if turn.CreatedAt == "" {
		turn.CreatedAt = now
	}
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = now
	s.LastMessageAt = now
}

// Settled reports whether the session reached a terminal booking outcome:
// an appointment is booked or the patient explicitly declined.
func (s *Session) Settled() bool {
	return s.BookedAppointmentID != "" || s.Declined
}

// IdleSince reports whether the session's last message is older than the
// cutoff. Used by the curation sweep.
func (s *Session) IdleSince(cutoff time.Time) bool {
	last, err := time.Parse(time.RFC3339Nano, s.LastMessageAt)
	if err != nil {
		return false
	}
	return last.Before(cutoff)
}
