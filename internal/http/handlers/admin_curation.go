package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/careloop/clinic-concierge/internal/conversation"
	"github.com/careloop/clinic-concierge/internal/curation"
	"github.com/careloop/clinic-concierge/internal/http/middleware"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

type curationService interface {
	ListPending(ctx context.Context, limit int32) ([]conversation.Session, error)
	GetDetail(ctx context.Context, sessionID string) (*conversation.Session, error)
	Approve(ctx context.Context, sessionID, tier, reviewedBy string) error
	Reject(ctx context.Context, sessionID, reviewedBy string) error
	SweepIdle(ctx context.Context) (int, error)
}

// AdminCurationHandler exposes the review queue to the admin UI.
type AdminCurationHandler struct {
	service curationService
	logger  *logging.Logger
}

func NewAdminCurationHandler(service curationService, logger *logging.Logger) *AdminCurationHandler {
	if service == nil {
		panic("handlers: curation service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminCurationHandler{service: service, logger: logger}
}

// sessionSummary is the list-view projection of a session.
type sessionSummary struct {
	SessionID     string `json:"sessionId"`
	TenantID      string `json:"tenantId"`
	ClinicID      string `json:"clinicId"`
	Status        string `json:"status"`
	TurnCount     int    `json:"turnCount"`
	Booked        bool   `json:"booked"`
	Declined      bool   `json:"declined"`
	LastIntent    string `json:"lastIntent,omitempty"`
	LastMessageAt string `json:"lastMessageAt"`
}

// ListPending handles GET /admin/conversations/pending.
func (h *AdminCurationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 32); err == nil && parsed > 0 {
			limit = int32(parsed)
		}
	}

	sessions, err := h.service.ListPending(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list pending sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list pending conversations")
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, sessionSummary{
			SessionID:     s.SessionID,
			TenantID:      s.TenantID,
			ClinicID:      s.ClinicID,
			Status:        string(s.Status),
			TurnCount:     len(s.Turns),
			Booked:        s.BookedAppointmentID != "",
			Declined:      s.Declined,
			LastIntent:    s.LastIntent,
			LastMessageAt: s.LastMessageAt,
		})
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"conversations": summaries,
		"count":         len(summaries),
	})
}

// GetDetail handles GET /admin/conversations/{sessionID}.
func (h *AdminCurationHandler) GetDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.service.GetDetail(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "unknown session")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load conversation")
		return
	}
	writeSuccess(w, http.StatusOK, session)
}

// approveRequest accepts either the review UI's qualityRating or a tier
// directly. "excellent" and "good" map onto the gold and silver tiers.
type approveRequest struct {
	QualityRating string `json:"qualityRating"`
	Tier          string `json:"tier"`
}

// tier resolves the wire fields to a training-set tier. An unmapped
// qualityRating is passed through so the service reports it as invalid.
func (req approveRequest) tier() string {
	switch req.QualityRating {
	case "excellent":
		return conversation.TierGold
	case "good":
		return conversation.TierSilver
	case "":
		return req.Tier
	default:
		return req.QualityRating
	}
}

// Approve handles POST /admin/conversations/{sessionID}/approve.
func (h *AdminCurationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	reviewer := middleware.ReviewerFromContext(r.Context())

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	tier := req.tier()

	err := h.service.Approve(r.Context(), sessionID, tier, reviewer)
	switch {
	case err == nil:
		writeSuccess(w, http.StatusOK, map[string]string{
			"sessionId": sessionID,
			"status":    string(conversation.StatusApproved),
			"tier":      tier,
		})
	case errors.Is(err, conversation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "unknown session")
	case errors.Is(err, curation.ErrInvalidTier):
		writeError(w, http.StatusBadRequest, "invalid_rating", "qualityRating must be excellent or good")
	case errors.Is(err, curation.ErrNotPending):
		writeError(w, http.StatusConflict, "not_pending", "conversation is not awaiting review")
	default:
		h.logger.ErrorContext(r.Context(), "approval failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "approval failed")
	}
}

// Reject handles POST /admin/conversations/{sessionID}/reject.
func (h *AdminCurationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	reviewer := middleware.ReviewerFromContext(r.Context())

	err := h.service.Reject(r.Context(), sessionID, reviewer)
	switch {
	case err == nil:
		writeSuccess(w, http.StatusOK, map[string]string{
			"sessionId": sessionID,
			"status":    "deleted",
		})
	case errors.Is(err, conversation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "unknown session")
	case errors.Is(err, curation.ErrNotPending):
		writeError(w, http.StatusConflict, "not_pending", "conversation is not awaiting review")
	default:
		h.logger.ErrorContext(r.Context(), "rejection failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "rejection failed")
	}
}

// Sweep handles POST /admin/conversations/sweep, forcing an idle sweep.
func (h *AdminCurationHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	moved, err := h.service.SweepIdle(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "sweep failed")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int{"moved": moved})
}
