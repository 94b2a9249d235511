package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/careloop/clinic-concierge/internal/clinic"
	"github.com/careloop/clinic-concierge/internal/conversation"
	"github.com/careloop/clinic-concierge/internal/fallback"
	"github.com/careloop/clinic-concierge/internal/observability/metrics"
	"github.com/careloop/clinic-concierge/internal/tenancy"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

const maxWebhookBody = 64 * 1024

type identityResolver interface {
	Resolve(ctx context.Context, webhookID string) (tenancy.Identity, error)
	ResolveLegacy(ctx context.Context, tenantID, clinicID string) (tenancy.Identity, error)
}

type chatEngine interface {
	HandleMessage(ctx context.Context, identity tenancy.Identity, sessionID, message string) (*conversation.Reply, error)
}

// WebhookHandler serves the inbound chat webhook. All responses use the
// envelope shape; 404 is reserved for unresolved webhooks, clinics, and
// sessions.
type WebhookHandler struct {
	resolver identityResolver
	engine   chatEngine
	fb       *fallback.Manager
	metrics  *metrics.ConversationMetrics
	logger   *logging.Logger
}

func NewWebhookHandler(resolver identityResolver, engine chatEngine, m *metrics.ConversationMetrics, logger *logging.Logger) *WebhookHandler {
	if resolver == nil {
		panic("handlers: resolver cannot be nil")
	}
	if engine == nil {
		panic("handlers: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{resolver: resolver, engine: engine, fb: fallback.NewManager(), metrics: m, logger: logger}
}

// webhookRequest is the chat widget's payload. UserConsent and Metadata are
// part of the widget contract; the server records them in logs only.
type webhookRequest struct {
	Message     string                 `json:"message"`
	SessionID   string                 `json:"sessionId"`
	UserConsent *bool                  `json:"userConsent,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HandleWebhook processes POST /webhook/{webhookID}.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	webhookID := chi.URLParam(r, "webhookID")

	identity, err := h.resolver.Resolve(r.Context(), webhookID)
	if err != nil {
		if isAddressingError(err) {
			h.observe("webhook", http.StatusNotFound, start)
			writeError(w, http.StatusNotFound, "webhook_not_found", "unknown webhook")
			return
		}
		// The mapping store is down, not the webhook wrong. Keep the chat up
		// with a degraded turn.
		h.logger.ErrorContext(r.Context(), "webhook resolution failed, serving degraded turn",
			"webhook_id", webhookID, "error", err)
		h.serveDegraded(w, r, "webhook", start)
		return
	}
	h.serveChat(w, r, identity, "webhook", start)
}

// HandleLegacyWebhook processes POST /webhook?tenant=&clinic=, the
// two-parameter form kept for existing integrations.
func (h *WebhookHandler) HandleLegacyWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	tenantID := r.URL.Query().Get("tenant")
	clinicID := r.URL.Query().Get("clinic")

	identity, err := h.resolver.ResolveLegacy(r.Context(), tenantID, clinicID)
	if err != nil {
		if isAddressingError(err) {
			h.observe("webhook_legacy", http.StatusNotFound, start)
			writeError(w, http.StatusNotFound, "clinic_not_found", "unknown clinic")
			return
		}
		h.logger.ErrorContext(r.Context(), "webhook resolution failed, serving degraded turn",
			"tenant_id", tenantID, "clinic_id", clinicID, "error", err)
		h.serveDegraded(w, r, "webhook_legacy", start)
		return
	}
	h.serveChat(w, r, identity, "webhook_legacy", start)
}

// isAddressingError reports whether a resolution failure means the caller
// addressed a webhook or clinic that does not exist, as opposed to the
// mapping store being unreachable.
func isAddressingError(err error) bool {
	return errors.Is(err, tenancy.ErrMappingNotFound) ||
		errors.Is(err, tenancy.ErrMappingInactive) ||
		errors.Is(err, tenancy.ErrInvalidIdentity)
}

func (h *WebhookHandler) decodeRequest(w http.ResponseWriter, r *http.Request, route string, start time.Time) (webhookRequest, bool) {
	var req webhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		h.observe(route, http.StatusBadRequest, start)
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		h.observe(route, http.StatusBadRequest, start)
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return req, false
	}
	return req, true
}

// serveDegraded answers a turn that could not even be routed to a tenant.
// Nothing is persisted; the patient gets the templated outage apology.
func (h *WebhookHandler) serveDegraded(w http.ResponseWriter, r *http.Request, route string, start time.Time) {
	req, ok := h.decodeRequest(w, r, route, start)
	if !ok {
		return
	}
	reply := &conversation.Reply{
		Message:          h.fb.ErrorMessage(fallback.StoreUnavailable),
		SessionID:        req.SessionID,
		RequiresFollowUp: true,
		FunctionCalls:    []conversation.FunctionCallRecord{},
		Metadata:         conversation.Metadata{Intent: "fallback", FallbackMode: true},
	}
	h.observe(route, http.StatusOK, start)
	writeSuccess(w, http.StatusOK, reply)
}

func (h *WebhookHandler) serveChat(w http.ResponseWriter, r *http.Request, identity tenancy.Identity, route string, start time.Time) {
	req, ok := h.decodeRequest(w, r, route, start)
	if !ok {
		return
	}

	ctx := tenancy.WithIdentity(r.Context(), identity.TenantID, identity.ClinicID)
	if req.UserConsent != nil && !*req.UserConsent {
		h.logger.InfoContext(ctx, "chat turn without user consent", "session_id", req.SessionID)
	}

	reply, err := h.engine.HandleMessage(ctx, identity, req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			h.observe(route, http.StatusNotFound, start)
			writeError(w, http.StatusNotFound, "session_not_found", "unknown session")
			return
		}
		if errors.Is(err, clinic.ErrClinicNotFound) {
			h.observe(route, http.StatusNotFound, start)
			writeError(w, http.StatusNotFound, "clinic_not_found", "unknown clinic")
			return
		}
		// The engine degrades infrastructure failures itself; anything else
		// is unexpected.
		h.logger.ErrorContext(ctx, "chat turn failed", "error", err)
		h.observe(route, http.StatusInternalServerError, start)
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
		return
	}

	h.observe(route, http.StatusOK, start)
	writeSuccess(w, http.StatusOK, reply)
}

func (h *WebhookHandler) observe(route string, status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveWebhook(route, strconv.Itoa(status), time.Since(start).Seconds())
	}
}
