package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/careloop/clinic-concierge/internal/tenancy"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

// AdminMappingsHandler manages webhook-to-clinic mappings.
type AdminMappingsHandler struct {
	store  *tenancy.MappingStore
	logger *logging.Logger
}

func NewAdminMappingsHandler(store *tenancy.MappingStore, logger *logging.Logger) *AdminMappingsHandler {
	if store == nil {
		panic("handlers: mapping store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminMappingsHandler{store: store, logger: logger}
}

type upsertMappingRequest struct {
	TenantID string `json:"tenantId"`
	ClinicID string `json:"clinicId"`
	Active   *bool  `json:"active,omitempty"`
}

// Get handles GET /admin/webhooks/{webhookID}.
func (h *AdminMappingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	mapping, err := h.store.Get(r.Context(), webhookID)
	if err != nil {
		if errors.Is(err, tenancy.ErrMappingNotFound) {
			writeError(w, http.StatusNotFound, "mapping_not_found", "unknown webhook")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load mapping", "webhook_id", webhookID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load mapping")
		return
	}
	writeSuccess(w, http.StatusOK, mapping)
}

// Upsert handles PUT /admin/webhooks/{webhookID}.
func (h *AdminMappingsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	var req upsertMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.ClinicID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenantId and clinicId are required")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	mapping := tenancy.WebhookMapping{
		WebhookID: webhookID,
		TenantID:  req.TenantID,
		ClinicID:  req.ClinicID,
		Active:    active,
	}
	if err := h.store.Upsert(r.Context(), &mapping); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to upsert mapping", "webhook_id", webhookID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save mapping")
		return
	}
	writeSuccess(w, http.StatusOK, mapping)
}

// Deactivate handles DELETE /admin/webhooks/{webhookID}. The row is kept but
// marked inactive so the webhook stops resolving.
func (h *AdminMappingsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	webhookID := chi.URLParam(r, "webhookID")

	if err := h.store.Deactivate(r.Context(), webhookID); err != nil {
		if errors.Is(err, tenancy.ErrMappingNotFound) {
			writeError(w, http.StatusNotFound, "mapping_not_found", "unknown webhook")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to deactivate mapping", "webhook_id", webhookID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to deactivate mapping")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"webhookId": webhookID, "status": "inactive"})
}
