package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careloop/clinic-concierge/internal/clinic"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

type configInvalidator interface {
	Invalidate(tenantID, clinicID string)
}

// AdminClinicsHandler manages clinic configurations. Writes invalidate the
// config cache so the next chat turn sees the update.
type AdminClinicsHandler struct {
	store       *clinic.Store
	invalidator configInvalidator
	logger      *logging.Logger
}

func NewAdminClinicsHandler(store *clinic.Store, invalidator configInvalidator, logger *logging.Logger) *AdminClinicsHandler {
	if store == nil {
		panic("handlers: clinic store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminClinicsHandler{store: store, invalidator: invalidator, logger: logger}
}

// Get handles GET /admin/clinics/{tenantID}/{clinicID}. The API key is
// redacted; only its presence is reported.
func (h *AdminClinicsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	clinicID := chi.URLParam(r, "clinicID")

	cfg, err := h.store.Get(r.Context(), tenantID, clinicID)
	if err != nil {
		if errors.Is(err, clinic.ErrClinicNotFound) {
			writeError(w, http.StatusNotFound, "clinic_not_found", "unknown clinic")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load clinic config",
			"tenant_id", tenantID, "clinic_id", clinicID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load clinic")
		return
	}

	redacted := *cfg
	hasKey := redacted.Credentials.APIKey != ""
	redacted.Credentials.APIKey = ""
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"config":    redacted,
		"hasApiKey": hasKey,
	})
}

// Put handles PUT /admin/clinics/{tenantID}/{clinicID}. An empty APIKey in
// the body keeps the stored key.
func (h *AdminClinicsHandler) Put(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	clinicID := chi.URLParam(r, "clinicID")

	var cfg clinic.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	cfg.TenantID = tenantID
	cfg.ClinicID = clinicID
	cfg.Placeholder = false

	if cfg.Credentials.APIKey == "" {
		// A brand-new clinic has no stored key to carry over.
		existing, err := h.store.Get(r.Context(), tenantID, clinicID)
		if err == nil {
			cfg.Credentials.APIKey = existing.Credentials.APIKey
		}
	}

	if err := h.store.Set(r.Context(), &cfg); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to save clinic config",
			"tenant_id", tenantID, "clinic_id", clinicID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save clinic")
		return
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(tenantID, clinicID)
	}

	h.logger.InfoContext(r.Context(), "clinic config updated",
		"tenant_id", tenantID, "clinic_id", clinicID, "booking_system", string(cfg.System()))
	writeSuccess(w, http.StatusOK, map[string]string{
		"tenantId": tenantID,
		"clinicId": clinicID,
		"status":   "updated",
	})
}
