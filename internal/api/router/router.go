// Package router assembles the HTTP surface: the public chat webhook plus
// the JWT-protected admin API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careloop/clinic-concierge/internal/http/handlers"
	httpmiddleware "github.com/careloop/clinic-concierge/internal/http/middleware"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Webhook  *handlers.WebhookHandler
	Curation *handlers.AdminCurationHandler
	Mappings *handlers.AdminMappingsHandler
	Clinics  *handlers.AdminClinicsHandler

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP rate limit for the public webhook. Zero disables limiting.
	WebhookRate  float64
	WebhookBurst int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health", health)
	r.Get("/healthz", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Group(func(public chi.Router) {
			if cfg.WebhookRate > 0 {
				public.Use(httpmiddleware.RateLimit(cfg.WebhookRate, cfg.WebhookBurst))
			}
			public.Post("/webhook", cfg.Webhook.HandleLegacyWebhook)
			public.Post("/webhook/{webhookID}", cfg.Webhook.HandleWebhook)
		})
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.Curation != nil {
			admin.Route("/conversations", func(rr chi.Router) {
				rr.Get("/pending", cfg.Curation.ListPending)
				rr.Post("/sweep", cfg.Curation.Sweep)
				rr.Get("/{sessionID}", cfg.Curation.GetDetail)
				rr.Post("/{sessionID}/approve", cfg.Curation.Approve)
				rr.Post("/{sessionID}/reject", cfg.Curation.Reject)
			})
		}
		if cfg.Mappings != nil {
			admin.Route("/webhooks/{webhookID}", func(rr chi.Router) {
				rr.Get("/", cfg.Mappings.Get)
				rr.Put("/", cfg.Mappings.Upsert)
				rr.Delete("/", cfg.Mappings.Deactivate)
			})
		}
		if cfg.Clinics != nil {
			admin.Route("/clinics/{tenantID}/{clinicID}", func(rr chi.Router) {
				rr.Get("/", cfg.Clinics.Get)
				rr.Put("/", cfg.Clinics.Put)
			})
		}
	})

	return r
}
