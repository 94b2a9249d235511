package bootstrap

import (
	"context"

	"github.com/careloop/clinic-concierge/internal/booking"
	"github.com/careloop/clinic-concierge/internal/clinic"
	"github.com/careloop/clinic-concierge/internal/cliniko"
	appconfig "github.com/careloop/clinic-concierge/internal/config"
	"github.com/careloop/clinic-concierge/internal/janeapp"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

// BuildClinicCache wraps the clinic store in a TTL cache. When the store is
// unavailable the cache is fed by placeholders so chat stays up.
func BuildClinicCache(store *clinic.Store, cfg *appconfig.Config, logger *logging.Logger) *clinic.Cache {
	var source interface {
		Get(ctx context.Context, tenantID, clinicID string) (*clinic.Config, error)
	}
	if store != nil {
		source = store
	} else {
		source = placeholderConfigs{}
	}
	return clinic.NewCache(source, cfg.ConfigCacheTTL, logger)
}

// placeholderConfigs serves default configs when no Redis store is wired.
type placeholderConfigs struct{}

func (placeholderConfigs) Get(_ context.Context, tenantID, clinicID string) (*clinic.Config, error) {
	return clinic.DefaultConfig(tenantID, clinicID), nil
}

// BuildBookingFactory registers the provider builders and links config
// invalidation so credential changes evict cached adapters.
func BuildBookingFactory(cfg *appconfig.Config, store *clinic.Store, cache *clinic.Cache, logger *logging.Logger) *booking.Factory {
	factory := booking.NewFactory(cfg.AdapterCacheTTL, logger)

	clinikoOpts := cliniko.BuilderOptions{
		Shards:       cfg.ClinikoShards,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
	}
	if store != nil {
		clinikoOpts.RegionSaver = store
	}
	factory.Register(clinic.SystemCliniko, cliniko.NewBuilder(clinikoOpts))

	factory.Register(clinic.SystemJaneApp, janeapp.NewBuilder(janeapp.BuilderOptions{
		BaseURL:      cfg.JaneAppBaseURL,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
	}))

	if cache != nil {
		cache.OnInvalidate(factory.Invalidate)
	}
	return factory
}
