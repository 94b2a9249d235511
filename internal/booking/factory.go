package booking

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/careloop/clinic-concierge/internal/clinic"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

// Builder constructs an adapter for one booking system. Builders may probe
// the external system for connectivity and region discovery; a builder error
// means the system is unreachable and the factory degrades to the mock.
type Builder func(ctx context.Context, cfg *clinic.Config) (Adapter, error)

type factoryEntry struct {
	adapter  Adapter
	cachedAt time.Time
}

// Factory binds clinics to booking adapters. Successfully built adapters are
// cached per clinic with a TTL; concurrent first-callers for the same clinic
// share one in-flight build via singleflight so the discovery probe runs once.
type Factory struct {
	builders map[string]Builder
	ttl      time.Duration
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]factoryEntry
	sf      singleflight.Group
}

func NewFactory(ttl time.Duration, logger *logging.Logger) *Factory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Factory{
		builders: make(map[string]Builder),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]factoryEntry),
	}
}

// Register installs the builder for a booking system name.
func (f *Factory) Register(system string, builder Builder) {
	f.builders[system] = builder
}

func (f *Factory) cacheKey(cfg *clinic.Config) string {
	return cfg.TenantID + "/" + cfg.ClinicID
}

// GetAdapter returns the adapter bound to the clinic, building it on first
// use. Build failures and missing credentials both degrade to the mock
// adapter; GetAdapter never returns an error to the caller.
func (f *Factory) GetAdapter(ctx context.Context, cfg *clinic.Config) Adapter {
	key := f.cacheKey(cfg)

	f.mu.RLock()
	entry, ok := f.entries[key]
	f.mu.RUnlock()
	if ok && f.now().Sub(entry.cachedAt) < f.ttl {
		return entry.adapter
	}

	result, _, _ := f.sf.Do(key, func() (interface{}, error) {
		// Re-check under singleflight: a concurrent caller may have stored.
		f.mu.RLock()
		entry, ok := f.entries[key]
		f.mu.RUnlock()
		if ok && f.now().Sub(entry.cachedAt) < f.ttl {
			return entry.adapter, nil
		}

		adapter := f.build(ctx, cfg)
		f.mu.Lock()
		f.entries[key] = factoryEntry{adapter: adapter, cachedAt: f.now()}
		f.mu.Unlock()
		return adapter, nil
	})
	return result.(Adapter)
}

func (f *Factory) build(ctx context.Context, cfg *clinic.Config) Adapter {
	system := cfg.System()
	if system == clinic.SystemMock || !cfg.HasCredentials() {
		return NewMockAdapter()
	}

	builder, ok := f.builders[system]
	if !ok {
		f.logger.WarnContext(ctx, "no builder registered for booking system, using mock",
			"system", system, "tenant_id", cfg.TenantID, "clinic_id", cfg.ClinicID)
		return NewMockAdapter()
	}

	adapter, err := builder(ctx, cfg)
	if err != nil {
		f.logger.ErrorContext(ctx, "booking adapter build failed, degrading to mock",
			"system", system, "tenant_id", cfg.TenantID, "clinic_id", cfg.ClinicID, "error", err)
		return NewMockAdapter()
	}
	return adapter
}

// Invalidate drops the cached adapter for a clinic. Called when credentials
// change so the next turn rebuilds against the new config.
func (f *Factory) Invalidate(tenantID, clinicID string) {
	f.mu.Lock()
	delete(f.entries, tenantID+"/"+clinicID)
	f.mu.Unlock()
}
