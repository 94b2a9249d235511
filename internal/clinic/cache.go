package clinic

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/careloop/clinic-concierge/pkg/logging"
)

// configSource is the narrow surface the cache needs from Store.
type configSource interface {
	Get(ctx context.Context, tenantID, clinicID string) (*Config, error)
}

type cacheEntry struct {
	cfg       *Config
	fetchedAt time.Time
}

// Cache fronts the config store with a TTL. On a store outage it serves the
// last known config past its TTL rather than failing the conversation; with
// nothing cached it falls back to the placeholder default.
type Cache struct {
	source configSource
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry

	// onInvalidate is notified when a clinic's config is evicted, so
	// dependent caches (booking adapters) can drop their entries too.
	onInvalidate []func(tenantID, clinicID string)
}

func NewCache(source configSource, ttl time.Duration, logger *logging.Logger) *Cache {
	if source == nil {
		panic("clinic: config source is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// OnInvalidate registers a hook called whenever Invalidate evicts a clinic.
func (c *Cache) OnInvalidate(fn func(tenantID, clinicID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onInvalidate = append(c.onInvalidate, fn)
}

func (c *Cache) cacheKey(tenantID, clinicID string) string {
	return tenantID + "/" + clinicID
}

// Get returns the clinic config, from cache when fresh.
func (c *Cache) Get(ctx context.Context, tenantID, clinicID string) (*Config, error) {
	key := c.cacheKey(tenantID, clinicID)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.cfg, nil
	}

	cfg, err := c.source.Get(ctx, tenantID, clinicID)
	if err != nil {
		// "No such clinic" from a healthy store is not an outage; pass it
		// through and drop any entry from before the clinic was removed.
		if errors.Is(err, ErrClinicNotFound) {
			if ok {
				c.mu.Lock()
				delete(c.entries, key)
				c.mu.Unlock()
			}
			return nil, err
		}
		if ok {
			c.logger.WarnContext(ctx, "config store unavailable, serving stale config",
				"tenant_id", tenantID, "clinic_id", clinicID, "error", err)
			return entry.cfg, nil
		}
		c.logger.ErrorContext(ctx, "config store unavailable, serving placeholder config",
			"tenant_id", tenantID, "clinic_id", clinicID, "error", err)
		return DefaultConfig(tenantID, clinicID), nil
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{cfg: cfg, fetchedAt: c.now()}
	c.mu.Unlock()
	return cfg, nil
}

// Invalidate evicts a clinic's cached config and notifies hooks.
func (c *Cache) Invalidate(tenantID, clinicID string) {
	key := c.cacheKey(tenantID, clinicID)

	c.mu.Lock()
	delete(c.entries, key)
	hooks := make([]func(string, string), len(c.onInvalidate))
	copy(hooks, c.onInvalidate)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(tenantID, clinicID)
	}
}
