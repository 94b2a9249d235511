package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	cfg   *Config
	err   error
	calls int
}

func (s *countingSource) Get(context.Context, string, string) (*Config, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.cfg, nil
}

func TestCacheServesWithinTTL(t *testing.T) {
	src := &countingSource{cfg: &Config{TenantID: "tenant-1", ClinicID: "clinic-9", Name: "Riverside"}}
	cache := NewCache(src, 5*time.Minute, nil)

	for i := 0; i < 3; i++ {
		cfg, err := cache.Get(context.Background(), "tenant-1", "clinic-9")
		require.NoError(t, err)
		assert.Equal(t, "Riverside", cfg.Name)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCacheRefetchesAfterTTL(t *testing.T) {
	src := &countingSource{cfg: &Config{TenantID: "tenant-1", ClinicID: "clinic-9"}}
	cache := NewCache(src, time.Minute, nil)

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCacheServesStaleOnOutage(t *testing.T) {
	src := &countingSource{cfg: &Config{TenantID: "tenant-1", ClinicID: "clinic-9", Name: "Riverside"}}
	cache := NewCache(src, time.Minute, nil)

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)

	src.err = errors.New("redis: connection refused")
	current = current.Add(2 * time.Minute)

	cfg, err := cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)
	assert.Equal(t, "Riverside", cfg.Name)
}

func TestCachePlaceholderWhenNothingCached(t *testing.T) {
	src := &countingSource{err: errors.New("redis: connection refused")}
	cache := NewCache(src, time.Minute, nil)

	cfg, err := cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)
	assert.True(t, cfg.Placeholder)
}

func TestCachePassesThroughNotFound(t *testing.T) {
	src := &countingSource{cfg: &Config{TenantID: "tenant-1", ClinicID: "clinic-9", Name: "Riverside"}}
	cache := NewCache(src, time.Minute, nil)

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)

	// The clinic disappears from the store; the stale entry must not mask it.
	src.err = ErrClinicNotFound
	current = current.Add(2 * time.Minute)

	_, err = cache.Get(context.Background(), "tenant-1", "clinic-9")
	assert.ErrorIs(t, err, ErrClinicNotFound)

	_, err = cache.Get(context.Background(), "tenant-1", "clinic-9")
	assert.ErrorIs(t, err, ErrClinicNotFound, "the evicted entry must not come back")
}

func TestCacheInvalidateNotifiesHooks(t *testing.T) {
	src := &countingSource{cfg: &Config{TenantID: "tenant-1", ClinicID: "clinic-9"}}
	cache := NewCache(src, time.Minute, nil)

	var evicted []string
	cache.OnInvalidate(func(tenantID, clinicID string) {
		evicted = append(evicted, tenantID+"/"+clinicID)
	})

	_, err := cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)

	cache.Invalidate("tenant-1", "clinic-9")
	assert.Equal(t, []string{"tenant-1/clinic-9"}, evicted)

	_, err = cache.Get(context.Background(), "tenant-1", "clinic-9")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
