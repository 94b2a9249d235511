package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/clinic-concierge/internal/clinic"
)

type stubAdapter struct {
	MockAdapter
	name string
}

func (a *stubAdapter) Name() string       { return a.name }
func (a *stubAdapter) FallbackMode() bool { return false }

func clinikoConfig() *clinic.Config {
	return &clinic.Config{
		TenantID:      "tenant-1",
		ClinicID:      "clinic-9",
		BookingSystem: clinic.SystemCliniko,
		Credentials:   clinic.Credentials{APIKey: "key"},
	}
}

func TestGetAdapterBuildsAndCaches(t *testing.T) {
	f := NewFactory(time.Minute, nil)
	var builds int32
	f.Register(clinic.SystemCliniko, func(context.Context, *clinic.Config) (Adapter, error) {
		atomic.AddInt32(&builds, 1)
		return &stubAdapter{name: "cliniko"}, nil
	})

	cfg := clinikoConfig()
	a1 := f.GetAdapter(context.Background(), cfg)
	a2 := f.GetAdapter(context.Background(), cfg)

	assert.Equal(t, "cliniko", a1.Name())
	assert.Same(t, a1, a2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestGetAdapterDegradesToMockOnBuildFailure(t *testing.T) {
	f := NewFactory(time.Minute, nil)
	f.Register(clinic.SystemCliniko, func(context.Context, *clinic.Config) (Adapter, error) {
		return nil, errors.New("all regions unreachable")
	})

	a := f.GetAdapter(context.Background(), clinikoConfig())
	assert.Equal(t, "mock", a.Name())
	assert.True(t, a.FallbackMode())
}

func TestGetAdapterMockForMissingCredentials(t *testing.T) {
	f := NewFactory(time.Minute, nil)
	f.Register(clinic.SystemCliniko, func(context.Context, *clinic.Config) (Adapter, error) {
		t.Fatal("builder must not run without credentials")
		return nil, nil
	})

	cfg := clinikoConfig()
	cfg.Credentials.APIKey = ""
	a := f.GetAdapter(context.Background(), cfg)
	assert.True(t, a.FallbackMode())
}

func TestGetAdapterDeduplicatesConcurrentBuilds(t *testing.T) {
	f := NewFactory(time.Minute, nil)
	var builds int32
	release := make(chan struct{})
	f.Register(clinic.SystemCliniko, func(context.Context, *clinic.Config) (Adapter, error) {
		atomic.AddInt32(&builds, 1)
		<-release
		return &stubAdapter{name: "cliniko"}, nil
	})

	cfg := clinikoConfig()
	var wg sync.WaitGroup
	adapters := make([]Adapter, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			adapters[i] = f.GetAdapter(context.Background(), cfg)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	for _, a := range adapters {
		assert.Same(t, adapters[0], a)
	}
}

func TestGetAdapterRebuildsAfterTTL(t *testing.T) {
	f := NewFactory(time.Minute, nil)
	current := time.Now()
	f.now = func() time.Time { return current }

	var builds int32
	f.Register(clinic.SystemCliniko, func(context.Context, *clinic.Config) (Adapter, error) {
		atomic.AddInt32(&builds, 1)
		return &stubAdapter{name: "cliniko"}, nil
	})

	cfg := clinikoConfig()
	f.GetAdapter(context.Background(), cfg)
	current = current.Add(2 * time.Minute)
	f.GetAdapter(context.Background(), cfg)

	assert.Equal(t, int32(2), atomic.LoadInt32(&builds))
}

func TestInvalidateForcesRebuild(t *testing.T) {
	f := NewFactory(time.Minute, nil)
	var builds int32
	f.Register(clinic.SystemCliniko, func(context.Context, *clinic.Config) (Adapter, error) {
		atomic.AddInt32(&builds, 1)
		return &stubAdapter{name: "cliniko"}, nil
	})

	cfg := clinikoConfig()
	f.GetAdapter(context.Background(), cfg)
	f.Invalidate("tenant-1", "clinic-9")
	f.GetAdapter(context.Background(), cfg)

	assert.Equal(t, int32(2), atomic.LoadInt32(&builds))
}

func TestMockAdapterAvailabilitySkipsWeekends(t *testing.T) {
	a := NewMockAdapter()
	// Monday through Sunday.
	from := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	slots, err := a.CheckAvailability(context.Background(), AvailabilityQuery{From: from, To: from.AddDate(0, 0, 7)})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.NotEqual(t, time.Saturday, s.StartsAt.Weekday())
		assert.NotEqual(t, time.Sunday, s.StartsAt.Weekday())
	}
}

func TestMockAdapterBookingIsTagged(t *testing.T) {
	a := NewMockAdapter()
	appt, err := a.BookAppointment(context.Background(), BookingRequest{
		PatientID:   "p1",
		ServiceName: "Physiotherapy",
		StartsAt:    time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "unconfirmed", appt.Status)
	assert.Contains(t, appt.ID, "mock-")
	assert.True(t, a.FallbackMode())
}
