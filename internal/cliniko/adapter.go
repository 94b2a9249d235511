package cliniko

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/careloop/clinic-concierge/internal/booking"
	"github.com/careloop/clinic-concierge/internal/clinic"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

// Adapter binds a clinic to the Cliniko API.
type Adapter struct {
	client         *Client
	businessID     string
	practitionerID string
	logger         *logging.Logger

	mu    sync.Mutex
	types map[string]AppointmentType // keyed by lowercase name
}

func (a *Adapter) Name() string       { return clinic.SystemCliniko }
func (a *Adapter) FallbackMode() bool { return false }

// resolveAppointmentType matches a service name against the practitioner's
// appointment types, case-insensitively, with substring fallback.
func (a *Adapter) resolveAppointmentType(ctx context.Context, serviceName string) (AppointmentType, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.types == nil {
		listed, err := a.client.ListAppointmentTypes(ctx, a.businessID, a.practitionerID)
		if err != nil {
			return AppointmentType{}, err
		}
		a.types = make(map[string]AppointmentType, len(listed))
		for _, t := range listed {
			a.types[strings.ToLower(t.Name)] = t
		}
	}

	key := strings.ToLower(strings.TrimSpace(serviceName))
	if t, ok := a.types[key]; ok {
		return t, nil
	}
	for name, t := range a.types {
		if strings.Contains(name, key) || strings.Contains(key, name) {
			return t, nil
		}
	}
	return AppointmentType{}, fmt.Errorf("cliniko: no appointment type matches service %q", serviceName)
}

func (a *Adapter) CheckAvailability(ctx context.Context, q booking.AvailabilityQuery) ([]booking.Slot, error) {
	apptType, err := a.resolveAppointmentType(ctx, q.ServiceName)
	if err != nil {
		return nil, err
	}
	practitionerID := q.PractitionerID
	if practitionerID == "" {
		practitionerID = a.practitionerID
	}

	times, err := a.client.AvailableTimes(ctx, a.businessID, practitionerID, apptType.ID.String(), q.From, q.To)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(apptType.DurationInMinutes) * time.Minute
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	slots := make([]booking.Slot, 0, len(times))
	for _, t := range times {
		slots = append(slots, booking.Slot{
			StartsAt:       t.AppointmentStart,
			EndsAt:         t.AppointmentStart.Add(duration),
			PractitionerID: practitionerID,
			ServiceID:      apptType.ID.String(),
		})
	}
	return slots, nil
}

func (a *Adapter) BookAppointment(ctx context.Context, req booking.BookingRequest) (*booking.Appointment, error) {
	apptType, err := a.resolveAppointmentType(ctx, req.ServiceName)
	if err != nil {
		return nil, err
	}
	practitionerID := req.PractitionerID
	if practitionerID == "" {
		practitionerID = a.practitionerID
	}

	created, err := a.client.CreateAppointment(ctx, a.businessID, practitionerID, apptType.ID.String(), req.PatientID, req.StartsAt)
	if err != nil {
		return nil, err
	}
	return &booking.Appointment{
		ID:             created.ID.String(),
		PatientID:      req.PatientID,
		ServiceName:    apptType.Name,
		PractitionerID: practitionerID,
		StartsAt:       created.AppointmentStart,
		EndsAt:         created.AppointmentEnd,
		Status:         "booked",
	}, nil
}

func (a *Adapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	return a.client.CancelAppointment(ctx, appointmentID)
}

func (a *Adapter) RescheduleAppointment(ctx context.Context, appointmentID string, newStart time.Time) (*booking.Appointment, error) {
	updated, err := a.client.UpdateAppointmentStart(ctx, appointmentID, newStart)
	if err != nil {
		return nil, err
	}
	return &booking.Appointment{
		ID:       updated.ID.String(),
		StartsAt: updated.AppointmentStart,
		EndsAt:   updated.AppointmentEnd,
		Status:   "booked",
	}, nil
}

func (a *Adapter) FindOrCreatePatient(ctx context.Context, lookup booking.PatientLookup) (*booking.Patient, error) {
	if lookup.Email != "" {
		found, err := a.client.FindPatientByEmail(ctx, lookup.Email)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return &booking.Patient{
				ID:        found.ID.String(),
				FirstName: found.FirstName,
				LastName:  found.LastName,
				Email:     found.Email,
			}, nil
		}
	}

	created, err := a.client.CreatePatient(ctx, lookup.FirstName, lookup.LastName, lookup.Email, lookup.Phone)
	if err != nil {
		return nil, err
	}
	return &booking.Patient{
		ID:        created.ID.String(),
		FirstName: created.FirstName,
		LastName:  created.LastName,
		Email:     created.Email,
		Created:   true,
	}, nil
}

// RegionSaver persists a discovered shard so later builds skip the probe.
type RegionSaver interface {
	SetRegion(ctx context.Context, tenantID, clinicID, region string) error
}

// BuilderOptions configures the adapter builder.
type BuilderOptions struct {
	Shards       []string
	ProbeTimeout time.Duration
	HTTPClient   *http.Client
	RegionSaver  RegionSaver
	Logger       *logging.Logger
	// BaseURLFor overrides shard URL construction, for tests.
	BaseURLFor func(shard string) string
}

// NewBuilder returns a booking.Builder that probes for the clinic's shard
// when it is unknown and binds the adapter to the clinic's business.
func NewBuilder(opts BuilderOptions) booking.Builder {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	baseURLFor := opts.BaseURLFor
	if baseURLFor == nil {
		baseURLFor = ShardBaseURL
	}

	return func(ctx context.Context, cfg *clinic.Config) (booking.Adapter, error) {
		region := cfg.Credentials.Region
		if region == "" {
			discovered, err := discoverWith(ctx, cfg.Credentials.APIKey, opts.Shards, opts.ProbeTimeout, opts.HTTPClient, baseURLFor, logger)
			if err != nil {
				return nil, err
			}
			region = discovered
			if opts.RegionSaver != nil {
				if err := opts.RegionSaver.SetRegion(ctx, cfg.TenantID, cfg.ClinicID, region); err != nil {
					logger.WarnContext(ctx, "failed to persist discovered cliniko region",
						"tenant_id", cfg.TenantID, "clinic_id", cfg.ClinicID, "error", err)
				}
			}
		}

		client := NewClient(cfg.Credentials.APIKey, baseURLFor(region), opts.HTTPClient)

		businessID := cfg.Credentials.BusinessID
		if businessID == "" {
			businesses, err := client.ListBusinesses(ctx)
			if err != nil {
				return nil, err
			}
			if len(businesses) == 0 {
				return nil, fmt.Errorf("cliniko: account has no businesses")
			}
			if len(businesses) > 1 {
				return nil, fmt.Errorf("cliniko: account has %d businesses, business_id must be configured", len(businesses))
			}
			businessID = businesses[0].ID.String()
		}

		practitionerID := cfg.Credentials.DefaultPractitionerID
		if practitionerID == "" {
			practitioners, err := client.ListPractitioners(ctx, businessID)
			if err != nil {
				return nil, err
			}
			if len(practitioners) == 0 {
				return nil, fmt.Errorf("cliniko: business %s has no practitioners", businessID)
			}
			practitionerID = practitioners[0].ID.String()
		}

		return &Adapter{
			client:         client,
			businessID:     businessID,
			practitionerID: practitionerID,
			logger:         logger,
		}, nil
	}
}

func discoverWith(ctx context.Context, apiKey string, shards []string, perAttempt time.Duration, httpc *http.Client, baseURLFor func(string) string, logger *logging.Logger) (string, error) {
	if perAttempt <= 0 {
		perAttempt = 10 * time.Second
	}
	var lastErr error
	for _, shard := range shards {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
		client := NewClient(apiKey, baseURLFor(shard), httpc)
		_, err := client.ListBusinesses(attemptCtx)
		cancel()
		if err == nil {
			logger.InfoContext(ctx, "cliniko region discovered", "shard", shard)
			return shard, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("cliniko: region discovery aborted: %w", ctx.Err())
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no shards configured")
	}
	return "", fmt.Errorf("cliniko: no shard accepted the API key: %w", lastErr)
}
