package janeapp

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

// Adapter binds a clinic to the Jane App API.
type Adapter struct {
	client        *Client
	locationID    string
	staffMemberID string
	logger        *logging.Logger

	mu         sync.Mutex
	treatments map[string]Treatment // keyed by lowercase name
}

func (a *Adapter) Name() string       { return clinic.SystemJaneApp }
func (a *Adapter) FallbackMode() bool { return false }

func (a *Adapter) resolveTreatment(ctx context.Context, serviceName string) (Treatment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.treatments == nil {
		listed, err := a.client.ListTreatments(ctx, a.locationID)
		if err != nil {
			return Treatment{}, err
		}
		a.treatments = make(map[string]Treatment, len(listed))
		for _, t := range listed {
			a.treatments[strings.ToLower(t.Name)] = t
		}
	}

	key := strings.ToLower(strings.TrimSpace(serviceName))
	if t, ok := a.treatments[key]; ok {
		return t, nil
	}
	for name, t := range a.treatments {
		if strings.Contains(name, key) || strings.Contains(key, name) {
			return t, nil
		}
	}
	return Treatment{}, fmt.Errorf("janeapp: no treatment matches service %q", serviceName)
}

func (a *Adapter) CheckAvailability(ctx context.Context, q booking.AvailabilityQuery) ([]booking.Slot, error) {
	treatment, err := a.resolveTreatment(ctx, q.ServiceName)
	if err != nil {
		return nil, err
	}
	staffID := q.PractitionerID
	if staffID == "" {
		staffID = a.staffMemberID
	}

	openings, err := a.client.ListOpenings(ctx, a.locationID, treatment.ID.String(), staffID, q.From, q.To)
	if err != nil {
		return nil, err
	}

	slots := make([]booking.Slot, 0, len(openings))
	for _, o := range openings {
		slots = append(slots, booking.Slot{
			StartsAt:       o.StartAt,
			EndsAt:         o.EndAt,
			PractitionerID: o.StaffMemberID.String(),
			ServiceID:      treatment.ID.String(),
		})
	}
	return slots, nil
}

func (a *Adapter) BookAppointment(ctx context.Context, req booking.BookingRequest) (*booking.Appointment, error) {
	treatment, err := a.resolveTreatment(ctx, req.ServiceName)
	if err != nil {
		return nil, err
	}
	staffID := req.PractitionerID
	if staffID == "" {
		staffID = a.staffMemberID
	}

	created, err := a.client.CreateAppointment(ctx, a.locationID, treatment.ID.String(), staffID, req.PatientID, req.StartsAt)
	if err != nil {
		return nil, err
	}
	return &booking.Appointment{
		ID:             created.ID.String(),
		PatientID:      req.PatientID,
		ServiceName:    treatment.Name,
		PractitionerID: created.StaffMemberID.String(),
		StartsAt:       created.StartAt,
		EndsAt:         created.EndAt,
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
		StartsAt: updated.StartAt,
		EndsAt:   updated.EndAt,
		Status:   "booked",
	}, nil
}

func (a *Adapter) FindOrCreatePatient(ctx context.Context, lookup booking.PatientLookup) (*booking.Patient, error) {
	if lookup.Email != "" {
		found, err := a.client.SearchPatients(ctx, lookup.Email)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return &booking.Patient{
				ID:        found[0].ID.String(),
				FirstName: found[0].FirstName,
				LastName:  found[0].LastName,
				Email:     found[0].Email,
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

// BuilderOptions configures the adapter builder.
type BuilderOptions struct {
	BaseURL      string
	ProbeTimeout time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// NewBuilder returns a booking.Builder that verifies the bearer token and
// binds the adapter to the clinic's location.
func NewBuilder(opts BuilderOptions) booking.Builder {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}

	return func(ctx context.Context, cfg *clinic.Config) (booking.Adapter, error) {
		client := NewClient(cfg.Credentials.APIKey, opts.BaseURL, opts.HTTPClient)

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		locations, err := client.ListLocations(probeCtx)
		if err != nil {
			return nil, fmt.Errorf("janeapp: connectivity check failed: %w", err)
		}

		locationID := cfg.Credentials.BusinessID
		if locationID == "" {
			if len(locations) == 0 {
				return nil, fmt.Errorf("janeapp: account has no locations")
			}
			if len(locations) > 1 {
				return nil, fmt.Errorf("janeapp: account has %d locations, business_id must be configured", len(locations))
			}
			locationID = locations[0].ID.String()
		}

		return &Adapter{
			client:        client,
			locationID:    locationID,
			staffMemberID: cfg.Credentials.DefaultPractitionerID,
			logger:        logger,
		}, nil
	}
}
