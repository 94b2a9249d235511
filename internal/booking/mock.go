package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockAdapter performs no network I/O. It serves unconfigured clinics and
// total-outage degradation: responses look plausible but never touch a real
// booking system, and FallbackMode marks them as such.
type MockAdapter struct {
	now func() time.Time
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{now: time.Now}
}

func (a *MockAdapter) Name() string       { return "mock" }
func (a *MockAdapter) FallbackMode() bool { return true }

// CheckAvailability returns synthetic morning and afternoon slots for each
// weekday in the query range.
func (a *MockAdapter) CheckAvailability(_ context.Context, q AvailabilityQuery) ([]Slot, error) {
	from, to := q.From, q.To
	if from.IsZero() {
		from = a.now()
	}
	if to.IsZero() || !to.After(from) {
		to = from.AddDate(0, 0, 7)
	}

	var slots []Slot
	for day := from.Truncate(24 * time.Hour); day.Before(to); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		for _, hour := range []int{10, 14} {
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
			if start.Before(from) {
				continue
			}
			slots = append(slots, Slot{
				StartsAt: start,
				EndsAt:   start.Add(30 * time.Minute),
			})
		}
	}
	return slots, nil
}

func (a *MockAdapter) BookAppointment(_ context.Context, req BookingRequest) (*Appointment, error) {
	return &Appointment{
		ID:          fmt.Sprintf("mock-%s", uuid.NewString()),
		PatientID:   req.PatientID,
		ServiceName: req.ServiceName,
		StartsAt:    req.StartsAt,
		EndsAt:      req.StartsAt.Add(30 * time.Minute),
		Status:      "unconfirmed",
	}, nil
}

func (a *MockAdapter) CancelAppointment(_ context.Context, _ string) error {
	return nil
}

func (a *MockAdapter) RescheduleAppointment(_ context.Context, appointmentID string, newStart time.Time) (*Appointment, error) {
	return &Appointment{
		ID:       appointmentID,
		StartsAt: newStart,
		EndsAt:   newStart.Add(30 * time.Minute),
		Status:   "unconfirmed",
	}, nil
}

func (a *MockAdapter) FindOrCreatePatient(_ context.Context, lookup PatientLookup) (*Patient, error) {
	return &Patient{
		ID:        fmt.Sprintf("mock-%s", uuid.NewString()),
		FirstName: lookup.FirstName,
		LastName:  lookup.LastName,
		Phone:     lookup.Phone,
		Email:     lookup.Email,
		Created:   true,
	}, nil
}
