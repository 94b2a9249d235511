// Package booking provides a unified adapter interface over incompatible
// external booking systems (Cliniko, Jane App) plus a mock used for degraded
// operation and unconfigured clinics.
package booking

import (
	"context"
	"time"
)

// Patient identifies a person in the clinic's booking system.
type Patient struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	// Created is true when FindOrCreatePatient created a new record.
	Created bool `json:"created,omitempty"`
}

// Slot is a bookable appointment time.
type Slot struct {
	StartsAt       time.Time `json:"startsAt"`
	EndsAt         time.Time `json:"endsAt"`
	PractitionerID string    `json:"practitionerId,omitempty"`
	Practitioner   string    `json:"practitioner,omitempty"`
	ServiceID      string    `json:"serviceId,omitempty"`
}

// Appointment is a confirmed booking.
type Appointment struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patientId"`
	ServiceName    string    `json:"serviceName,omitempty"`
	PractitionerID string    `json:"practitionerId,omitempty"`
	StartsAt       time.Time `json:"startsAt"`
	EndsAt         time.Time `json:"endsAt"`
	Status         string    `json:"status"` // "booked", "unconfirmed", "cancelled"
}

// AvailabilityQuery bounds a CheckAvailability call.
type AvailabilityQuery struct {
	ServiceName    string
	PractitionerID string
	From           time.Time
	To             time.Time
}

// BookingRequest carries everything needed to create an appointment.
type BookingRequest struct {
	PatientID      string
	ServiceName    string
	PractitionerID string
	StartsAt       time.Time
}

// PatientLookup carries the identifying fields for FindOrCreatePatient.
type PatientLookup struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

// Adapter is the capability set every booking system binding implements.
// Exactly one concrete adapter is bound per clinic at a time.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "cliniko", "janeapp", "mock").
	Name() string

	// FallbackMode reports whether this adapter performs no real side effects.
	FallbackMode() bool

	CheckAvailability(ctx context.Context, q AvailabilityQuery) ([]Slot, error)
	BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) error
	RescheduleAppointment(ctx context.Context, appointmentID string, newStart time.Time) (*Appointment, error)
	FindOrCreatePatient(ctx context.Context, lookup PatientLookup) (*Patient, error)
}
