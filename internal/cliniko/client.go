// Package cliniko implements a minimal Cliniko REST API client and the
// booking adapter built on it. Cliniko accounts live on regional shards
// (uk2, au1, ...); when a clinic's shard is unknown it is discovered by
// probing GET /businesses across the configured shard order.
package cliniko

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const userAgent = "clinic-concierge/1.0"

// ShardBaseURL returns the API base URL for a regional shard.
func ShardBaseURL(shard string) string {
	return fmt.Sprintf("https://api.%s.cliniko.com/v1", shard)
}

// Client is a Cliniko REST API client bound to one shard.
type Client struct {
	baseURL string
	auth    string
	httpc   *http.Client
}

// NewClient creates a client for the given API key and base URL. Cliniko
// basic auth is base64(api_key + ":").
func NewClient(apiKey, baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":")),
		httpc:   httpc,
	}
}

// APIError is a non-2xx response from Cliniko.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cliniko: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cliniko: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("cliniko: build request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("cliniko: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cliniko: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("cliniko: decode response: %w", err)
		}
	}
	return nil
}

// Business is a location within a Cliniko account.
type Business struct {
	ID           json.Number `json:"id"`
	BusinessName string      `json:"business_name"`
	TimeZone     string      `json:"time_zone"`
}

// ListBusinesses is also the connectivity probe: a 200 proves the API key
// belongs to this shard.
func (c *Client) ListBusinesses(ctx context.Context) ([]Business, error) {
	var out struct {
		Businesses []Business `json:"businesses"`
	}
	if err := c.do(ctx, http.MethodGet, "/businesses", nil, &out); err != nil {
		return nil, err
	}
	return out.Businesses, nil
}

// Practitioner is a bookable provider.
type Practitioner struct {
	ID        json.Number `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
}

func (c *Client) ListPractitioners(ctx context.Context, businessID string) ([]Practitioner, error) {
	var out struct {
		Practitioners []Practitioner `json:"practitioners"`
	}
	path := fmt.Sprintf("/businesses/%s/practitioners", businessID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Practitioners, nil
}

// AppointmentType is a bookable service.
type AppointmentType struct {
	ID                json.Number `json:"id"`
	Name              string      `json:"name"`
	DurationInMinutes int         `json:"duration_in_minutes"`
}

func (c *Client) ListAppointmentTypes(ctx context.Context, businessID, practitionerID string) ([]AppointmentType, error) {
	var out struct {
		AppointmentTypes []AppointmentType `json:"appointment_types"`
	}
	path := fmt.Sprintf("/businesses/%s/practitioners/%s/appointment_types", businessID, practitionerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.AppointmentTypes, nil
}

// AvailableTime is one open slot returned by the available_times endpoint.
type AvailableTime struct {
	AppointmentStart time.Time `json:"appointment_start"`
}

// AvailableTimes lists open slots; from/to are inclusive dates (YYYY-MM-DD).
func (c *Client) AvailableTimes(ctx context.Context, businessID, practitionerID, appointmentTypeID string, from, to time.Time) ([]AvailableTime, error) {
	var out struct {
		AvailableTimes []AvailableTime `json:"available_times"`
	}
	path := fmt.Sprintf("/businesses/%s/practitioners/%s/appointment_types/%s/available_times?from=%s&to=%s",
		businessID, practitionerID, appointmentTypeID,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.AvailableTimes, nil
}

// Appointment is an individual (non-group) appointment.
type Appointment struct {
	ID               json.Number `json:"id"`
	AppointmentStart time.Time   `json:"appointment_start"`
	AppointmentEnd   time.Time   `json:"appointment_end"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty"`
}

type createAppointmentRequest struct {
	AppointmentStart  string `json:"appointment_start"`
	PatientID         string `json:"patient_id"`
	PractitionerID    string `json:"practitioner_id"`
	AppointmentTypeID string `json:"appointment_type_id"`
	BusinessID        string `json:"business_id"`
}

func (c *Client) CreateAppointment(ctx context.Context, businessID, practitionerID, appointmentTypeID, patientID string, start time.Time) (*Appointment, error) {
	req := createAppointmentRequest{
		AppointmentStart:  start.UTC().Format(time.RFC3339),
		PatientID:         patientID,
		PractitionerID:    practitionerID,
		AppointmentTypeID: appointmentTypeID,
		BusinessID:        businessID,
	}
	var out Appointment
	if err := c.do(ctx, http.MethodPost, "/individual_appointments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelAppointment(ctx context.Context, appointmentID string) error {
	path := fmt.Sprintf("/individual_appointments/%s/cancel", appointmentID)
	return c.do(ctx, http.MethodPatch, path, map[string]int{"cancellation_reason": 50}, nil)
}

func (c *Client) UpdateAppointmentStart(ctx context.Context, appointmentID string, newStart time.Time) (*Appointment, error) {
	path := fmt.Sprintf("/individual_appointments/%s", appointmentID)
	body := map[string]string{"appointment_start": newStart.UTC().Format(time.RFC3339)}
	var out Appointment
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatientRecord is a Cliniko patient.
type PatientRecord struct {
	ID        json.Number `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
}

// FindPatientByEmail searches patients by exact email match.
func (c *Client) FindPatientByEmail(ctx context.Context, email string) (*PatientRecord, error) {
	var out struct {
		Patients []PatientRecord `json:"patients"`
	}
	path := "/patients?q%5B%5D=" + url.QueryEscape("email:="+email)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Patients) == 0 {
		return nil, nil
	}
	return &out.Patients[0], nil
}

type createPatientRequest struct {
	FirstName    string               `json:"first_name"`
	LastName     string               `json:"last_name"`
	Email        string               `json:"email,omitempty"`
	PhoneNumbers []patientPhoneNumber `json:"patient_phone_numbers,omitempty"`
}

type patientPhoneNumber struct {
	Number    string `json:"number"`
	PhoneType string `json:"phone_type"`
}

func (c *Client) CreatePatient(ctx context.Context, firstName, lastName, email, phone string) (*PatientRecord, error) {
	req := createPatientRequest{FirstName: firstName, LastName: lastName, Email: email}
	if phone != "" {
		req.PhoneNumbers = []patientPhoneNumber{{Number: phone, PhoneType: "Mobile"}}
	}
	var out PatientRecord
	if err := c.do(ctx, http.MethodPost, "/patients", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
