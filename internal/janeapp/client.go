// Package janeapp implements a Jane App REST client and booking adapter.
// Unlike Cliniko there are no regional shards: one bearer-token API host
// serves all accounts, so building the adapter needs a single connectivity
// check rather than a discovery probe.
package janeapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultBaseURL = "https://api.janeapp.com/v2"

// Client is a Jane App REST API client.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewClient(token, baseURL string, httpc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, httpc: httpc}
}

// APIError is a non-2xx response from Jane App.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("janeapp: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("janeapp: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("janeapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("janeapp: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("janeapp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("janeapp: decode response: %w", err)
		}
	}
	return nil
}

// Location is a clinic location within a Jane account.
type Location struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// ListLocations doubles as the connectivity check for the bearer token.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var out struct {
		Locations []Location `json:"locations"`
	}
	if err := c.do(ctx, http.MethodGet, "/locations", nil, &out); err != nil {
		return nil, err
	}
	return out.Locations, nil
}

// Treatment is a bookable service.
type Treatment struct {
	ID              json.Number `json:"id"`
	Name            string      `json:"name"`
	DurationMinutes int         `json:"duration_minutes"`
}

func (c *Client) ListTreatments(ctx context.Context, locationID string) ([]Treatment, error) {
	var out struct {
		Treatments []Treatment `json:"treatments"`
	}
	path := "/locations/" + locationID + "/treatments"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Treatments, nil
}

// Opening is a bookable slot.
type Opening struct {
	StartAt       time.Time   `json:"start_at"`
	EndAt         time.Time   `json:"end_at"`
	StaffMemberID json.Number `json:"staff_member_id"`
}

func (c *Client) ListOpenings(ctx context.Context, locationID, treatmentID, staffMemberID string, from, to time.Time) ([]Opening, error) {
	q := url.Values{}
	q.Set("treatment_id", treatmentID)
	q.Set("start_date", from.Format("2006-01-02"))
	q.Set("end_date", to.Format("2006-01-02"))
	if staffMemberID != "" {
		q.Set("staff_member_id", staffMemberID)
	}
	var out struct {
		Openings []Opening `json:"openings"`
	}
	path := "/locations/" + locationID + "/openings?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Openings, nil
}

// AppointmentRecord is a booked Jane appointment.
type AppointmentRecord struct {
	ID            json.Number `json:"id"`
	StartAt       time.Time   `json:"start_at"`
	EndAt         time.Time   `json:"end_at"`
	StaffMemberID json.Number `json:"staff_member_id"`
	State         string      `json:"state"`
}

type createAppointmentRequest struct {
	PatientID     string `json:"patient_id"`
	TreatmentID   string `json:"treatment_id"`
	LocationID    string `json:"location_id"`
	StaffMemberID string `json:"staff_member_id,omitempty"`
	StartAt       string `json:"start_at"`
}

func (c *Client) CreateAppointment(ctx context.Context, locationID, treatmentID, staffMemberID, patientID string, start time.Time) (*AppointmentRecord, error) {
	req := createAppointmentRequest{
		PatientID:     patientID,
		TreatmentID:   treatmentID,
		LocationID:    locationID,
		StaffMemberID: staffMemberID,
		StartAt:       start.UTC().Format(time.RFC3339),
	}
	var out AppointmentRecord
	if err := c.do(ctx, http.MethodPost, "/appointments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelAppointment(ctx context.Context, appointmentID string) error {
	return c.do(ctx, http.MethodDelete, "/appointments/"+appointmentID, nil, nil)
}

func (c *Client) UpdateAppointmentStart(ctx context.Context, appointmentID string, newStart time.Time) (*AppointmentRecord, error) {
	body := map[string]string{"start_at": newStart.UTC().Format(time.RFC3339)}
	var out AppointmentRecord
	if err := c.do(ctx, http.MethodPatch, "/appointments/"+appointmentID, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatientRecord is a Jane patient.
type PatientRecord struct {
	ID        json.Number `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
}

func (c *Client) SearchPatients(ctx context.Context, email string) ([]PatientRecord, error) {
	var out struct {
		Patients []PatientRecord `json:"patients"`
	}
	path := "/patients?" + url.Values{"email": {email}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Patients, nil
}

func (c *Client) CreatePatient(ctx context.Context, firstName, lastName, email, phone string) (*PatientRecord, error) {
	req := map[string]string{
		"first_name": firstName,
		"last_name":  lastName,
	}
	if email != "" {
		req["email"] = email
	}
	if phone != "" {
		req["phone"] = phone
	}
	var out PatientRecord
	if err := c.do(ctx, http.MethodPost, "/patients", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
