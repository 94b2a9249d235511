package janeapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/clinic-concierge/internal/booking"
	"github.com/careloop/clinic-concierge/internal/clinic"
)

func fakeJane(t *testing.T, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/locations", auth(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"locations": []map[string]interface{}{
				{"id": json.Number("11"), "name": "Main Street Clinic"},
			},
		})
	}))
	mux.HandleFunc("/locations/11/treatments", auth(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"treatments": []map[string]interface{}{
				{"id": json.Number("21"), "name": "Massage Therapy", "duration_minutes": 60},
			},
		})
	}))
	mux.HandleFunc("/locations/11/openings", auth(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "21", r.URL.Query().Get("treatment_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"openings": []map[string]interface{}{
				{"start_at": "2026-09-03T09:00:00Z", "end_at": "2026-09-03T10:00:00Z", "staff_member_id": json.Number("31")},
			},
		})
	}))
	mux.HandleFunc("/appointments", auth(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":              json.Number("41"),
			"start_at":        req["start_at"],
			"end_at":          "2026-09-03T10:00:00Z",
			"staff_member_id": json.Number("31"),
			"state":           "booked",
		})
	}))
	mux.HandleFunc("/appointments/41", auth(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPatch:
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":       json.Number("41"),
				"start_at": req["start_at"],
				"end_at":   "2026-09-04T12:00:00Z",
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	mux.HandleFunc("/patients", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if r.URL.Query().Get("email") == "known@example.com" {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"patients": []map[string]interface{}{
						{"id": json.Number("51"), "first_name": "Lee", "last_name": "Park", "email": "known@example.com"},
					},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"patients": []interface{}{}})
			return
		}
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         json.Number("52"),
			"first_name": req["first_name"],
			"last_name":  req["last_name"],
			"email":      req["email"],
		})
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func buildAdapter(t *testing.T) booking.Adapter {
	t.Helper()
	srv := fakeJane(t, "jane-token")
	builder := NewBuilder(BuilderOptions{BaseURL: srv.URL})
	adapter, err := builder(context.Background(), &clinic.Config{
		TenantID:      "tenant-1",
		ClinicID:      "clinic-9",
		BookingSystem: clinic.SystemJaneApp,
		Credentials:   clinic.Credentials{APIKey: "jane-token"},
	})
	require.NoError(t, err)
	return adapter
}

func TestBuilderVerifiesToken(t *testing.T) {
	adapter := buildAdapter(t)
	assert.Equal(t, "janeapp", adapter.Name())
	assert.False(t, adapter.FallbackMode())
}

func TestBuilderRejectsBadToken(t *testing.T) {
	srv := fakeJane(t, "jane-token")
	builder := NewBuilder(BuilderOptions{BaseURL: srv.URL})
	_, err := builder(context.Background(), &clinic.Config{
		BookingSystem: clinic.SystemJaneApp,
		Credentials:   clinic.Credentials{APIKey: "wrong-token"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connectivity check failed")
}

func TestAvailabilityAndBooking(t *testing.T) {
	adapter := buildAdapter(t)
	ctx := context.Background()

	slots, err := adapter.CheckAvailability(ctx, booking.AvailabilityQuery{
		ServiceName: "massage",
		From:        time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "31", slots[0].PractitionerID)

	appt, err := adapter.BookAppointment(ctx, booking.BookingRequest{
		PatientID:   "51",
		ServiceName: "Massage Therapy",
		StartsAt:    slots[0].StartsAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "41", appt.ID)

	moved, err := adapter.RescheduleAppointment(ctx, "41", time.Date(2026, 9, 4, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 4, 11, 0, 0, 0, time.UTC), moved.StartsAt)

	require.NoError(t, adapter.CancelAppointment(ctx, "41"))
}

func TestFindOrCreatePatient(t *testing.T) {
	adapter := buildAdapter(t)
	ctx := context.Background()

	existing, err := adapter.FindOrCreatePatient(ctx, booking.PatientLookup{Email: "known@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "51", existing.ID)
	assert.False(t, existing.Created)

	created, err := adapter.FindOrCreatePatient(ctx, booking.PatientLookup{
		FirstName: "Noor", LastName: "Ali", Email: "new@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "52", created.ID)
	assert.True(t, created.Created)
}
