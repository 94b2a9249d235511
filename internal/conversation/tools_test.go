package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/careloop/clinic-concierge/internal/llm"
)

func TestMissingParamsFlagsAbsentAndBlank(t *testing.T) {
	call := llm.ToolCall{
		Name: toolBookAppointment,
		Arguments: map[string]interface{}{
			"service":   "physio",
			"startsAt":  "  ",
			"firstName": "Sam",
			"phone":     "+44 7700 900123",
		},
	}
	assert.Equal(t, []string{"lastName", "startsAt"}, missingParams(call))
}

func TestMissingParamsBookingRequiresPhone(t *testing.T) {
	call := llm.ToolCall{
		Name: toolBookAppointment,
		Arguments: map[string]interface{}{
			"service":   "physio",
			"startsAt":  "2026-09-01T10:00:00Z",
			"firstName": "Sam",
			"lastName":  "Ng",
		},
	}
	assert.Equal(t, []string{"phone"}, missingParams(call))
}

func TestMissingParamsCompleteCall(t *testing.T) {
	call := llm.ToolCall{
		Name: toolCancel,
		Arguments: map[string]interface{}{
			"appointmentId": "appt-1",
		},
	}
	assert.Empty(t, missingParams(call))
}

func TestMissingParamsUnknownToolHasNone(t *testing.T) {
	assert.Empty(t, missingParams(llm.ToolCall{Name: "something_else"}))
}

func TestParseWindowDefaultsToSevenDays(t *testing.T) {
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	from, to := parseWindow(map[string]interface{}{}, now)
	assert.Equal(t, now, from)
	assert.Equal(t, now.AddDate(0, 0, 7), to)
}

func TestParseWindowHonorsExplicitRange(t *testing.T) {
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	from, to := parseWindow(map[string]interface{}{
		"from": "2026-09-01",
		"to":   "2026-09-03",
	}, now)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC), to)
}

func TestParseWindowIgnoresInvertedRange(t *testing.T) {
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	from, to := parseWindow(map[string]interface{}{
		"from": "2026-09-10",
		"to":   "2026-09-01",
	}, now)
	assert.Equal(t, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, from.AddDate(0, 0, 7), to)
}

func TestParseStartRejectsGarbage(t *testing.T) {
	_, err := parseStart(map[string]interface{}{"startsAt": "tomorrow-ish"}, "startsAt")
	assert.Error(t, err)

	parsed, err := parseStart(map[string]interface{}{"startsAt": "2026-09-01T10:00:00Z"}, "startsAt")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), parsed)
}

func TestIntentFor(t *testing.T) {
	assert.Equal(t, "availability", intentFor(toolCheckAvailability))
	assert.Equal(t, "booking", intentFor(toolBookAppointment))
	assert.Equal(t, "cancellation", intentFor(toolCancel))
	assert.Equal(t, "reschedule", intentFor(toolReschedule))
	assert.Equal(t, "registration", intentFor(toolFindPatient))
	assert.Equal(t, "declined", intentFor(toolDeclineBooking))
	assert.Equal(t, "general", intentFor("weather_report"))
}
