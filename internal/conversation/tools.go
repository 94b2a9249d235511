package conversation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/careloop/clinic-concierge/internal/llm"
)

// Tool names exposed to the model. One per booking capability, plus an
// explicit decline marker so the engine can settle sessions.
const (
	toolCheckAvailability = "check_availability"
	toolBookAppointment   = "book_appointment"
	toolCancel            = "cancel_appointment"
	toolReschedule        = "reschedule_appointment"
	toolFindPatient       = "find_or_create_patient"
	toolDeclineBooking    = "decline_booking"
)

// bookingTools declares the capability set offered to the model each turn.
func bookingTools() []llm.Tool {
	return []llm.Tool{
		{
			Name:        toolCheckAvailability,
			Description: "Look up open appointment slots for a service. Dates default to the next 7 days when omitted.",
			Parameters: map[string]llm.Property{
				"service":      {Type: "string", Description: "The service the patient wants, e.g. 'physiotherapy'"},
				"practitioner": {Type: "string", Description: "Preferred practitioner id, if the patient named one"},
				"from":         {Type: "string", Description: "Start date, YYYY-MM-DD"},
				"to":           {Type: "string", Description: "End date, YYYY-MM-DD"},
			},
			Required: []string{"service"},
		},
		{
			Name:        toolBookAppointment,
			Description: "Book an appointment once the patient has confirmed a specific slot and shared their name and phone number.",
			Parameters: map[string]llm.Property{
				"service":      {Type: "string", Description: "The service to book"},
				"startsAt":     {Type: "string", Description: "Slot start time, RFC3339"},
				"firstName":    {Type: "string", Description: "Patient first name"},
				"lastName":     {Type: "string", Description: "Patient last name"},
				"phone":        {Type: "string", Description: "Patient phone number"},
				"email":        {Type: "string", Description: "Patient email"},
				"practitioner": {Type: "string", Description: "Practitioner id, if chosen"},
			},
			Required: []string{"service", "startsAt", "firstName", "lastName", "phone"},
		},
		{
			Name:        toolCancel,
			Description: "Cancel a previously booked appointment.",
			Parameters: map[string]llm.Property{
				"appointmentId": {Type: "string", Description: "The appointment to cancel"},
			},
			Required: []string{"appointmentId"},
		},
		{
			Name:        toolReschedule,
			Description: "Move a previously booked appointment to a new time.",
			Parameters: map[string]llm.Property{
				"appointmentId": {Type: "string", Description: "The appointment to move"},
				"newStartsAt":   {Type: "string", Description: "New start time, RFC3339"},
			},
			Required: []string{"appointmentId", "newStartsAt"},
		},
		{
			Name:        toolFindPatient,
			Description: "Find or register the patient in the clinic's system before booking.",
			Parameters: map[string]llm.Property{
				"firstName": {Type: "string", Description: "Patient first name"},
				"lastName":  {Type: "string", Description: "Patient last name"},
				"phone":     {Type: "string", Description: "Patient phone number"},
				"email":     {Type: "string", Description: "Patient email"},
			},
			Required: []string{"firstName", "lastName"},
		},
		{
			Name:        toolDeclineBooking,
			Description: "Record that the patient explicitly does not want to book anything.",
		},
	}
}

// requiredParams mirrors the tool declarations; the engine enforces them
// before any adapter call so a model that skips required arguments produces
// a clarifying question, never a broken booking call.
var requiredParams = map[string][]string{
	toolCheckAvailability: {"service"},
	toolBookAppointment:   {"service", "startsAt", "firstName", "lastName", "phone"},
	toolCancel:            {"appointmentId"},
	toolReschedule:        {"appointmentId", "newStartsAt"},
	toolFindPatient:       {"firstName", "lastName"},
}

// missingParams returns the required parameters absent or blank in a call.
func missingParams(call llm.ToolCall) []string {
	var missing []string
	for _, name := range requiredParams[call.Name] {
		v, ok := call.Arguments[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// intentFor maps a tool call to the reply metadata intent.
func intentFor(toolName string) string {
	switch toolName {
	case toolCheckAvailability:
		return "availability"
	case toolBookAppointment:
		return "booking"
	case toolCancel:
		return "cancellation"
	case toolReschedule:
		return "reschedule"
	case toolFindPatient:
		return "registration"
	case toolDeclineBooking:
		return "declined"
	default:
		return "general"
	}
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, isStr := v.(string); isStr {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// parseWindow resolves the availability date range, defaulting to the next 7
// days when the model omits or mangles the dates.
func parseWindow(args map[string]interface{}, now time.Time) (time.Time, time.Time) {
	from := now
	if s := stringArg(args, "from"); s != "" {
		if parsed, err := time.Parse("2006-01-02", s); err == nil {
			from = parsed
		}
	}
	to := from.AddDate(0, 0, 7)
	if s := stringArg(args, "to"); s != "" {
		if parsed, err := time.Parse("2006-01-02", s); err == nil && parsed.After(from) {
			to = parsed
		}
	}
	return from, to
}

// parseStart parses an RFC3339 start time argument.
func parseStart(args map[string]interface{}, key string) (time.Time, error) {
	s := stringArg(args, key)
	if s == "" {
		return time.Time{}, fmt.Errorf("conversation: %s is required", key)
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("conversation: invalid %s %q: %w", key, s, err)
	}
	return parsed, nil
}
