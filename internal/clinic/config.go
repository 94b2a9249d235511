// Package clinic provides clinic-specific configuration and business logic.
package clinic

import (
	"fmt"
	"strings"
	"time"
)

// Booking system identifiers accepted in Config.BookingSystem.
const (
	SystemCliniko = "cliniko"
	SystemJaneApp = "janeapp"
	SystemMock    = "mock"
)

// DayHours represents the opening hours for a single day.
// Nil means the clinic is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// BusinessHours maps day names to their hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// Credentials holds the clinic's booking-system secrets and identifiers.
// APIKey is encrypted at rest by the Store.
type Credentials struct {
	APIKey string `json:"api_key,omitempty"`
	// Region pins the regional API shard (e.g. "uk2"). Empty means unknown;
	// the booking factory discovers it by probing.
	Region string `json:"region,omitempty"`
	// BusinessID selects the business within multi-location accounts.
	BusinessID string `json:"business_id,omitempty"`
	// DefaultPractitionerID is used when the patient expresses no preference.
	DefaultPractitionerID string `json:"default_practitioner_id,omitempty"`
}

// KnowledgeBase holds the clinic-facing facts injected into the model prompt.
type KnowledgeBase struct {
	Services    []string          `json:"services,omitempty"`
	FAQ         map[string]string `json:"faq,omitempty"`
	Policies    []string          `json:"policies,omitempty"`
	ExtraPrompt string            `json:"extra_prompt,omitempty"`
}

// Config holds clinic-specific configuration.
type Config struct {
	TenantID string `json:"tenant_id"`
	ClinicID string `json:"clinic_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone"` // e.g., "Europe/London"

	// BookingSystem selects the adapter: "cliniko", "janeapp", or "mock".
	BookingSystem string      `json:"booking_system"`
	Credentials   Credentials `json:"credentials"`

	BusinessHours BusinessHours `json:"business_hours"`
	KnowledgeBase KnowledgeBase `json:"knowledge_base"`

	// GreetingMessage overrides the default first-contact greeting.
	GreetingMessage string `json:"greeting_message,omitempty"`

	// Placeholder marks configs synthesized because no real config exists.
	// Placeholder clinics always get the mock booking adapter.
	Placeholder bool `json:"placeholder,omitempty"`
}

// DefaultConfig returns a placeholder configuration for an unconfigured clinic.
// It is safe to serve conversations with: the mock adapter handles booking.
func DefaultConfig(tenantID, clinicID string) *Config {
	return &Config{
		TenantID:      tenantID,
		ClinicID:      clinicID,
		Name:          "the clinic",
		Timezone:      "UTC",
		BookingSystem: SystemMock,
		BusinessHours: BusinessHours{
			Monday:    &DayHours{Open: "09:00", Close: "17:00"},
			Tuesday:   &DayHours{Open: "09:00", Close: "17:00"},
			Wednesday: &DayHours{Open: "09:00", Close: "17:00"},
			Thursday:  &DayHours{Open: "09:00", Close: "17:00"},
			Friday:    &DayHours{Open: "09:00", Close: "17:00"},
		},
		Placeholder: true,
	}
}

// System returns the normalized booking system, defaulting to mock.
func (c *Config) System() string {
	if c == nil {
		return SystemMock
	}
	switch strings.ToLower(c.BookingSystem) {
	case SystemCliniko:
		return SystemCliniko
	case SystemJaneApp:
		return SystemJaneApp
	default:
		return SystemMock
	}
}

// HasCredentials reports whether the config carries enough to reach a real
// booking system.
func (c *Config) HasCredentials() bool {
	return c != nil && c.Credentials.APIKey != "" && c.System() != SystemMock
}

// GetHoursForDay returns the hours for a given weekday.
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// HasAnyHours returns true if at least one day has business hours configured.
func (b *BusinessHours) HasAnyHours() bool {
	return b.Sunday != nil || b.Monday != nil || b.Tuesday != nil ||
		b.Wednesday != nil || b.Thursday != nil || b.Friday != nil || b.Saturday != nil
}

// IsOpenAt checks if the clinic is open at the given time. Clinics with no
// configured hours are treated as always open (appointment-only clinics).
func (c *Config) IsOpenAt(t time.Time) bool {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	localTime := t.In(loc)

	hours := c.BusinessHours.GetHoursForDay(localTime.Weekday())
	if hours == nil {
		return !c.BusinessHours.HasAnyHours()
	}

	openTime, err := time.Parse("15:04", hours.Open)
	if err != nil {
		return false
	}
	closeTime, err := time.Parse("15:04", hours.Close)
	if err != nil {
		return false
	}

	currentMinutes := localTime.Hour()*60 + localTime.Minute()
	openMinutes := openTime.Hour()*60 + openTime.Minute()
	closeMinutes := closeTime.Hour()*60 + closeTime.Minute()

	return currentMinutes >= openMinutes && currentMinutes < closeMinutes
}

// PromptContext renders the clinic facts the model needs for a turn.
func (c *Config) PromptContext(now time.Time) string {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	localTime := now.In(loc)

	status := "CLOSED"
	if c.IsOpenAt(now) {
		status = "OPEN"
	}

	hours := c.BusinessHours.GetHoursForDay(localTime.Weekday())
	todayHours := "Closed today"
	if hours != nil {
		todayHours = fmt.Sprintf("%s - %s", hours.Open, hours.Close)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Clinic: %s\n", c.Name)
	fmt.Fprintf(&b, "Current time: %s (%s)\n", localTime.Format("Monday, January 2, 2006 3:04 PM"), c.Timezone)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Today's hours: %s\n", todayHours)

	if len(c.KnowledgeBase.Services) > 0 {
		fmt.Fprintf(&b, "Services offered: %s\n", strings.Join(c.KnowledgeBase.Services, ", "))
	}
	if len(c.KnowledgeBase.Policies) > 0 {
		fmt.Fprintf(&b, "Policies:\n")
		for _, p := range c.KnowledgeBase.Policies {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	for q, a := range c.KnowledgeBase.FAQ {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", q, a)
	}
	if c.KnowledgeBase.ExtraPrompt != "" {
		b.WriteString(c.KnowledgeBase.ExtraPrompt)
		b.WriteString("\n")
	}
	return b.String()
}
