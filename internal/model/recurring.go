package model

import "time"

type Frequency string

const (
	FreqDaily     Frequency = "daily"
	FreqWeekly    Frequency = "weekly"
	FreqBiweekly  Frequency = "biweekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqYearly    Frequency = "yearly"
)

// RecurringRule generates a series of concrete appointments. Instances link
// back via Appointment.RecurringRuleID; the rule itself holds no pointers to
// them.
type RecurringRule struct {
	ID             string
	TenantID       string
	ClientID       string
	ProviderID     string
	ServiceID      string
	Frequency      Frequency
	Interval       int
	DaysOfWeek     []int // 0=Sunday..6=Saturday, weekly/biweekly only
	DayOfMonth     int   // monthly and up; 0 means anchor day
	Anchor         time.Time
	DurationMins   int
	EndDate        *time.Time
	MaxOccurrences int
	PaymentMethod  PaymentMethod
	IsActive       bool
	CreatedAt      time.Time
}
