package model

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Appointment is a single booked interval for a provider. Intervals are
// half-open [StartTime, EndTime); two non-cancelled appointments for the same
// (tenant, provider) never overlap.
type Appointment struct {
	ID              string
	TenantID        string
	ClientID        string
	ProviderID      string
	ServiceID       string
	StartTime       time.Time
	EndTime         time.Time
	Status          AppointmentStatus
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	ChargeID        string
	CancelledAt     *time.Time
	CancelReason    string
	RefundCents     int64
	RefundReason    string
	RecurringRuleID string
	CalendarEventID string
	Notes           string
	CreatedAt       time.Time
}

// Blocking reports whether the appointment occupies its interval for conflict
// purposes. Completed and cancelled appointments never block.
func (a Appointment) Blocking() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// SweptOnDeactivation reports whether this recurring instance is cancelled
// when its rule is turned off: only still-blocking instances starting after
// the cutoff. Past, completed and already-cancelled instances are untouched.
func (a Appointment) SweptOnDeactivation(cutoff time.Time) bool {
	return a.Blocking() && a.StartTime.After(cutoff)
}
