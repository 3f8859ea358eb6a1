package policy

import (
	"fmt"
	"time"
)

type RefundPolicy string

const (
	RefundFull    RefundPolicy = "full"
	RefundPartial RefundPolicy = "partial"
	RefundNone    RefundPolicy = "none"
)

// DayHours is the working window for one weekday, wall-clock "HH:MM".
type DayHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type BookingRules struct {
	OnlineBookingEnabled bool `json:"online_booking_enabled"`
	RequireConfirmation  bool `json:"require_confirmation"`
	BufferMinutes        int  `json:"buffer_minutes"`
	MaxAdvanceDays       int  `json:"max_advance_days"` // 0 = unlimited
}

type CancellationRules struct {
	Allowed          bool         `json:"allowed"`
	DeadlineHours    int          `json:"deadline_hours"`
	RefundPolicy     RefundPolicy `json:"refund_policy"`
	PartialRefundPct int          `json:"partial_refund_pct"`
}

type PaymentRules struct {
	AcceptCash     bool   `json:"accept_cash"`
	AcceptOnline   bool   `json:"accept_online"`
	Currency       string `json:"currency"`
	RequireUpfront bool   `json:"require_upfront"`
}

// Policy is the full per-tenant configuration. Exactly one record exists per
// tenant; Default() applies when none has been saved yet. Validation happens
// at the store boundary, never at call sites.
type Policy struct {
	WorkingHours [7]DayHours       `json:"working_hours"` // indexed by time.Weekday (Sunday = 0)
	Booking      BookingRules      `json:"booking"`
	Cancellation CancellationRules `json:"cancellation"`
	Payment      PaymentRules      `json:"payment"`
}

func Default() Policy {
	var hours [7]DayHours
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if wd >= time.Monday && wd <= time.Friday {
			hours[wd] = DayHours{Enabled: true, Start: "09:00", End: "17:00"}
		} else {
			hours[wd] = DayHours{Enabled: false}
		}
	}
	return Policy{
		WorkingHours: hours,
		Booking: BookingRules{
			OnlineBookingEnabled: true,
			RequireConfirmation:  false,
			BufferMinutes:        0,
			MaxAdvanceDays:       90,
		},
		Cancellation: CancellationRules{
			Allowed:          true,
			DeadlineHours:    24,
			RefundPolicy:     RefundFull,
			PartialRefundPct: 50,
		},
		Payment: PaymentRules{
			AcceptCash:   true,
			AcceptOnline: true,
			Currency:     "usd",
		},
	}
}

func Validate(p Policy) error {
	for wd, day := range p.WorkingHours {
		if !day.Enabled {
			continue
		}
		start, err := parseClock(day.Start)
		if err != nil {
			return fmt.Errorf("working_hours[%d].start: %w", wd, err)
		}
		end, err := parseClock(day.End)
		if err != nil {
			return fmt.Errorf("working_hours[%d].end: %w", wd, err)
		}
		if start >= end {
			return fmt.Errorf("working_hours[%d]: start must be before end", wd)
		}
	}
	if p.Booking.BufferMinutes < 0 || p.Booking.BufferMinutes > 240 {
		return fmt.Errorf("booking.buffer_minutes must be between 0 and 240")
	}
	if p.Booking.MaxAdvanceDays < 0 || p.Booking.MaxAdvanceDays > 365 {
		return fmt.Errorf("booking.max_advance_days must be between 0 and 365")
	}
	if p.Cancellation.DeadlineHours < 0 || p.Cancellation.DeadlineHours > 720 {
		return fmt.Errorf("cancellation.deadline_hours must be between 0 and 720")
	}
	switch p.Cancellation.RefundPolicy {
	case RefundFull, RefundNone:
	case RefundPartial:
		if p.Cancellation.PartialRefundPct < 1 || p.Cancellation.PartialRefundPct > 100 {
			return fmt.Errorf("cancellation.partial_refund_pct must be between 1 and 100")
		}
	default:
		return fmt.Errorf("cancellation.refund_policy must be full, partial, or none")
	}
	if len(p.Payment.Currency) != 3 {
		return fmt.Errorf("payment.currency must be a 3-letter code")
	}
	if !p.Payment.AcceptCash && !p.Payment.AcceptOnline {
		return fmt.Errorf("payment: at least one of accept_cash/accept_online required")
	}
	return nil
}

// DayWindow resolves the working window for the calendar day containing date,
// in date's location. ok is false when the weekday is disabled.
func (p Policy) DayWindow(date time.Time) (start, end time.Time, ok bool) {
	day := p.WorkingHours[date.Weekday()]
	if !day.Enabled {
		return time.Time{}, time.Time{}, false
	}
	startMin, err := parseClock(day.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	endMin, err := parseClock(day.End)
	if err != nil || startMin >= endMin {
		return time.Time{}, time.Time{}, false
	}
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return midnight.Add(time.Duration(startMin) * time.Minute),
		midnight.Add(time.Duration(endMin) * time.Minute),
		true
}

// Buffer returns the tenant's buffer padding as a duration.
func (p Policy) Buffer() time.Duration {
	return time.Duration(p.Booking.BufferMinutes) * time.Minute
}

// CancellationDeadline returns the latest instant a booking starting at start
// may still be cancelled.
func (p Policy) CancellationDeadline(start time.Time) time.Time {
	return start.Add(-time.Duration(p.Cancellation.DeadlineHours) * time.Hour)
}

func parseClock(s string) (minutes int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
