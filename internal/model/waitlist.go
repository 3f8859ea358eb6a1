package model

import "time"

type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "active"
	WaitlistNotified  WaitlistStatus = "notified"
	WaitlistBooked    WaitlistStatus = "booked"
	WaitlistCancelled WaitlistStatus = "cancelled"
	WaitlistExpired   WaitlistStatus = "expired"
)

// WaitlistEntry is a client's standing request for a slot that is currently
// unavailable. Transitions happen on explicit update; nothing in the core
// promotes entries automatically.
type WaitlistEntry struct {
	ID            string
	TenantID      string
	ClientID      string
	ProviderID    string
	ServiceID     string
	PreferredDate time.Time
	WindowStart   string // "HH:MM", empty = any time
	WindowEnd     string
	FlexibleDate  bool
	FlexibleTime  bool
	Status        WaitlistStatus
	Priority      int
	CreatedAt     time.Time
}

// CanTransition reports whether a waitlist entry may move to the given status.
func (e WaitlistEntry) CanTransition(to WaitlistStatus) bool {
	switch e.Status {
	case WaitlistActive:
		return to == WaitlistNotified || to == WaitlistBooked || to == WaitlistCancelled || to == WaitlistExpired
	case WaitlistNotified:
		return to == WaitlistBooked || to == WaitlistCancelled || to == WaitlistExpired
	default:
		return false
	}
}
