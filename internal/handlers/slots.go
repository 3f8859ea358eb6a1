package handlers

import (
	"net/http"
	"time"

	"github.com/mhasan-dev/bookline/internal/availability"
	"github.com/mhasan-dev/bookline/internal/policy"
)

// daySlots assembles the availability report: working window from the tenant
// policy, busy intervals from storage, slot math from the availability
// package. A disabled day yields an empty report, not an error.
func (h *Handler) daySlots(r *http.Request, tenant, providerID string, date time.Time, pol policy.Policy) ([]availability.Slot, error) {
	windowStart, windowEnd, ok := pol.DayWindow(date)
	if !ok {
		return []availability.Slot{}, nil
	}

	// Pad the query window by the buffer so an appointment just outside the
	// day still blocks its padded neighbors inside it.
	buffer := pol.Buffer()
	busy, err := h.repo.BlockingIntervals(r.Context(), tenant, providerID,
		windowStart.Add(-buffer), windowEnd.Add(buffer))
	if err != nil {
		return nil, err
	}

	slots := availability.DaySlots(windowStart, windowEnd, busy, buffer, time.Now().UTC())
	if slots == nil {
		slots = []availability.Slot{}
	}
	return slots, nil
}
