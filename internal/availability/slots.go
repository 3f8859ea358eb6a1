package availability

import "time"

// SlotWidth is the fixed width of every bookable slot.
const SlotWidth = 30 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: [a.Start,a.End) overlaps [b.Start,b.End)
// iff a.Start < b.End && b.Start < a.End.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Expand pads the interval symmetrically: pad is subtracted from Start and
// added to End.
func (iv Interval) Expand(pad time.Duration) Interval {
	if pad <= 0 {
		return iv
	}
	return Interval{Start: iv.Start.Add(-pad), End: iv.End.Add(pad)}
}

// Slot is one entry of the full-day availability report. Label is the
// wall-clock slot start in the window's location.
type Slot struct {
	Label     string    `json:"time"`
	Start     time.Time `json:"datetime"`
	Available bool      `json:"available"`
}

// DaySlots reports every fixed-width slot between windowStart and windowEnd in
// chronological order, flagging each as available or not. This is a full-day
// report, not a filtered list; callers decide what to show.
//
// A slot is unavailable when it overlaps any busy interval after the interval
// has been expanded by buffer on both sides, or when its start is not strictly
// after now. windowStart and windowEnd must share a location.
func DaySlots(windowStart, windowEnd time.Time, busy []Interval, buffer time.Duration, now time.Time) []Slot {
	if !windowEnd.After(windowStart) {
		return nil
	}

	padded := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if !b.End.After(b.Start) {
			continue
		}
		padded = append(padded, b.Expand(buffer))
	}

	var slots []Slot
	for t := windowStart; t.Add(SlotWidth).Before(windowEnd) || t.Add(SlotWidth).Equal(windowEnd); t = t.Add(SlotWidth) {
		candidate := Interval{Start: t, End: t.Add(SlotWidth)}
		available := t.After(now) && !overlapsAny(candidate, padded)
		slots = append(slots, Slot{
			Label:     t.Format("15:04"),
			Start:     t,
			Available: available,
		})
	}
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
