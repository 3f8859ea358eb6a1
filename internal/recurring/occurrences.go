package recurring

import (
	"sort"
	"time"

	"github.com/mhasan-dev/bookline/internal/model"
)

// MaxInstances bounds a single series. Rules with no end condition generate
// at most this many occurrences.
const MaxInstances = 366

// Occurrences generates the series implied by rule, in chronological order.
// Occurrences at or before from are consumed from the rule's budget but not
// returned; generation stops at the rule's end date, its max-occurrence
// count, or MaxInstances, whichever comes first.
func Occurrences(rule model.RecurringRule, from time.Time) []time.Time {
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}
	limit := rule.MaxOccurrences
	if limit <= 0 || limit > MaxInstances {
		limit = MaxInstances
	}

	anchor := rule.Anchor.UTC()
	from = from.UTC()

	var out []time.Time
	count := 0
	// emit accounts one series occurrence, keeping it only when it is in the
	// future. Returns false when the series is exhausted.
	emit := func(t time.Time) bool {
		if rule.EndDate != nil && t.After(rule.EndDate.UTC()) {
			return false
		}
		count++
		if t.After(from) {
			out = append(out, t)
		}
		return count < limit
	}

	switch rule.Frequency {
	case model.FreqDaily:
		for t := anchor; ; t = t.AddDate(0, 0, interval) {
			if !emit(t) {
				return out
			}
		}

	case model.FreqWeekly, model.FreqBiweekly:
		stepDays := 7 * interval
		if rule.Frequency == model.FreqBiweekly {
			stepDays *= 2
		}
		var days []int
		for _, d := range rule.DaysOfWeek {
			if d >= 0 && d <= 6 {
				days = append(days, d)
			}
		}
		if len(days) == 0 {
			for t := anchor; ; t = t.AddDate(0, 0, stepDays) {
				if !emit(t) {
					return out
				}
			}
		}
		sort.Ints(days)
		weekStart := anchor.AddDate(0, 0, -int(anchor.Weekday()))
		for cycle := 0; ; cycle++ {
			base := weekStart.AddDate(0, 0, cycle*stepDays)
			for _, d := range days {
				t := base.AddDate(0, 0, d)
				if t.Before(anchor) {
					continue
				}
				if !emit(t) {
					return out
				}
			}
		}

	case model.FreqMonthly, model.FreqQuarterly, model.FreqYearly:
		months := interval
		switch rule.Frequency {
		case model.FreqQuarterly:
			months = 3 * interval
		case model.FreqYearly:
			months = 12 * interval
		}
		dom := rule.DayOfMonth
		if dom < 1 {
			dom = anchor.Day()
		}
		for i := 0; ; i++ {
			first := time.Date(anchor.Year(), anchor.Month()+time.Month(i*months), 1,
				anchor.Hour(), anchor.Minute(), 0, 0, time.UTC)
			day := dom
			if last := daysInMonth(first); day > last {
				day = last
			}
			if !emit(first.AddDate(0, 0, day-1)) {
				return out
			}
		}

	default:
		return nil
	}
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
