package booking

import "github.com/mhasan-dev/bookline/internal/policy"

// RefundAmount computes the refund owed on cancellation of a paid booking:
// full refunds the entire paid amount, partial applies the configured
// percentage, none refunds nothing.
func RefundAmount(rules policy.CancellationRules, paidCents int64) int64 {
	if paidCents <= 0 {
		return 0
	}
	switch rules.RefundPolicy {
	case policy.RefundFull:
		return paidCents
	case policy.RefundPartial:
		return paidCents * int64(rules.PartialRefundPct) / 100
	default:
		return 0
	}
}
