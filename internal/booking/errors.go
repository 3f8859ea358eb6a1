package booking

import "errors"

// Lifecycle errors surfaced to callers. Handlers map these onto HTTP status
// codes; every rejection carries a specific, actionable message.
var (
	ErrTenantRequired         = errors.New("tenant context missing")
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrSlotUnavailable        = errors.New("time slot is not available")
	ErrAlreadyCancelled       = errors.New("appointment is already cancelled")
	ErrPastAppointment        = errors.New("appointment start time is in the past")
	ErrCancellationNotAllowed = errors.New("cancellations are not allowed by this business")
	ErrDeadlinePassed         = errors.New("cancellation deadline has passed")
	ErrNotAuthorized          = errors.New("not authorized for this appointment")
	ErrBookingDisabled        = errors.New("online booking is disabled for this business")
	ErrPaymentUnavailable     = errors.New("payment provider unavailable")
	ErrDuplicateEvent         = errors.New("provider event already processed")
)
