package notify

import (
	"context"
	"time"
)

// Context carries the structured template data every message kind needs.
type Context struct {
	TenantName   string
	ServiceName  string
	ProviderName string
	ClientName   string
	StartTime    time.Time
	EndTime      time.Time
	AmountCents  int64
	Currency     string
	RefundCents  int64
	Reason       string
}

// Notifier is the fire-and-forget notification port. Callers treat every send
// as best-effort: failures are logged and swallowed, never propagated into the
// primary state transition.
type Notifier interface {
	SendAppointmentConfirmation(ctx context.Context, recipient string, nc Context) error
	SendPaymentConfirmation(ctx context.Context, recipient string, nc Context) error
	SendPaymentFailure(ctx context.Context, recipient string, nc Context) error
	SendCancellation(ctx context.Context, recipient string, nc Context) error
}

// Noop satisfies Notifier for builds without a mail relay configured.
type Noop struct{}

func (Noop) SendAppointmentConfirmation(context.Context, string, Context) error { return nil }
func (Noop) SendPaymentConfirmation(context.Context, string, Context) error    { return nil }
func (Noop) SendPaymentFailure(context.Context, string, Context) error         { return nil }
func (Noop) SendCancellation(context.Context, string, Context) error           { return nil }
