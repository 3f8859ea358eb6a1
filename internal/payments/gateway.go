package payments

import "context"

// Intent is a provider-side payment intent the client completes out of band.
type Intent struct {
	ID           string
	ClientSecret string
}

// Gateway is the narrow port to the payment provider. Refund failures are
// reported to the caller but must never block the state transition that
// triggered them.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Intent, error)
	Refund(ctx context.Context, chargeID string, amountCents int64, metadata map[string]string) (string, error)
}
