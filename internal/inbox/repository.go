package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository records processed external events (Stripe webhooks) so replays
// are detected and ignored. The insert runs on the caller's transaction: a
// rollback of the surrounding state change releases the claim, so a failed
// delivery is reprocessed on the provider's retry.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert claims eventID. fresh is false when the event was already processed.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (fresh bool, err error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
