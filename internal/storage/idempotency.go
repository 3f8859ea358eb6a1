package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// LockIdempotency claims (tenant, key) with a row lock. A concurrent request
// holding the same key blocks here until the holder commits; the second
// caller then observes the finalized appointment and replays it.
func (t *bookingTx) LockIdempotency(ctx context.Context, tenantID, key string) (string, bool, error) {
	appointmentID, err := t.selectIdempotencyForUpdate(ctx, tenantID, key)
	if err == nil {
		return appointmentID, appointmentID != "", nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO idempotency_keys (tenant_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
	`, tenantID, key)
	if err != nil {
		return "", false, err
	}

	appointmentID, err = t.selectIdempotencyForUpdate(ctx, tenantID, key)
	if err != nil {
		return "", false, err
	}
	return appointmentID, appointmentID != "", nil
}

func (t *bookingTx) FinalizeIdempotency(ctx context.Context, tenantID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE idempotency_keys
		SET appointment_id = $3,
			updated_at = now()
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key, appointmentID)
	return err
}

func (t *bookingTx) selectIdempotencyForUpdate(ctx context.Context, tenantID, key string) (string, error) {
	var appointmentID string
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, tenantID, key).Scan(&appointmentID)
	return appointmentID, err
}
