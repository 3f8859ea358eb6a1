package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/mhasan-dev/bookline/internal/model"
)

const waitlistColumns = `
	id::text, tenant_id::text, client_id::text, provider_id::text, service_id::text,
	preferred_date, COALESCE(window_start, ''), COALESCE(window_end, ''),
	flexible_date, flexible_time, status, priority, created_at`

func scanWaitlistEntry(row pgx.Row) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := row.Scan(
		&e.ID, &e.TenantID, &e.ClientID, &e.ProviderID, &e.ServiceID,
		&e.PreferredDate, &e.WindowStart, &e.WindowEnd,
		&e.FlexibleDate, &e.FlexibleTime, &e.Status, &e.Priority, &e.CreatedAt,
	)
	return e, err
}

func (r *Repository) CreateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(id, tenant_id, client_id, provider_id, service_id, preferred_date,
			window_start, window_end, flexible_date, flexible_time, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)
		RETURNING created_at
	`, e.ID, e.TenantID, e.ClientID, e.ProviderID, e.ServiceID, e.PreferredDate,
		e.WindowStart, e.WindowEnd, e.FlexibleDate, e.FlexibleTime, e.Status, e.Priority,
	).Scan(&e.CreatedAt)
}

func (r *Repository) ListWaitlist(ctx context.Context, tenantID, providerID string) ([]model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE tenant_id = $1`
	args := []any{tenantID}
	if providerID != "" {
		args = append(args, providerID)
		query += ` AND provider_id = $2`
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateWaitlistStatus applies a manual transition, rejecting moves the
// state machine disallows.
func (r *Repository) UpdateWaitlistStatus(ctx context.Context, tenantID, entryID string, to model.WaitlistStatus) (model.WaitlistEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	defer tx.Rollback(ctx)

	entry, err := scanWaitlistEntry(tx.QueryRow(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, entryID, tenantID))
	if IsNotFound(err) {
		return model.WaitlistEntry{}, fmt.Errorf("%w: waitlist entry", booking.ErrNotFound)
	}
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	if !entry.CanTransition(to) {
		return model.WaitlistEntry{}, fmt.Errorf("%w: waitlist entry cannot move from %s to %s",
			booking.ErrValidation, entry.Status, to)
	}

	_, err = tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $3,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, entryID, tenantID, to)
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	entry.Status = to
	return entry, tx.Commit(ctx)
}
