package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/mhasan-dev/bookline/internal/inbox"
	"github.com/mhasan-dev/bookline/internal/outbox"
	"github.com/mhasan-dev/bookline/libs/db"
)

// Repository is the Postgres persistence layer. It satisfies booking.Store;
// each InTx call runs its closure inside one transaction so the conflict
// check and the insert commit or fail together.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	inbox  *inbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository(pool), inbox: inbox.NewRepository()}
}

func (r *Repository) InTx(ctx context.Context, fn func(booking.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&bookingTx{tx: tx, outbox: r.outbox, inbox: r.inbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// bookingTx carries one open transaction through a lifecycle operation.
type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
	inbox  *inbox.Repository
}

func (t *bookingTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *bookingTx) RecordInboxEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	return t.inbox.Insert(ctx, t.tx, eventID, eventType)
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
