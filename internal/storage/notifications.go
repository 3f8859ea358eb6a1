package storage

import (
	"context"

	"github.com/mhasan-dev/bookline/libs/db"
)

// NotificationLog records every attempted send, sent or failed. It satisfies
// notify.Recorder.
type NotificationLog struct {
	pool *db.Pool
}

func NewNotificationLog(pool *db.Pool) *NotificationLog {
	return &NotificationLog{pool: pool}
}

func (l *NotificationLog) RecordSend(ctx context.Context, recipient, kind, status string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO notifications (recipient, kind, status)
		VALUES ($1, $2, $3)
	`, recipient, kind, status)
	return err
}
