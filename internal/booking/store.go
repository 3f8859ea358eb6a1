package booking

import (
	"context"
	"time"

	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/outbox"
	"github.com/mhasan-dev/bookline/internal/policy"
)

// Store is the persistence port for the lifecycle manager. InTx runs fn
// inside a single transaction; the conflict check and the insert share that
// transaction so a losing concurrent writer fails the same way a pre-existing
// conflict does.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	GetService(ctx context.Context, tenantID, serviceID string) (model.Service, bool, error)
	GetProvider(ctx context.Context, tenantID, providerID string) (model.User, bool, error)
	GetUser(ctx context.Context, tenantID, userID string) (model.User, bool, error)
	GetTenantName(ctx context.Context, tenantID string) (string, error)
	SetCalendarEvent(ctx context.Context, tenantID, appointmentID, eventID string) error
}

// Tx is the transactional slice of the store.
type Tx interface {
	// LockIdempotency claims key for this tenant, blocking concurrent holders.
	// replayed is true when a previous request already finished under the key.
	LockIdempotency(ctx context.Context, tenantID, key string) (appointmentID string, replayed bool, err error)
	FinalizeIdempotency(ctx context.Context, tenantID, key, appointmentID string) error

	// ResolveClient finds or creates the client user record, idempotent by
	// (tenant, email).
	ResolveClient(ctx context.Context, tenantID, name, email, phone string) (model.User, error)

	// HasConflict reports whether [start,end) overlaps any pending or
	// confirmed appointment for the provider. Raw interval overlap, no buffer.
	HasConflict(ctx context.Context, tenantID, providerID string, start, end time.Time, excludeID string) (bool, error)

	// CreateAppointment persists the appointment. Implementations return
	// ErrSlotUnavailable when the storage-layer overlap constraint rejects
	// the insert.
	CreateAppointment(ctx context.Context, appt *model.Appointment) error

	GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, bool, error)
	GetByPaymentIntentForUpdate(ctx context.Context, paymentIntentID string) (model.Appointment, bool, error)

	SetPaymentOutcome(ctx context.Context, appointmentID string, paymentStatus model.PaymentStatus, chargeID string, status model.AppointmentStatus) error
	CancelAppointment(ctx context.Context, c Cancellation) (time.Time, error)
	CompleteAppointment(ctx context.Context, tenantID, appointmentID string) error

	InsertEvent(ctx context.Context, evt outbox.Event) error

	// RecordInboxEvent claims an inbound provider event id inside the open
	// transaction. fresh is false when the id was already processed; a
	// rollback releases the claim so a failed delivery can be retried.
	RecordInboxEvent(ctx context.Context, eventID, eventType string) (fresh bool, err error)
}

// Cancellation is the full outcome written when an appointment is cancelled.
type Cancellation struct {
	TenantID      string
	AppointmentID string
	Reason        string
	RefundCents   int64
	RefundReason  string
	PaymentStatus model.PaymentStatus
}

// PolicyStore yields the tenant's effective policy, defaults applied.
type PolicyStore interface {
	Get(ctx context.Context, tenantID string) (policy.Policy, error)
}
