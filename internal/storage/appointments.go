package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mhasan-dev/bookline/internal/availability"
	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/mhasan-dev/bookline/internal/model"
)

const apptColumns = `
	id::text, tenant_id::text, client_id::text, provider_id::text, service_id::text,
	start_time, end_time, status, payment_method, payment_status,
	amount_cents, COALESCE(currency, ''), COALESCE(payment_intent_id, ''), COALESCE(charge_id, ''),
	cancelled_at, COALESCE(cancellation_reason, ''), refund_cents, COALESCE(refund_reason, ''),
	COALESCE(recurring_rule_id::text, ''), COALESCE(calendar_event_id, ''), COALESCE(notes, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.ClientID,
		&appt.ProviderID,
		&appt.ServiceID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.PaymentMethod,
		&appt.PaymentStatus,
		&appt.AmountCents,
		&appt.Currency,
		&appt.PaymentIntentID,
		&appt.ChargeID,
		&appt.CancelledAt,
		&appt.CancelReason,
		&appt.RefundCents,
		&appt.RefundReason,
		&appt.RecurringRuleID,
		&appt.CalendarEventID,
		&appt.Notes,
		&appt.CreatedAt,
	)
	return appt, err
}

func (t *bookingTx) HasConflict(ctx context.Context, tenantID, providerID string, start, end time.Time, excludeID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE tenant_id = $1
				AND provider_id = $2
				AND status IN ('pending', 'confirmed')
				AND start_time < $4
				AND end_time > $3
				AND ($5 = '' OR id::text <> $5)
		)
	`, tenantID, providerID, start, end, excludeID).Scan(&exists)
	return exists, err
}

func (t *bookingTx) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, tenant_id, client_id, provider_id, service_id, start_time, end_time,
			status, payment_method, payment_status, amount_cents, currency,
			payment_intent_id, recurring_rule_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			NULLIF($13, ''), NULLIF($14, '')::uuid, NULLIF($15, ''))
		RETURNING created_at
	`, appt.ID, appt.TenantID, appt.ClientID, appt.ProviderID, appt.ServiceID,
		appt.StartTime, appt.EndTime, appt.Status, appt.PaymentMethod, appt.PaymentStatus,
		appt.AmountCents, appt.Currency, appt.PaymentIntentID, appt.RecurringRuleID, appt.Notes,
	).Scan(&appt.CreatedAt)
	if IsConflict(err) {
		// The no_overlap exclusion constraint rejected the losing writer.
		return booking.ErrSlotUnavailable
	}
	return err
}

func (t *bookingTx) GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, bool, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, appointmentID, tenantID))
	if IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (t *bookingTx) GetByPaymentIntentForUpdate(ctx context.Context, paymentIntentID string) (model.Appointment, bool, error) {
	appt, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE payment_intent_id = $1
		FOR UPDATE
	`, paymentIntentID))
	if IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (t *bookingTx) SetPaymentOutcome(ctx context.Context, appointmentID string, paymentStatus model.PaymentStatus, chargeID string, status model.AppointmentStatus) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET payment_status = $2,
			charge_id = COALESCE(NULLIF($3, ''), charge_id),
			status = $4,
			updated_at = now()
		WHERE id = $1
	`, appointmentID, paymentStatus, chargeID, status)
	return err
}

func (t *bookingTx) CancelAppointment(ctx context.Context, c booking.Cancellation) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($3, ''),
			refund_cents = $4,
			refund_reason = NULLIF($5, ''),
			payment_status = $6,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING cancelled_at
	`, c.AppointmentID, c.TenantID, c.Reason, c.RefundCents, c.RefundReason, c.PaymentStatus).Scan(&cancelledAt)
	return cancelledAt, err
}

func (t *bookingTx) CompleteAppointment(ctx context.Context, tenantID, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed',
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'confirmed'
	`, appointmentID, tenantID)
	return err
}

func (r *Repository) SetCalendarEvent(ctx context.Context, tenantID, appointmentID, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET calendar_event_id = $3
		WHERE id = $1 AND tenant_id = $2
	`, appointmentID, tenantID, eventID)
	return err
}

// BlockingIntervals returns the intervals of pending and confirmed
// appointments for the provider overlapping [start, end), ordered by start.
// This feeds the availability engine.
func (r *Repository) BlockingIntervals(ctx context.Context, tenantID, providerID string, start, end time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE tenant_id = $1
			AND provider_id = $2
			AND status IN ('pending', 'confirmed')
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, tenantID, providerID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// AppointmentFilter narrows ListAppointments. Zero values are ignored.
type AppointmentFilter struct {
	ProviderID string
	ClientID   string
	Status     model.AppointmentStatus
	From       time.Time
	To         time.Time
	Limit      int
}

func (r *Repository) ListAppointments(ctx context.Context, tenantID string, f AppointmentFilter) ([]model.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE tenant_id = $1`
	args := []any{tenantID}
	add := func(clause string, val any) {
		args = append(args, val)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if f.ProviderID != "" {
		add("provider_id =", f.ProviderID)
	}
	if f.ClientID != "" {
		add("client_id =", f.ClientID)
	}
	if f.Status != "" {
		add("status =", f.Status)
	}
	if !f.From.IsZero() {
		add("end_time >", f.From)
	}
	if !f.To.IsZero() {
		add("start_time <", f.To)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func (r *Repository) GetAppointment(ctx context.Context, tenantID, appointmentID string) (model.Appointment, bool, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
	`, appointmentID, tenantID))
	if IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}
