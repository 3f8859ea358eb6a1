package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mhasan-dev/bookline/internal/calendar"
	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/notify"
	"github.com/mhasan-dev/bookline/internal/outbox"
	"github.com/mhasan-dev/bookline/internal/payments"
)

// Service owns the appointment state machine: creation, payment transitions,
// cancellation with refund computation, completion. External side effects
// (notifications, calendar events) are best-effort and never unwind the
// primary state transition.
type Service struct {
	store    Store
	policies PolicyStore
	gateway  payments.Gateway // nil when online payments are not configured
	notifier notify.Notifier
	calendar calendar.Client
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, policies PolicyStore, gateway payments.Gateway, notifier notify.Notifier, cal calendar.Client, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if cal == nil {
		cal = calendar.Noop{}
	}
	return &Service{
		store:    store,
		policies: policies,
		gateway:  gateway,
		notifier: notifier,
		calendar: cal,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateRequest struct {
	TenantID       string
	ServiceID      string
	ProviderID     string
	StartTime      time.Time
	EndTime        *time.Time
	ClientName     string
	ClientEmail    string
	ClientPhone    string
	Notes          string
	PaymentMethod  model.PaymentMethod
	RecurringRule  string
	IdempotencyKey string
}

type CreateResult struct {
	Appointment model.Appointment
	// ClientSecret completes the payment intent browser-side; set for online
	// payments only.
	ClientSecret string
	// Replayed is true when the idempotency key matched a finished request.
	Replayed bool
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return CreateResult{}, ErrTenantRequired
	}
	if req.ServiceID == "" || req.ProviderID == "" {
		return CreateResult{}, fmt.Errorf("%w: service_id and provider_id are required", ErrValidation)
	}
	if strings.TrimSpace(req.ClientName) == "" || strings.TrimSpace(req.ClientEmail) == "" {
		return CreateResult{}, fmt.Errorf("%w: client_name and client_email are required", ErrValidation)
	}
	if _, err := mail.ParseAddress(req.ClientEmail); err != nil {
		return CreateResult{}, fmt.Errorf("%w: client_email is not a valid email address", ErrValidation)
	}
	if req.StartTime.IsZero() {
		return CreateResult{}, fmt.Errorf("%w: start_time is required", ErrValidation)
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = model.PaymentCash
	}
	if req.PaymentMethod != model.PaymentCash && req.PaymentMethod != model.PaymentOnline {
		return CreateResult{}, fmt.Errorf("%w: payment_method must be cash or online", ErrValidation)
	}

	pol, err := s.policies.Get(ctx, req.TenantID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load tenant policy: %w", err)
	}
	if !pol.Booking.OnlineBookingEnabled {
		return CreateResult{}, ErrBookingDisabled
	}
	if req.PaymentMethod == model.PaymentCash && !pol.Payment.AcceptCash {
		return CreateResult{}, fmt.Errorf("%w: this business does not accept cash payments", ErrValidation)
	}
	if req.PaymentMethod == model.PaymentOnline && !pol.Payment.AcceptOnline {
		return CreateResult{}, fmt.Errorf("%w: this business does not accept online payments", ErrValidation)
	}

	svc, found, err := s.store.GetService(ctx, req.TenantID, req.ServiceID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load service: %w", err)
	}
	if !found {
		return CreateResult{}, fmt.Errorf("%w: service", ErrNotFound)
	}
	if !svc.IsActive {
		return CreateResult{}, fmt.Errorf("%w: service is no longer offered", ErrValidation)
	}

	provider, found, err := s.store.GetProvider(ctx, req.TenantID, req.ProviderID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load provider: %w", err)
	}
	if !found {
		return CreateResult{}, fmt.Errorf("%w: provider", ErrNotFound)
	}
	if !provider.IsActive {
		return CreateResult{}, fmt.Errorf("%w: provider is not accepting bookings", ErrValidation)
	}

	start := req.StartTime.UTC()
	end := start.Add(time.Duration(svc.DurationMins) * time.Minute)
	if req.EndTime != nil {
		end = req.EndTime.UTC()
	}
	if !end.After(start) {
		return CreateResult{}, fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}

	now := s.now()
	if !start.After(now) {
		return CreateResult{}, fmt.Errorf("%w: start_time must be in the future", ErrValidation)
	}
	if pol.Booking.MaxAdvanceDays > 0 {
		horizon := now.AddDate(0, 0, pol.Booking.MaxAdvanceDays)
		if start.After(horizon) {
			return CreateResult{}, fmt.Errorf("%w: bookings may be made at most %d days in advance", ErrValidation, pol.Booking.MaxAdvanceDays)
		}
	}

	// Online payments always start pending: payment success is itself the
	// confirmation signal, regardless of the confirmation setting.
	status := model.StatusPending
	if req.PaymentMethod == model.PaymentCash && !pol.Booking.RequireConfirmation {
		status = model.StatusConfirmed
	}

	appt := model.Appointment{
		ID:              uuid.NewString(),
		TenantID:        req.TenantID,
		ProviderID:      req.ProviderID,
		ServiceID:       req.ServiceID,
		StartTime:       start,
		EndTime:         end,
		Status:          status,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   model.PaymentPending,
		Currency:        pol.Payment.Currency,
		RecurringRuleID: req.RecurringRule,
		Notes:           strings.TrimSpace(req.Notes),
	}

	var clientSecret string
	if req.PaymentMethod == model.PaymentOnline {
		if s.gateway == nil {
			return CreateResult{}, ErrPaymentUnavailable
		}
		appt.AmountCents = svc.PriceCents
		intent, err := s.gateway.CreateIntent(ctx, appt.AmountCents, appt.Currency, map[string]string{
			"appointment_id": appt.ID,
			"tenant_id":      appt.TenantID,
		})
		if err != nil {
			s.logger.Error("payment intent creation failed", "err", err, "tenant_id", req.TenantID)
			return CreateResult{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
		appt.PaymentIntentID = intent.ID
		clientSecret = intent.ClientSecret
	}

	var result CreateResult
	err = s.store.InTx(ctx, func(tx Tx) error {
		key := strings.TrimSpace(req.IdempotencyKey)
		if key != "" {
			existingID, replayed, err := tx.LockIdempotency(ctx, req.TenantID, key)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if replayed && existingID != "" {
				existing, found, err := tx.GetAppointmentForUpdate(ctx, req.TenantID, existingID)
				if err != nil {
					return err
				}
				if found {
					result = CreateResult{Appointment: existing, Replayed: true}
					return nil
				}
			}
		}

		client, err := tx.ResolveClient(ctx, req.TenantID, strings.TrimSpace(req.ClientName), strings.ToLower(strings.TrimSpace(req.ClientEmail)), strings.TrimSpace(req.ClientPhone))
		if err != nil {
			return fmt.Errorf("resolve client: %w", err)
		}
		appt.ClientID = client.ID

		conflict, err := tx.HasConflict(ctx, req.TenantID, req.ProviderID, start, end, "")
		if err != nil {
			return fmt.Errorf("conflict check: %w", err)
		}
		if conflict {
			return ErrSlotUnavailable
		}

		// The DB overlap constraint is the authoritative guard; a losing
		// concurrent writer surfaces here as ErrSlotUnavailable too.
		if err := tx.CreateAppointment(ctx, &appt); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"tenant_id":      appt.TenantID,
			"provider_id":    appt.ProviderID,
			"service_id":     appt.ServiceID,
			"client_id":      appt.ClientID,
			"start_time":     appt.StartTime.Format(time.RFC3339),
			"end_time":       appt.EndTime.Format(time.RFC3339),
			"status":         appt.Status,
			"payment_method": appt.PaymentMethod,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.TopicAppointmentBooked,
			Payload:       payload,
		}); err != nil {
			return err
		}

		if key != "" {
			if err := tx.FinalizeIdempotency(ctx, req.TenantID, key, appt.ID); err != nil {
				return fmt.Errorf("finalize idempotency key: %w", err)
			}
		}

		result = CreateResult{Appointment: appt, ClientSecret: clientSecret}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	if result.Replayed {
		return result, nil
	}

	s.afterCreate(ctx, result.Appointment, req.ClientEmail, svc, provider)
	return result, nil
}

// afterCreate runs the best-effort side effects of a successful booking.
// Failures here are logged and swallowed.
func (s *Service) afterCreate(ctx context.Context, appt model.Appointment, clientEmail string, svc model.Service, provider model.User) {
	nc := s.notifyContext(ctx, appt, svc.Name, provider.Name)
	if err := s.notifier.SendAppointmentConfirmation(ctx, clientEmail, nc); err != nil {
		s.logger.Warn("confirmation notification failed", "err", err, "appointment_id", appt.ID)
	}

	eventID, err := s.calendar.CreateEvent(ctx, calendar.Event{
		Title:       fmt.Sprintf("%s — %s", svc.Name, nc.ClientName),
		Description: appt.Notes,
		Start:       appt.StartTime,
		End:         appt.EndTime,
		Attendees:   []string{clientEmail, provider.Email},
	})
	if err != nil {
		s.logger.Warn("calendar event creation failed", "err", err, "appointment_id", appt.ID)
		return
	}
	if eventID == "" {
		return
	}
	if err := s.store.SetCalendarEvent(ctx, appt.TenantID, appt.ID, eventID); err != nil {
		s.logger.Warn("calendar event reference not stored", "err", err, "appointment_id", appt.ID)
	}
}

// ProviderEvent identifies an inbound payment-provider delivery. EventID is
// the provider's delivery id; the same id is applied at most once.
type ProviderEvent struct {
	EventID   string
	EventType string
}

// ConfirmPayment applies the gateway's asynchronous success callback. It is
// idempotent twice over: a replayed delivery id is rejected with
// ErrDuplicateEvent, and re-applying a success for an already-paid
// appointment is a no-op. A missing appointment is logged and ignored. The
// inbox claim shares the state-change transaction, so a failure rolls both
// back and the provider's retry is reprocessed.
func (s *Service) ConfirmPayment(ctx context.Context, evt ProviderEvent, paymentIntentID, chargeID string) error {
	var confirmed *model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		if evt.EventID != "" {
			fresh, err := tx.RecordInboxEvent(ctx, evt.EventID, evt.EventType)
			if err != nil {
				return err
			}
			if !fresh {
				return ErrDuplicateEvent
			}
		}

		appt, found, err := tx.GetByPaymentIntentForUpdate(ctx, paymentIntentID)
		if err != nil {
			return err
		}
		if !found {
			s.logger.Warn("payment success for unknown appointment", "payment_intent_id", paymentIntentID)
			return nil
		}
		if appt.PaymentStatus == model.PaymentPaid || appt.PaymentStatus == model.PaymentRefunded {
			return nil
		}

		status := appt.Status
		if status == model.StatusPending {
			status = model.StatusConfirmed
		}
		if err := tx.SetPaymentOutcome(ctx, appt.ID, model.PaymentPaid, chargeID, status); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id":    appt.ID,
			"tenant_id":         appt.TenantID,
			"payment_intent_id": paymentIntentID,
			"charge_id":         chargeID,
			"amount_cents":      appt.AmountCents,
			"currency":          appt.Currency,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.TopicPaymentConfirmed,
			Payload:       payload,
		}); err != nil {
			return err
		}

		appt.PaymentStatus = model.PaymentPaid
		appt.ChargeID = chargeID
		appt.Status = status
		confirmed = &appt
		return nil
	})
	if err != nil || confirmed == nil {
		return err
	}

	s.notifyPayment(ctx, *confirmed, true)
	return nil
}

// FailPayment records a failed online payment. The appointment stays pending
// so the client can retry. A success that already landed wins over a late
// failure event. Replayed delivery ids are rejected with ErrDuplicateEvent.
func (s *Service) FailPayment(ctx context.Context, evt ProviderEvent, paymentIntentID string) error {
	var failed *model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		if evt.EventID != "" {
			fresh, err := tx.RecordInboxEvent(ctx, evt.EventID, evt.EventType)
			if err != nil {
				return err
			}
			if !fresh {
				return ErrDuplicateEvent
			}
		}

		appt, found, err := tx.GetByPaymentIntentForUpdate(ctx, paymentIntentID)
		if err != nil {
			return err
		}
		if !found {
			s.logger.Warn("payment failure for unknown appointment", "payment_intent_id", paymentIntentID)
			return nil
		}
		if appt.PaymentStatus == model.PaymentPaid || appt.PaymentStatus == model.PaymentRefunded {
			return nil
		}
		if appt.PaymentStatus == model.PaymentFailed {
			return nil
		}

		if err := tx.SetPaymentOutcome(ctx, appt.ID, model.PaymentFailed, "", appt.Status); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id":    appt.ID,
			"tenant_id":         appt.TenantID,
			"payment_intent_id": paymentIntentID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.TopicPaymentFailed,
			Payload:       payload,
		}); err != nil {
			return err
		}

		appt.PaymentStatus = model.PaymentFailed
		failed = &appt
		return nil
	})
	if err != nil || failed == nil {
		return err
	}

	s.notifyPayment(ctx, *failed, false)
	return nil
}

type CancelRequest struct {
	TenantID      string
	AppointmentID string
	RequesterID   string
	RequesterRole model.UserRole
	Reason        string
}

type CancelResult struct {
	Appointment  model.Appointment
	RefundCents  int64
	RefundIssued bool
}

// Cancel runs the full cancellation path: eligibility checks, refund per
// policy, state transition, notification. A gateway refund failure is
// recorded but never blocks the cancellation itself.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return CancelResult{}, ErrTenantRequired
	}
	if req.AppointmentID == "" {
		return CancelResult{}, fmt.Errorf("%w: appointment_id is required", ErrValidation)
	}

	pol, err := s.policies.Get(ctx, req.TenantID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("load tenant policy: %w", err)
	}

	var result CancelResult
	err = s.store.InTx(ctx, func(tx Tx) error {
		appt, found, err := tx.GetAppointmentForUpdate(ctx, req.TenantID, req.AppointmentID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: appointment", ErrNotFound)
		}
		if appt.Status == model.StatusCancelled {
			return ErrAlreadyCancelled
		}

		now := s.now()
		if !appt.StartTime.After(now) {
			return ErrPastAppointment
		}
		if !pol.Cancellation.Allowed {
			return ErrCancellationNotAllowed
		}
		if now.After(pol.CancellationDeadline(appt.StartTime)) {
			return fmt.Errorf("%w: cancellations must be made at least %d hours before the appointment", ErrDeadlinePassed, pol.Cancellation.DeadlineHours)
		}
		if req.RequesterRole != model.RoleAdmin && req.RequesterID != appt.ClientID && req.RequesterID != appt.ProviderID {
			return ErrNotAuthorized
		}

		refundCents := int64(0)
		refundIssued := false
		refundReason := ""
		payStatus := appt.PaymentStatus
		if appt.PaymentMethod == model.PaymentOnline && appt.PaymentStatus == model.PaymentPaid {
			refundCents = RefundAmount(pol.Cancellation, appt.AmountCents)
			switch {
			case refundCents == 0:
				refundReason = "no refund per cancellation policy"
			case s.gateway == nil || appt.ChargeID == "":
				refundReason = "refund failed: payment provider unavailable"
				s.logger.Error("refund skipped, gateway unavailable", "appointment_id", appt.ID)
			default:
				refundID, err := s.gateway.Refund(ctx, appt.ChargeID, refundCents, map[string]string{
					"appointment_id": appt.ID,
					"tenant_id":      appt.TenantID,
				})
				if err != nil {
					// Cancellation proceeds; the refund outcome is recorded as failed.
					refundReason = "refund failed: " + err.Error()
					s.logger.Error("refund failed", "err", err, "appointment_id", appt.ID)
				} else {
					refundIssued = true
					payStatus = model.PaymentRefunded
					refundReason = fmt.Sprintf("%s refund per cancellation policy (%s)", pol.Cancellation.RefundPolicy, refundID)
				}
			}
		}

		recordedRefund := refundCents
		if !refundIssued {
			recordedRefund = 0
		}
		cancelledAt, err := tx.CancelAppointment(ctx, Cancellation{
			TenantID:      req.TenantID,
			AppointmentID: appt.ID,
			Reason:        strings.TrimSpace(req.Reason),
			RefundCents:   recordedRefund,
			RefundReason:  refundReason,
			PaymentStatus: payStatus,
		})
		if err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"tenant_id":      appt.TenantID,
			"provider_id":    appt.ProviderID,
			"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
			"reason":         req.Reason,
			"refund_cents":   recordedRefund,
			"refund_issued":  refundIssued,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.TopicAppointmentCancelled,
			Payload:       payload,
		}); err != nil {
			return err
		}

		appt.Status = model.StatusCancelled
		appt.CancelledAt = &cancelledAt
		appt.CancelReason = strings.TrimSpace(req.Reason)
		appt.PaymentStatus = payStatus
		appt.RefundCents = recordedRefund
		appt.RefundReason = refundReason
		result = CancelResult{Appointment: appt, RefundCents: recordedRefund, RefundIssued: refundIssued}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	s.notifyCancellation(ctx, result)
	return result, nil
}

// Complete marks a confirmed appointment as completed once it has started.
// Provider or admin only.
func (s *Service) Complete(ctx context.Context, tenantID, appointmentID, requesterID string, role model.UserRole) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantRequired
	}
	return s.store.InTx(ctx, func(tx Tx) error {
		appt, found, err := tx.GetAppointmentForUpdate(ctx, tenantID, appointmentID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: appointment", ErrNotFound)
		}
		if appt.Status == model.StatusCancelled {
			return ErrAlreadyCancelled
		}
		if appt.Status != model.StatusConfirmed {
			return fmt.Errorf("%w: only confirmed appointments can be completed", ErrValidation)
		}
		if appt.StartTime.After(s.now()) {
			return fmt.Errorf("%w: appointment has not started yet", ErrValidation)
		}
		if role != model.RoleAdmin && requesterID != appt.ProviderID {
			return ErrNotAuthorized
		}
		return tx.CompleteAppointment(ctx, tenantID, appointmentID)
	})
}

func (s *Service) notifyContext(ctx context.Context, appt model.Appointment, serviceName, providerName string) notify.Context {
	tenantName, err := s.store.GetTenantName(ctx, appt.TenantID)
	if err != nil || tenantName == "" {
		tenantName = appt.TenantID
	}
	clientName := ""
	if client, found, err := s.store.GetUser(ctx, appt.TenantID, appt.ClientID); err == nil && found {
		clientName = client.Name
	}
	return notify.Context{
		TenantName:   tenantName,
		ServiceName:  serviceName,
		ProviderName: providerName,
		ClientName:   clientName,
		StartTime:    appt.StartTime,
		EndTime:      appt.EndTime,
		AmountCents:  appt.AmountCents,
		Currency:     appt.Currency,
		RefundCents:  appt.RefundCents,
		Reason:       appt.CancelReason,
	}
}

func (s *Service) notifyPayment(ctx context.Context, appt model.Appointment, success bool) {
	client, found, err := s.store.GetUser(ctx, appt.TenantID, appt.ClientID)
	if err != nil || !found || client.Email == "" {
		return
	}
	serviceName, providerName := s.lookupNames(ctx, appt)
	nc := s.notifyContext(ctx, appt, serviceName, providerName)
	if success {
		err = s.notifier.SendPaymentConfirmation(ctx, client.Email, nc)
	} else {
		err = s.notifier.SendPaymentFailure(ctx, client.Email, nc)
	}
	if err != nil {
		s.logger.Warn("payment notification failed", "err", err, "appointment_id", appt.ID)
	}
}

func (s *Service) notifyCancellation(ctx context.Context, result CancelResult) {
	appt := result.Appointment
	client, found, err := s.store.GetUser(ctx, appt.TenantID, appt.ClientID)
	if err != nil || !found || client.Email == "" {
		return
	}
	serviceName, providerName := s.lookupNames(ctx, appt)
	nc := s.notifyContext(ctx, appt, serviceName, providerName)
	if err := s.notifier.SendCancellation(ctx, client.Email, nc); err != nil {
		s.logger.Warn("cancellation notification failed", "err", err, "appointment_id", appt.ID)
	}
}

func (s *Service) lookupNames(ctx context.Context, appt model.Appointment) (serviceName, providerName string) {
	if svc, found, err := s.store.GetService(ctx, appt.TenantID, appt.ServiceID); err == nil && found {
		serviceName = svc.Name
	}
	if provider, found, err := s.store.GetProvider(ctx, appt.TenantID, appt.ProviderID); err == nil && found {
		providerName = provider.Name
	}
	return serviceName, providerName
}
