package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/outbox"
	"github.com/mhasan-dev/bookline/internal/policy"
)

var testNow = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC) // Monday

type testEnv struct {
	svc     *Service
	store   *memStore
	gateway *fakeGateway
	pol     *policy.Policy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	store.tenants["t1"] = "Acme Salon"
	store.services["svc1"] = model.Service{
		ID: "svc1", TenantID: "t1", Name: "Haircut",
		DurationMins: 60, PriceCents: 20000, Currency: "usd", IsActive: true,
	}
	store.users["prov1"] = model.User{
		ID: "prov1", TenantID: "t1", Name: "Dana", Email: "dana@acme.test",
		Role: model.RoleProvider, IsActive: true,
	}

	pol := policy.Default()
	gateway := &fakeGateway{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policies := &mutablePolicies{pol: &pol}
	svc := NewService(store, policies, gateway, nil, nil, logger).
		WithClock(func() time.Time { return testNow })
	return &testEnv{svc: svc, store: store, gateway: gateway, pol: &pol}
}

type mutablePolicies struct {
	pol *policy.Policy
}

func (p *mutablePolicies) Get(ctx context.Context, tenantID string) (policy.Policy, error) {
	return *p.pol, nil
}

func baseCreate(start time.Time) CreateRequest {
	return CreateRequest{
		TenantID:      "t1",
		ServiceID:     "svc1",
		ProviderID:    "prov1",
		StartTime:     start,
		ClientName:    "Pat Lee",
		ClientEmail:   "pat@example.test",
		PaymentMethod: model.PaymentCash,
	}
}

func TestCreateInitialStatus(t *testing.T) {
	start := testNow.Add(48 * time.Hour)

	t.Run("cash without confirmation is confirmed", func(t *testing.T) {
		env := newTestEnv(t)
		res, err := env.svc.Create(context.Background(), baseCreate(start))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if res.Appointment.Status != model.StatusConfirmed {
			t.Fatalf("status = %s, want confirmed", res.Appointment.Status)
		}
		if res.Appointment.PaymentStatus != model.PaymentPending {
			t.Fatalf("payment status = %s, want pending", res.Appointment.PaymentStatus)
		}
		if res.ClientSecret != "" {
			t.Fatalf("cash booking should carry no client secret")
		}
		if res.Appointment.EndTime != start.Add(60*time.Minute) {
			t.Fatalf("end time = %v, want start + service duration", res.Appointment.EndTime)
		}
	})

	t.Run("cash with required confirmation is pending", func(t *testing.T) {
		env := newTestEnv(t)
		env.pol.Booking.RequireConfirmation = true
		res, err := env.svc.Create(context.Background(), baseCreate(start))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if res.Appointment.Status != model.StatusPending {
			t.Fatalf("status = %s, want pending", res.Appointment.Status)
		}
	})

	t.Run("online is always pending", func(t *testing.T) {
		env := newTestEnv(t)
		req := baseCreate(start)
		req.PaymentMethod = model.PaymentOnline
		res, err := env.svc.Create(context.Background(), req)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if res.Appointment.Status != model.StatusPending {
			t.Fatalf("status = %s, want pending", res.Appointment.Status)
		}
		if res.ClientSecret == "" {
			t.Fatalf("online booking should return a client secret")
		}
		if res.Appointment.AmountCents != 20000 {
			t.Fatalf("amount = %d, want service price 20000", res.Appointment.AmountCents)
		}
		if res.Appointment.PaymentIntentID == "" {
			t.Fatalf("online booking should record the payment intent")
		}
	})
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	start := testNow.Add(48 * time.Hour)

	cases := []struct {
		name    string
		mutate  func(*CreateRequest)
		wantErr error
	}{
		{"missing tenant", func(r *CreateRequest) { r.TenantID = "" }, ErrTenantRequired},
		{"missing service", func(r *CreateRequest) { r.ServiceID = "" }, ErrValidation},
		{"bad email", func(r *CreateRequest) { r.ClientEmail = "not-an-email" }, ErrValidation},
		{"unknown service", func(r *CreateRequest) { r.ServiceID = "nope" }, ErrNotFound},
		{"unknown provider", func(r *CreateRequest) { r.ProviderID = "nope" }, ErrNotFound},
		{"start in the past", func(r *CreateRequest) { r.StartTime = testNow.Add(-time.Hour) }, ErrValidation},
		{"start exactly now", func(r *CreateRequest) { r.StartTime = testNow }, ErrValidation},
		{"bad payment method", func(r *CreateRequest) { r.PaymentMethod = "barter" }, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := baseCreate(start)
			tc.mutate(&req)
			if _, err := env.svc.Create(context.Background(), req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateMaxAdvance(t *testing.T) {
	env := newTestEnv(t)
	env.pol.Booking.MaxAdvanceDays = 30

	inside := baseCreate(testNow.AddDate(0, 0, 29))
	if _, err := env.svc.Create(context.Background(), inside); err != nil {
		t.Fatalf("booking 29 days out should succeed: %v", err)
	}

	outside := baseCreate(testNow.AddDate(0, 0, 31))
	if _, err := env.svc.Create(context.Background(), outside); !errors.Is(err, ErrValidation) {
		t.Fatalf("booking 31 days out: err = %v, want validation error", err)
	}
}

func TestCreateBookingDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.pol.Booking.OnlineBookingEnabled = false
	_, err := env.svc.Create(context.Background(), baseCreate(testNow.Add(48*time.Hour)))
	if !errors.Is(err, ErrBookingDisabled) {
		t.Fatalf("err = %v, want ErrBookingDisabled", err)
	}
}

func TestCreateConflict(t *testing.T) {
	env := newTestEnv(t)
	start := testNow.Add(48 * time.Hour)

	if _, err := env.svc.Create(context.Background(), baseCreate(start)); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	overlapping := baseCreate(start.Add(30 * time.Minute))
	overlapping.ClientEmail = "other@example.test"
	if _, err := env.svc.Create(context.Background(), overlapping); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("overlapping booking: err = %v, want ErrSlotUnavailable", err)
	}

	// Back to back is fine: intervals are half-open.
	adjacent := baseCreate(start.Add(60 * time.Minute))
	adjacent.ClientEmail = "third@example.test"
	if _, err := env.svc.Create(context.Background(), adjacent); err != nil {
		t.Fatalf("adjacent booking: %v", err)
	}
}

func TestCreateCancelledDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	start := testNow.Add(48 * time.Hour)

	res, err := env.svc.Create(context.Background(), baseCreate(start))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err = env.svc.Cancel(context.Background(), CancelRequest{
		TenantID:      "t1",
		AppointmentID: res.Appointment.ID,
		RequesterID:   res.Appointment.ClientID,
		RequesterRole: model.RoleClient,
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rebook := baseCreate(start)
	rebook.ClientEmail = "other@example.test"
	if _, err := env.svc.Create(context.Background(), rebook); err != nil {
		t.Fatalf("rebooking a cancelled slot should succeed: %v", err)
	}
}

func TestCreateIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	req := baseCreate(testNow.Add(48 * time.Hour))
	req.IdempotencyKey = "key-1"

	first, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("replayed create: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("second create should be a replay")
	}
	if second.Appointment.ID != first.Appointment.ID {
		t.Fatalf("replay returned %s, want %s", second.Appointment.ID, first.Appointment.ID)
	}
	if len(env.store.appts) != 1 {
		t.Fatalf("stored %d appointments, want 1", len(env.store.appts))
	}
}

func TestCreateIntentFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.failIntent = true
	req := baseCreate(testNow.Add(48 * time.Hour))
	req.PaymentMethod = model.PaymentOnline
	if _, err := env.svc.Create(context.Background(), req); !errors.Is(err, ErrPaymentUnavailable) {
		t.Fatalf("err = %v, want ErrPaymentUnavailable", err)
	}
	if len(env.store.appts) != 0 {
		t.Fatalf("no appointment should be stored when the intent fails")
	}
}

// paidAppointment books online and confirms payment, returning the result.
func paidAppointment(t *testing.T, env *testEnv, start time.Time) model.Appointment {
	t.Helper()
	req := baseCreate(start)
	req.PaymentMethod = model.PaymentOnline
	res, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	evt := ProviderEvent{EventID: "evt_paid_" + res.Appointment.ID, EventType: "payment_intent.succeeded"}
	if err := env.svc.ConfirmPayment(context.Background(), evt, res.Appointment.PaymentIntentID, "ch_1"); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	appt := env.store.appts[res.Appointment.ID]
	return *appt
}

func TestCancelRefundPolicies(t *testing.T) {
	start := testNow.Add(72 * time.Hour)

	t.Run("full refund", func(t *testing.T) {
		env := newTestEnv(t)
		appt := paidAppointment(t, env, start)
		res, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: appt.ID,
			RequesterID: appt.ClientID, RequesterRole: model.RoleClient,
			Reason: "schedule change",
		})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if !res.RefundIssued || res.RefundCents != 20000 {
			t.Fatalf("refund = %d issued=%v, want full 20000", res.RefundCents, res.RefundIssued)
		}
		if res.Appointment.PaymentStatus != model.PaymentRefunded {
			t.Fatalf("payment status = %s, want refunded", res.Appointment.PaymentStatus)
		}
		if got := env.gateway.refunds; len(got) != 1 || got[0] != 20000 {
			t.Fatalf("gateway refunds = %v, want [20000]", got)
		}
	})

	t.Run("partial refund", func(t *testing.T) {
		env := newTestEnv(t)
		env.pol.Cancellation.RefundPolicy = policy.RefundPartial
		env.pol.Cancellation.PartialRefundPct = 50
		appt := paidAppointment(t, env, start)
		res, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: appt.ID,
			RequesterID: appt.ClientID, RequesterRole: model.RoleClient,
		})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if res.RefundCents != 10000 {
			t.Fatalf("refund = %d, want 10000", res.RefundCents)
		}
	})

	t.Run("no refund", func(t *testing.T) {
		env := newTestEnv(t)
		env.pol.Cancellation.RefundPolicy = policy.RefundNone
		appt := paidAppointment(t, env, start)
		res, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: appt.ID,
			RequesterID: appt.ClientID, RequesterRole: model.RoleClient,
		})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if res.RefundIssued || res.RefundCents != 0 {
			t.Fatalf("refund = %d issued=%v, want none", res.RefundCents, res.RefundIssued)
		}
		if res.Appointment.Status != model.StatusCancelled {
			t.Fatalf("status = %s, want cancelled", res.Appointment.Status)
		}
		// Payment stays paid; nothing was returned.
		if res.Appointment.PaymentStatus != model.PaymentPaid {
			t.Fatalf("payment status = %s, want paid", res.Appointment.PaymentStatus)
		}
	})
}

func TestCancelRefundFailureStillCancels(t *testing.T) {
	env := newTestEnv(t)
	appt := paidAppointment(t, env, testNow.Add(72*time.Hour))
	env.gateway.failRefund = true

	res, err := env.svc.Cancel(context.Background(), CancelRequest{
		TenantID: "t1", AppointmentID: appt.ID,
		RequesterID: appt.ClientID, RequesterRole: model.RoleClient,
	})
	if err != nil {
		t.Fatalf("cancel must not fail when the refund fails: %v", err)
	}
	if res.Appointment.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", res.Appointment.Status)
	}
	if res.RefundIssued {
		t.Fatalf("refund should be recorded as not issued")
	}
	if res.Appointment.PaymentStatus != model.PaymentPaid {
		t.Fatalf("payment status = %s, want paid (refund did not happen)", res.Appointment.PaymentStatus)
	}
	if res.Appointment.RefundReason == "" {
		t.Fatalf("refund failure should be recorded in the refund reason")
	}
}

func TestCancelRejections(t *testing.T) {
	start := testNow.Add(72 * time.Hour)

	t.Run("unknown appointment", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: "nope",
			RequesterRole: model.RoleAdmin,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		env := newTestEnv(t)
		res, _ := env.svc.Create(context.Background(), baseCreate(start))
		req := CancelRequest{TenantID: "t1", AppointmentID: res.Appointment.ID, RequesterRole: model.RoleAdmin}
		if _, err := env.svc.Cancel(context.Background(), req); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		if _, err := env.svc.Cancel(context.Background(), req); !errors.Is(err, ErrAlreadyCancelled) {
			t.Fatalf("err = %v, want ErrAlreadyCancelled", err)
		}
	})

	t.Run("cancellations disallowed", func(t *testing.T) {
		env := newTestEnv(t)
		res, _ := env.svc.Create(context.Background(), baseCreate(start))
		env.pol.Cancellation.Allowed = false
		_, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: res.Appointment.ID, RequesterRole: model.RoleAdmin,
		})
		if !errors.Is(err, ErrCancellationNotAllowed) {
			t.Fatalf("err = %v, want ErrCancellationNotAllowed", err)
		}
	})

	t.Run("inside the deadline", func(t *testing.T) {
		env := newTestEnv(t)
		// 24h deadline; 12h out is too late.
		res, _ := env.svc.Create(context.Background(), baseCreate(testNow.Add(12*time.Hour)))
		_, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: res.Appointment.ID, RequesterRole: model.RoleAdmin,
		})
		if !errors.Is(err, ErrDeadlinePassed) {
			t.Fatalf("err = %v, want ErrDeadlinePassed", err)
		}
	})

	t.Run("stranger may not cancel", func(t *testing.T) {
		env := newTestEnv(t)
		res, _ := env.svc.Create(context.Background(), baseCreate(start))
		_, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: res.Appointment.ID,
			RequesterID: "someone-else", RequesterRole: model.RoleClient,
		})
		if !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("err = %v, want ErrNotAuthorized", err)
		}
	})

	t.Run("provider may cancel", func(t *testing.T) {
		env := newTestEnv(t)
		res, _ := env.svc.Create(context.Background(), baseCreate(start))
		_, err := env.svc.Cancel(context.Background(), CancelRequest{
			TenantID: "t1", AppointmentID: res.Appointment.ID,
			RequesterID: "prov1", RequesterRole: model.RoleProvider,
		})
		if err != nil {
			t.Fatalf("provider cancel: %v", err)
		}
	})
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	env := newTestEnv(t)
	req := baseCreate(testNow.Add(48 * time.Hour))
	req.PaymentMethod = model.PaymentOnline
	res, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intentID := res.Appointment.PaymentIntentID

	succeeded := func(id string) ProviderEvent {
		return ProviderEvent{EventID: id, EventType: "payment_intent.succeeded"}
	}

	if err := env.svc.ConfirmPayment(context.Background(), succeeded("evt_1"), intentID, "ch_1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	appt := env.store.appts[res.Appointment.ID]
	if appt.Status != model.StatusConfirmed || appt.PaymentStatus != model.PaymentPaid {
		t.Fatalf("after confirm: status=%s payment=%s", appt.Status, appt.PaymentStatus)
	}
	if appt.ChargeID != "ch_1" {
		t.Fatalf("charge id = %q, want ch_1", appt.ChargeID)
	}

	// A distinct delivery for an already-paid intent is a no-op.
	if err := env.svc.ConfirmPayment(context.Background(), succeeded("evt_2"), intentID, "ch_1"); err != nil {
		t.Fatalf("replayed confirm: %v", err)
	}
	if n := env.store.eventCount(outbox.TopicPaymentConfirmed); n != 1 {
		t.Fatalf("payment confirmed events = %d, want 1", n)
	}

	// Unknown intent: logged and ignored.
	if err := env.svc.ConfirmPayment(context.Background(), succeeded("evt_3"), "pi_unknown", "ch_x"); err != nil {
		t.Fatalf("unknown intent: %v", err)
	}
}

func TestConfirmPaymentDuplicateDelivery(t *testing.T) {
	env := newTestEnv(t)
	req := baseCreate(testNow.Add(48 * time.Hour))
	req.PaymentMethod = model.PaymentOnline
	res, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intentID := res.Appointment.PaymentIntentID
	evt := ProviderEvent{EventID: "evt_dup", EventType: "payment_intent.succeeded"}

	if err := env.svc.ConfirmPayment(context.Background(), evt, intentID, "ch_1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := env.svc.ConfirmPayment(context.Background(), evt, intentID, "ch_1"); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("redelivered event id: err = %v, want ErrDuplicateEvent", err)
	}
	if n := env.store.eventCount(outbox.TopicPaymentConfirmed); n != 1 {
		t.Fatalf("payment confirmed events = %d, want 1", n)
	}
}

func TestConfirmPaymentRetryAfterTransientFailure(t *testing.T) {
	env := newTestEnv(t)
	req := baseCreate(testNow.Add(48 * time.Hour))
	req.PaymentMethod = model.PaymentOnline
	res, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intentID := res.Appointment.PaymentIntentID
	evt := ProviderEvent{EventID: "evt_retry", EventType: "payment_intent.succeeded"}

	env.store.failOutcomeOnce = true
	if err := env.svc.ConfirmPayment(context.Background(), evt, intentID, "ch_1"); err == nil {
		t.Fatal("expected the transient statement failure to surface")
	}
	appt := env.store.appts[res.Appointment.ID]
	if appt.PaymentStatus != model.PaymentPending || appt.Status != model.StatusPending {
		t.Fatalf("after failed delivery: status=%s payment=%s, want both pending", appt.Status, appt.PaymentStatus)
	}

	// The rollback released the delivery-id claim, so the retry of the same
	// event must apply the payment instead of being dropped as a duplicate.
	if err := env.svc.ConfirmPayment(context.Background(), evt, intentID, "ch_1"); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
	appt = env.store.appts[res.Appointment.ID]
	if appt.PaymentStatus != model.PaymentPaid || appt.Status != model.StatusConfirmed {
		t.Fatalf("after retry: status=%s payment=%s, want confirmed/paid", appt.Status, appt.PaymentStatus)
	}
	if n := env.store.eventCount(outbox.TopicPaymentConfirmed); n != 1 {
		t.Fatalf("payment confirmed events = %d, want 1", n)
	}
}

func TestFailPaymentAfterSuccessIgnored(t *testing.T) {
	env := newTestEnv(t)
	req := baseCreate(testNow.Add(48 * time.Hour))
	req.PaymentMethod = model.PaymentOnline
	res, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intentID := res.Appointment.PaymentIntentID

	confirmEvt := ProviderEvent{EventID: "evt_ok", EventType: "payment_intent.succeeded"}
	if err := env.svc.ConfirmPayment(context.Background(), confirmEvt, intentID, "ch_1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	failEvt := ProviderEvent{EventID: "evt_late", EventType: "payment_intent.payment_failed"}
	if err := env.svc.FailPayment(context.Background(), failEvt, intentID); err != nil {
		t.Fatalf("late failure: %v", err)
	}
	appt := env.store.appts[res.Appointment.ID]
	if appt.PaymentStatus != model.PaymentPaid {
		t.Fatalf("payment status = %s, a late failure must not override success", appt.PaymentStatus)
	}
}

func TestFailPaymentKeepsAppointmentPending(t *testing.T) {
	env := newTestEnv(t)
	req := baseCreate(testNow.Add(48 * time.Hour))
	req.PaymentMethod = model.PaymentOnline
	res, err := env.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	failEvt := ProviderEvent{EventID: "evt_fail", EventType: "payment_intent.payment_failed"}
	if err := env.svc.FailPayment(context.Background(), failEvt, res.Appointment.PaymentIntentID); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	appt := env.store.appts[res.Appointment.ID]
	if appt.PaymentStatus != model.PaymentFailed {
		t.Fatalf("payment status = %s, want failed", appt.PaymentStatus)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("status = %s, failed payment keeps the appointment pending for retry", appt.Status)
	}
}

func TestComplete(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Create(context.Background(), baseCreate(testNow.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = env.svc.Complete(context.Background(), "t1", res.Appointment.ID, "prov1", model.RoleProvider)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("completing before start: err = %v, want validation error", err)
	}

	env.svc.WithClock(func() time.Time { return testNow.Add(50 * time.Hour) })

	err = env.svc.Complete(context.Background(), "t1", res.Appointment.ID, "someone-else", model.RoleClient)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("client completing: err = %v, want ErrNotAuthorized", err)
	}

	if err := env.svc.Complete(context.Background(), "t1", res.Appointment.ID, "prov1", model.RoleProvider); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := env.store.appts[res.Appointment.ID].Status; got != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	start := testNow.Add(48 * time.Hour)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := baseCreate(start)
			req.ClientEmail = "client" + string(rune('a'+n)) + "@example.test"
			_, errs[n] = env.svc.Create(context.Background(), req)
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != workers-1 {
		t.Fatalf("wins=%d losses=%d, want exactly one winner", wins, losses)
	}
	if len(env.store.appts) != 1 {
		t.Fatalf("stored %d appointments, want 1", len(env.store.appts))
	}
}
