package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/outbox"
	"github.com/mhasan-dev/bookline/internal/payments"
)

// memStore is an in-memory Store. The mutex serializes InTx so the
// conflict-check-then-insert sequence is atomic, like a real transaction
// with an exclusion constraint.
type memStore struct {
	mu       sync.Mutex
	services map[string]model.Service
	users    map[string]model.User
	tenants  map[string]string
	appts    map[string]*model.Appointment
	idem     map[string]string
	inbox    map[string]bool
	events   []outbox.Event
	calRefs  map[string]string

	// failOutcomeOnce makes the next SetPaymentOutcome fail, simulating a
	// transient statement error inside an open transaction.
	failOutcomeOnce bool
}

func newMemStore() *memStore {
	return &memStore{
		services: map[string]model.Service{},
		users:    map[string]model.User{},
		tenants:  map[string]string{},
		appts:    map[string]*model.Appointment{},
		idem:     map[string]string{},
		inbox:    map[string]bool{},
		calRefs:  map[string]string{},
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapAppts := make(map[string]*model.Appointment, len(s.appts))
	for id, a := range s.appts {
		cp := *a
		snapAppts[id] = &cp
	}
	snapUsers := make(map[string]model.User, len(s.users))
	for id, u := range s.users {
		snapUsers[id] = u
	}
	snapIdem := make(map[string]string, len(s.idem))
	for k, v := range s.idem {
		snapIdem[k] = v
	}
	snapInbox := make(map[string]bool, len(s.inbox))
	for k, v := range s.inbox {
		snapInbox[k] = v
	}
	snapEvents := len(s.events)

	if err := fn(&memTx{s: s}); err != nil {
		s.appts = snapAppts
		s.users = snapUsers
		s.idem = snapIdem
		s.inbox = snapInbox
		s.events = s.events[:snapEvents]
		return err
	}
	return nil
}

func (s *memStore) GetService(ctx context.Context, tenantID, serviceID string) (model.Service, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.TenantID != tenantID {
		return model.Service{}, false, nil
	}
	return svc, true, nil
}

func (s *memStore) GetProvider(ctx context.Context, tenantID, providerID string) (model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[providerID]
	if !ok || u.TenantID != tenantID || u.Role != model.RoleProvider {
		return model.User{}, false, nil
	}
	return u, true, nil
}

func (s *memStore) GetUser(ctx context.Context, tenantID, userID string) (model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return model.User{}, false, nil
	}
	return u, true, nil
}

func (s *memStore) GetTenantName(ctx context.Context, tenantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenants[tenantID], nil
}

func (s *memStore) SetCalendarEvent(ctx context.Context, tenantID, appointmentID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calRefs[appointmentID] = eventID
	return nil
}

func (s *memStore) eventCount(eventType string) int {
	n := 0
	for _, e := range s.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type memTx struct {
	s *memStore
}

func (t *memTx) LockIdempotency(ctx context.Context, tenantID, key string) (string, bool, error) {
	id, ok := t.s.idem[tenantID+"|"+key]
	return id, ok, nil
}

func (t *memTx) FinalizeIdempotency(ctx context.Context, tenantID, key, appointmentID string) error {
	t.s.idem[tenantID+"|"+key] = appointmentID
	return nil
}

func (t *memTx) ResolveClient(ctx context.Context, tenantID, name, email, phone string) (model.User, error) {
	for _, u := range t.s.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	u := model.User{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Email:    email,
		Phone:    phone,
		Role:     model.RoleClient,
		IsActive: true,
	}
	t.s.users[u.ID] = u
	return u, nil
}

func (t *memTx) HasConflict(ctx context.Context, tenantID, providerID string, start, end time.Time, excludeID string) (bool, error) {
	for _, a := range t.s.appts {
		if a.TenantID != tenantID || a.ProviderID != providerID || a.ID == excludeID {
			continue
		}
		if !a.Blocking() {
			continue
		}
		if a.StartTime.Before(end) && start.Before(a.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	conflict, _ := t.HasConflict(ctx, appt.TenantID, appt.ProviderID, appt.StartTime, appt.EndTime, appt.ID)
	if conflict {
		return ErrSlotUnavailable
	}
	appt.CreatedAt = time.Now().UTC()
	cp := *appt
	t.s.appts[appt.ID] = &cp
	return nil
}

func (t *memTx) GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, bool, error) {
	a, ok := t.s.appts[appointmentID]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, false, nil
	}
	return *a, true, nil
}

func (t *memTx) GetByPaymentIntentForUpdate(ctx context.Context, paymentIntentID string) (model.Appointment, bool, error) {
	for _, a := range t.s.appts {
		if a.PaymentIntentID == paymentIntentID {
			return *a, true, nil
		}
	}
	return model.Appointment{}, false, nil
}

func (t *memTx) RecordInboxEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	if t.s.inbox[eventID] {
		return false, nil
	}
	t.s.inbox[eventID] = true
	return true, nil
}

func (t *memTx) SetPaymentOutcome(ctx context.Context, appointmentID string, paymentStatus model.PaymentStatus, chargeID string, status model.AppointmentStatus) error {
	if t.s.failOutcomeOnce {
		t.s.failOutcomeOnce = false
		return errors.New("connection reset by peer")
	}
	a, ok := t.s.appts[appointmentID]
	if !ok {
		return errors.New("appointment not found")
	}
	a.PaymentStatus = paymentStatus
	if chargeID != "" {
		a.ChargeID = chargeID
	}
	a.Status = status
	return nil
}

func (t *memTx) CancelAppointment(ctx context.Context, c Cancellation) (time.Time, error) {
	a, ok := t.s.appts[c.AppointmentID]
	if !ok || a.TenantID != c.TenantID {
		return time.Time{}, errors.New("appointment not found")
	}
	now := time.Now().UTC()
	a.Status = model.StatusCancelled
	a.CancelledAt = &now
	a.CancelReason = c.Reason
	a.RefundCents = c.RefundCents
	a.RefundReason = c.RefundReason
	a.PaymentStatus = c.PaymentStatus
	return now, nil
}

func (t *memTx) CompleteAppointment(ctx context.Context, tenantID, appointmentID string) error {
	a, ok := t.s.appts[appointmentID]
	if !ok || a.TenantID != tenantID {
		return errors.New("appointment not found")
	}
	a.Status = model.StatusCompleted
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	t.s.events = append(t.s.events, evt)
	return nil
}

// fakeGateway records intents and refunds; failRefund makes Refund error.
type fakeGateway struct {
	mu         sync.Mutex
	intents    int
	refunds    []int64
	failRefund bool
	failIntent bool
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failIntent {
		return payments.Intent{}, errors.New("stripe is down")
	}
	g.intents++
	id := fmt.Sprintf("pi_%d", g.intents)
	return payments.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, chargeID string, amountCents int64, metadata map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefund {
		return "", errors.New("refund declined")
	}
	g.refunds = append(g.refunds, amountCents)
	return fmt.Sprintf("re_%d", len(g.refunds)), nil
}
