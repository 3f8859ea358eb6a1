package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/recurring"
	"github.com/mhasan-dev/bookline/internal/storage"
)

// Handler wires the HTTP surface to the domain services. Routes under
// /api/v1/public/ are unauthenticated; the rest expect the edge proxy to have
// established identity in X-User-ID / X-User-Role.
type Handler struct {
	bookings *booking.Service
	expander *recurring.Expander
	repo     *storage.Repository
	policies *storage.PolicyRepository
	logger   *slog.Logger

	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

func New(bookings *booking.Service, expander *recurring.Expander, repo *storage.Repository, policies *storage.PolicyRepository, logger *slog.Logger, stripeWebhookSecret string, stripeWebhookTolerance time.Duration) *Handler {
	if stripeWebhookTolerance <= 0 {
		stripeWebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		bookings:               bookings,
		expander:               expander,
		repo:                   repo,
		policies:               policies,
		logger:                 logger,
		stripeWebhookSecret:    stripeWebhookSecret,
		stripeWebhookTolerance: stripeWebhookTolerance,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/book", h.Create)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", h.Complete)
	mux.HandleFunc("/api/v1/webhooks/stripe", h.StripeWebhook)
	mux.HandleFunc("/api/v1/settings/policy", h.Policy)
	mux.HandleFunc("/api/v1/recurring", h.CreateRecurring)
	mux.HandleFunc("/api/v1/recurring/deactivate", h.DeactivateRecurring)
	mux.HandleFunc("/api/v1/waitlist", h.Waitlist)
	mux.HandleFunc("/api/v1/waitlist/status", h.UpdateWaitlistStatus)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the lifecycle error taxonomy onto HTTP statuses, keeping
// the specific message so the caller knows what to fix.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation),
		errors.Is(err, booking.ErrTenantRequired),
		errors.Is(err, booking.ErrPastAppointment):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrAlreadyCancelled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrNotAuthorized),
		errors.Is(err, booking.ErrCancellationNotAllowed),
		errors.Is(err, booking.ErrDeadlinePassed),
		errors.Is(err, booking.ErrBookingDisabled):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, booking.ErrPaymentUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// tenantID resolves the tenant from the X-Tenant-ID header, falling back to
// the tenant_id query parameter for public routes.
func tenantID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Tenant-ID")); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("tenant_id"))
}

func requester(r *http.Request) (string, model.UserRole) {
	return strings.TrimSpace(r.Header.Get("X-User-ID")),
		model.UserRole(strings.TrimSpace(r.Header.Get("X-User-Role")))
}

type appointmentResponse struct {
	ID            string `json:"id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	AmountCents   int64  `json:"amount_cents,omitempty"`
	Currency      string `json:"currency,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelReason  string `json:"cancellation_reason,omitempty"`
	RefundCents   int64  `json:"refund_cents,omitempty"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:            appt.ID,
		ProviderID:    appt.ProviderID,
		ServiceID:     appt.ServiceID,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		PaymentMethod: string(appt.PaymentMethod),
		PaymentStatus: string(appt.PaymentStatus),
		AmountCents:   appt.AmountCents,
		Currency:      appt.Currency,
		CancelReason:  appt.CancelReason,
		RefundCents:   appt.RefundCents,
		Notes:         appt.Notes,
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}
