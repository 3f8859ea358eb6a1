package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/storage"
)

// Slots returns the full-day availability report for a provider.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenant := tenantID(r)
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if tenant == "" || providerID == "" || dateStr == "" {
		http.Error(w, "tenant_id, provider_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	pol, err := h.policies.Get(r.Context(), tenant)
	if err != nil {
		h.writeError(w, err)
		return
	}

	slots, err := h.daySlots(r, tenant, providerID, date, pol)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  dateStr,
		"slots": slots,
	})
}

type createRequest struct {
	ServiceID     string `json:"service_id"`
	ProviderID    string `json:"provider_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	ClientPhone   string `json:"client_phone"`
	Notes         string `json:"notes"`
	PaymentMethod string `json:"payment_method"`
}

// Create books an appointment through the public surface.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	var endTime *time.Time
	if strings.TrimSpace(req.EndTime) != "" {
		t, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
		endTime = &t
	}

	res, err := h.bookings.Create(r.Context(), booking.CreateRequest{
		TenantID:       tenantID(r),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		ProviderID:     strings.TrimSpace(req.ProviderID),
		StartTime:      startTime,
		EndTime:        endTime,
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientPhone:    req.ClientPhone,
		Notes:          req.Notes,
		PaymentMethod:  model.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	body := map[string]any{"appointment": toAppointmentResponse(res.Appointment)}
	if res.ClientSecret != "" {
		body["client_secret"] = res.ClientSecret
	}
	writeJSON(w, status, body)
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	requesterID, role := requester(r)
	res, err := h.bookings.Cancel(r.Context(), booking.CancelRequest{
		TenantID:      tenantID(r),
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		RequesterID:   requesterID,
		RequesterRole: role,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment":   toAppointmentResponse(res.Appointment),
		"refund_cents":  res.RefundCents,
		"refund_issued": res.RefundIssued,
	})
}

type completeRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	requesterID, role := requester(r)
	if err := h.bookings.Complete(r.Context(), tenantID(r), strings.TrimSpace(req.AppointmentID), requesterID, role); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed"})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenant := tenantID(r)
	if tenant == "" {
		http.Error(w, "tenant context missing", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	filter := storage.AppointmentFilter{
		ProviderID: strings.TrimSpace(q.Get("provider_id")),
		ClientID:   strings.TrimSpace(q.Get("client_id")),
		Status:     model.AppointmentStatus(strings.TrimSpace(q.Get("status"))),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	appts, err := h.repo.ListAppointments(r.Context(), tenant, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}
