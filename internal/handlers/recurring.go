package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/recurring"
)

type createRecurringRequest struct {
	ClientID       string `json:"client_id"`
	ProviderID     string `json:"provider_id"`
	ServiceID      string `json:"service_id"`
	Frequency      string `json:"frequency"`
	Interval       int    `json:"interval"`
	DaysOfWeek     []int  `json:"days_of_week"`
	DayOfMonth     int    `json:"day_of_month"`
	AnchorTime     string `json:"anchor_time"`
	DurationMins   int    `json:"duration_minutes"`
	EndDate        string `json:"end_date"`
	MaxOccurrences int    `json:"max_occurrences"`
	PaymentMethod  string `json:"payment_method"`
}

// CreateRecurring saves a rule and books its series in one call.
func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	anchor, err := time.Parse(time.RFC3339, req.AnchorTime)
	if err != nil {
		http.Error(w, "invalid anchor_time", http.StatusBadRequest)
		return
	}
	var endDate *time.Time
	if strings.TrimSpace(req.EndDate) != "" {
		t, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			http.Error(w, "invalid end_date", http.StatusBadRequest)
			return
		}
		endDate = &t
	}

	rule, res, err := h.expander.CreateRule(r.Context(), model.RecurringRule{
		TenantID:       tenantID(r),
		ClientID:       strings.TrimSpace(req.ClientID),
		ProviderID:     strings.TrimSpace(req.ProviderID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Frequency:      model.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		Interval:       req.Interval,
		DaysOfWeek:     req.DaysOfWeek,
		DayOfMonth:     req.DayOfMonth,
		Anchor:         anchor,
		DurationMins:   req.DurationMins,
		EndDate:        endDate,
		MaxOccurrences: req.MaxOccurrences,
		PaymentMethod:  model.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule_id": rule.ID,
		"created": res.Created,
		"skipped": res.Skipped,
	})
}

type deactivateRecurringRequest struct {
	RuleID string `json:"rule_id"`
}

// DeactivateRecurring turns a rule off and sweeps its future instances.
func (h *Handler) DeactivateRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deactivateRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	requesterID, role := requester(r)
	cancelled, err := h.expander.Deactivate(r.Context(), recurring.DeactivateRequest{
		TenantID:      tenantID(r),
		RuleID:        strings.TrimSpace(req.RuleID),
		RequesterID:   requesterID,
		RequesterRole: role,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "deactivated",
		"cancelled": cancelled,
	})
}
