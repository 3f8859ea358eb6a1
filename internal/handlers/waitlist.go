package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mhasan-dev/bookline/internal/model"
)

type createWaitlistRequest struct {
	ClientID      string `json:"client_id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	PreferredDate string `json:"preferred_date"`
	WindowStart   string `json:"window_start"`
	WindowEnd     string `json:"window_end"`
	FlexibleDate  bool   `json:"flexible_date"`
	FlexibleTime  bool   `json:"flexible_time"`
	Priority      int    `json:"priority"`
}

type waitlistResponse struct {
	ID            string `json:"id"`
	ClientID      string `json:"client_id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	PreferredDate string `json:"preferred_date"`
	WindowStart   string `json:"window_start,omitempty"`
	WindowEnd     string `json:"window_end,omitempty"`
	FlexibleDate  bool   `json:"flexible_date"`
	FlexibleTime  bool   `json:"flexible_time"`
	Status        string `json:"status"`
	Priority      int    `json:"priority"`
}

func toWaitlistResponse(e model.WaitlistEntry) waitlistResponse {
	return waitlistResponse{
		ID:            e.ID,
		ClientID:      e.ClientID,
		ProviderID:    e.ProviderID,
		ServiceID:     e.ServiceID,
		PreferredDate: e.PreferredDate.UTC().Format("2006-01-02"),
		WindowStart:   e.WindowStart,
		WindowEnd:     e.WindowEnd,
		FlexibleDate:  e.FlexibleDate,
		FlexibleTime:  e.FlexibleTime,
		Status:        string(e.Status),
		Priority:      e.Priority,
	}
}

// Waitlist creates an entry on POST, lists the tenant's entries on GET.
func (h *Handler) Waitlist(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		http.Error(w, "tenant context missing", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.ClientID == "" || req.ProviderID == "" || req.ServiceID == "" {
			http.Error(w, "client_id, provider_id and service_id are required", http.StatusBadRequest)
			return
		}
		preferred, err := time.Parse("2006-01-02", req.PreferredDate)
		if err != nil {
			http.Error(w, "preferred_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		entry := model.WaitlistEntry{
			ID:            uuid.NewString(),
			TenantID:      tenant,
			ClientID:      strings.TrimSpace(req.ClientID),
			ProviderID:    strings.TrimSpace(req.ProviderID),
			ServiceID:     strings.TrimSpace(req.ServiceID),
			PreferredDate: preferred,
			WindowStart:   strings.TrimSpace(req.WindowStart),
			WindowEnd:     strings.TrimSpace(req.WindowEnd),
			FlexibleDate:  req.FlexibleDate,
			FlexibleTime:  req.FlexibleTime,
			Status:        model.WaitlistActive,
			Priority:      req.Priority,
		}
		if err := h.repo.CreateWaitlistEntry(r.Context(), &entry); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWaitlistResponse(entry))

	case http.MethodGet:
		entries, err := h.repo.ListWaitlist(r.Context(), tenant, strings.TrimSpace(r.URL.Query().Get("provider_id")))
		if err != nil {
			h.writeError(w, err)
			return
		}
		items := make([]waitlistResponse, 0, len(entries))
		for _, e := range entries {
			items = append(items, toWaitlistResponse(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": items})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type updateWaitlistRequest struct {
	EntryID string `json:"entry_id"`
	Status  string `json:"status"`
}

// UpdateWaitlistStatus applies a manual state transition to an entry.
func (h *Handler) UpdateWaitlistStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	entry, err := h.repo.UpdateWaitlistStatus(r.Context(), tenantID(r),
		strings.TrimSpace(req.EntryID),
		model.WaitlistStatus(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistResponse(entry))
}
