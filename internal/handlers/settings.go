package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mhasan-dev/bookline/internal/model"
	"github.com/mhasan-dev/bookline/internal/policy"
)

// Policy serves the tenant's booking policy: GET returns the effective policy
// (defaults applied), PUT replaces it. Admin only for writes.
func (h *Handler) Policy(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		http.Error(w, "tenant context missing", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		pol, err := h.policies.Get(r.Context(), tenant)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pol)

	case http.MethodPut:
		if _, role := requester(r); role != model.RoleAdmin {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		var pol policy.Policy
		if err := json.NewDecoder(r.Body).Decode(&pol); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if err := policy.Validate(pol); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.policies.Save(r.Context(), tenant, pol); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pol)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
