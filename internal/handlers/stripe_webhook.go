package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mhasan-dev/bookline/internal/booking"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook handles payment events (no session auth; the signature is the
// auth). Replayed events are detected through the inbox and acknowledged
// without reprocessing.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
	)

	// The delivery id is claimed inside the same transaction as the state
	// change, so a processing failure releases the claim and Stripe's retry
	// is reprocessed rather than swallowed as a duplicate.
	providerEvt := booking.ProviderEvent{EventID: evt.ID, EventType: evtType}

	switch evtType {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			break
		}
		chargeID := ""
		if intent.LatestCharge != nil {
			chargeID = intent.LatestCharge.ID
		}
		if err := h.bookings.ConfirmPayment(r.Context(), providerEvt, intent.ID, chargeID); err != nil {
			if errors.Is(err, booking.ErrDuplicateEvent) {
				h.logger.Info("payment provider event duplicate ignored",
					"provider", "stripe", "provider_event_id", evt.ID)
				writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
				return
			}
			http.Error(w, "failed to apply payment success", http.StatusInternalServerError)
			return
		}

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			break
		}
		if err := h.bookings.FailPayment(r.Context(), providerEvt, intent.ID); err != nil {
			if errors.Is(err, booking.ErrDuplicateEvent) {
				h.logger.Info("payment provider event duplicate ignored",
					"provider", "stripe", "provider_event_id", evt.ID)
				writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
				return
			}
			http.Error(w, "failed to apply payment failure", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
