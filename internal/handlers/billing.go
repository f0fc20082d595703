package handlers

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/billing"
)

// StripeWebhook handles POST /api/stripe/webhook. Verification failures are
// 400; processing failures are 500 so Stripe retries.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, billing.MaxWebhookBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warn().Str("component", "billing").Err(err).Msg("webhook read error")
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := h.billing.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Warn().Str("component", "billing").Err(err).Msg("webhook signature verification failed")
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	outcome, err := h.billing.HandleEvent(r.Context(), evt)
	if err != nil {
		http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		return
	}
	if outcome == billing.OutcomeTest {
		writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
