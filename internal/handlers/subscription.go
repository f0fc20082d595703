package handlers

import (
	"net/http"
	"strings"

	"github.com/PortNumber53/liftx/internal/billing"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/validator"
)

type checkoutRequest struct {
	Tier    string `json:"tier" validate:"required,oneof=pro ultra_pro"`
	Billing string `json:"billing" validate:"omitempty,oneof=monthly yearly"`
}

type simulateUpgradeRequest struct {
	Tier string `json:"tier" validate:"required,oneof=trial pro ultra_pro"`
}

// ListPlans handles GET /api/subscription/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subscription.Plans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

// CurrentSubscription handles GET /api/subscription/current.
func (h *Handler) CurrentSubscription(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	view, err := h.subscription.CurrentViewFor(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// requestOrigin prefers the browser's Origin header so redirects land on the app that asked.
func (h *Handler) requestOrigin(r *http.Request) string {
	if o := strings.TrimSpace(r.Header.Get("Origin")); o != "" {
		return o
	}
	return h.publicOrigin
}

// CreateCheckout handles POST /api/subscription/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validator.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	interval := billing.Interval(req.Billing)
	if interval == "" {
		interval = billing.Monthly
	}
	url, err := h.billing.CreateCheckoutSession(r.Context(), u, billing.CheckoutRequest{
		Tier:    entitlements.Tier(req.Tier),
		Billing: interval,
		Origin:  h.requestOrigin(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checkoutUrl": url})
}

// SimulateUpgrade handles POST /api/subscription/simulate-upgrade.
func (h *Handler) SimulateUpgrade(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req simulateUpgradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validator.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	tier := entitlements.Tier(req.Tier)
	if err := h.billing.SimulateUpgrade(r.Context(), u, tier); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tier": tier})
}
