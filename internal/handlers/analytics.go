package handlers

import "net/http"

// MetricsOverview handles GET /api/metrics/overview.
func (h *Handler) MetricsOverview(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	out, err := h.analytics.Overview(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
