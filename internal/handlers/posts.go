package handlers

import (
	"net/http"

	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/metrics"
	"github.com/PortNumber53/liftx/internal/posts"
	"github.com/PortNumber53/liftx/internal/validator"
)

// ListPosts handles GET /api/posts?status=&limit=&offset=.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.posts.List(r.Context(), u.ID, posts.ListOptions{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": out})
}

// CreatePost handles POST /api/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in posts.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.posts.Create(r.Context(), u.ID, in)
	if err != nil {
		metrics.RecordCreateDenied(err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type cancelPostRequest struct {
	PostID int64 `json:"postId" validate:"required,gt=0"`
}

// CancelPost handles POST /api/posts/cancel.
func (h *Handler) CancelPost(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req cancelPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validator.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.posts.Cancel(r.Context(), u.ID, req.PostID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DailyUsage handles GET /api/posts/daily-usage.
func (h *Handler) DailyUsage(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	view, err := h.subscription.DailyUsageFor(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PlatformContentTypes handles GET /api/posts/platform-content-types.
func (h *Handler) PlatformContentTypes(w http.ResponseWriter, r *http.Request) {
	rules := make([]entitlements.PlatformRules, 0, len(entitlements.AllPlatforms()))
	for _, p := range entitlements.AllPlatforms() {
		if pr, ok := entitlements.RulesFor(p); ok {
			rules = append(rules, pr)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms":    rules,
		"contentTypes": entitlements.PlatformContentTypes(),
	})
}
