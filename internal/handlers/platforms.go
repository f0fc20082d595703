package handlers

import (
	"net/http"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/connections"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/validator"
)

type connectRequest struct {
	Platform            string  `json:"platform" validate:"required,oneof=linkedin instagram x facebook tiktok"`
	PlatformUserID      *string `json:"platformUserId"`
	PlatformUsername    *string `json:"platformUsername"`
	PlatformDisplayName *string `json:"platformDisplayName"`
	PlatformAvatarURL   *string `json:"platformAvatarUrl" validate:"omitempty,url"`
	AccessToken         *string `json:"accessToken"`
	RefreshToken        *string `json:"refreshToken"`
}

type disconnectRequest struct {
	Platform string `json:"platform" validate:"required,oneof=linkedin instagram x facebook tiktok"`
}

// ListConnected handles GET /api/platforms/connected.
func (h *Handler) ListConnected(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	accounts, err := h.connections.List(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// ConnectPlatform handles POST /api/platforms/connect.
func (h *Handler) ConnectPlatform(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validator.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	err := h.connections.Connect(r.Context(), u.ID, entitlements.Platform(req.Platform), connections.Profile{
		PlatformUserID:      req.PlatformUserID,
		PlatformUsername:    req.PlatformUsername,
		PlatformDisplayName: req.PlatformDisplayName,
		PlatformAvatarURL:   req.PlatformAvatarURL,
		AccessToken:         req.AccessToken,
		RefreshToken:        req.RefreshToken,
	})
	if err != nil {
		writeError(w, r, apperrors.DependencyUnavailable("Failed to connect platform", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DisconnectPlatform handles POST /api/platforms/disconnect.
func (h *Handler) DisconnectPlatform(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req disconnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validator.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.connections.Disconnect(r.Context(), u.ID, entitlements.Platform(req.Platform)); err != nil {
		writeError(w, r, apperrors.DependencyUnavailable("Failed to disconnect platform", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
