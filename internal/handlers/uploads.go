package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/storage"
	"github.com/PortNumber53/liftx/internal/validator"
)

type uploadURLRequest struct {
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required"`
	FileSize    int64  `json:"fileSize" validate:"gte=0"`
}

// UploadURL handles POST /api/upload/url and issues a key under the caller's prefix.
func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req uploadURLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validator.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.FileSize > storage.MaxUploadBytes {
		writeError(w, r, apperrors.Validation("File size exceeds 100MB limit"))
		return
	}
	key := storage.NewUploadKey(u.ID, req.FileName)
	writeJSON(w, http.StatusOK, map[string]string{
		"key":            key,
		"uploadEndpoint": "/api/upload?key=" + key,
	})
}

// Upload handles POST /api/upload with the raw file as the body.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.blobs == nil {
		writeError(w, r, apperrors.DependencyUnavailable("Storage is not configured", nil))
		return
	}
	contentType := strings.TrimSpace(r.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		key = storage.NewUploadKey(u.ID, r.URL.Query().Get("fileName"))
	} else if !storage.OwnsKey(u.ID, key) {
		writeError(w, r, apperrors.Forbidden("Upload key does not belong to you"))
		return
	}
	if r.ContentLength > storage.MaxUploadBytes {
		writeError(w, r, apperrors.Validation("File size exceeds 100MB limit"))
		return
	}

	body := http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, r, apperrors.Validation(fmt.Sprintf("Failed to read upload: %v", err)))
		return
	}
	if len(data) == 0 {
		writeError(w, r, apperrors.Validation("Upload body is empty"))
		return
	}
	url, err := h.blobs.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		writeError(w, r, apperrors.DependencyUnavailable("Failed to store upload", err))
		return
	}
	log.Info().Str("component", "uploads").Int64("userId", u.ID).Str("key", key).Int("bytes", len(data)).Msg("stored upload")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": url, "key": key})
}
