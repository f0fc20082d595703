// Package handlers exposes the Liftx HTTP API.
package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/PortNumber53/liftx/internal/analytics"
	"github.com/PortNumber53/liftx/internal/billing"
	"github.com/PortNumber53/liftx/internal/connections"
	"github.com/PortNumber53/liftx/internal/posts"
	"github.com/PortNumber53/liftx/internal/realtime"
	"github.com/PortNumber53/liftx/internal/storage"
	"github.com/PortNumber53/liftx/internal/subscription"
)

type Deps struct {
	DB           *sql.DB
	Posts        *posts.Engine
	Connections  *connections.Registry
	Subscription *subscription.Projection
	Billing      *billing.Service
	Analytics    *analytics.Service
	Blobs        storage.BlobStore
	Hub          *realtime.Hub
	PublicOrigin string
}

type Handler struct {
	db           *sql.DB
	posts        *posts.Engine
	connections  *connections.Registry
	subscription *subscription.Projection
	billing      *billing.Service
	analytics    *analytics.Service
	blobs        storage.BlobStore
	rt           *realtime.Hub
	publicOrigin string
}

func New(d Deps) *Handler {
	return &Handler{
		db:           d.DB,
		posts:        d.Posts,
		connections:  d.Connections,
		subscription: d.Subscription,
		billing:      d.Billing,
		analytics:    d.Analytics,
		blobs:        d.Blobs,
		rt:           d.Hub,
		publicOrigin: d.PublicOrigin,
	}
}

// Health reports liveness and, when a database is configured, whether it answers a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "database": "ok"})
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}
