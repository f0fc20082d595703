package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"

	"github.com/PortNumber53/liftx/internal/realtime"
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// EventsWebSocket streams the authenticated user's realtime events.
//
// URL: /api/events/ws (token via Authorization header or access_token query param)
func (h *Handler) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID := u.ID

	// x/net/websocket rejects mismatched Origin headers by default; the
	// bearer token already authenticates the caller and CORS guards the browser.
	wsServer := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			return nil
		},
		Handler: func(c *websocket.Conn) {
			logger := log.With().Str("component", "realtime").Int64("userId", userID).Str("remote", r.RemoteAddr).Logger()
			logger.Info().Str("ua", truncate(r.UserAgent(), 120)).Msg("connect")
			s := realtime.WrapConn(c)
			if h.rt != nil {
				h.rt.Add(userID, s)
				defer h.rt.Remove(userID, s)
			}
			defer logger.Info().Msg("disconnect")

			hello := realtime.Event{
				Type:   realtime.EventHello,
				UserID: userID,
				At:     time.Now().UTC().Format(time.RFC3339),
			}
			if b, err := json.Marshal(hello); err == nil {
				_ = websocket.Message.Send(c, string(b))
			}

			// Read loop keeps the connection open and detects disconnects.
			for {
				var ignored string
				if err := websocket.Message.Receive(c, &ignored); err != nil {
					return
				}
			}
		},
	}
	wsServer.ServeHTTP(w, r)
}
