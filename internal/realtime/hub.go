// Package realtime fans per-user events out to open websocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"

	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
	"github.com/PortNumber53/liftx/internal/posts"
)

const (
	EventHello               = "hello"
	EventPostCreated         = "post.created"
	EventPostCancelled       = "post.cancelled"
	EventPostPublished       = "post.published"
	EventPostFailed          = "post.failed"
	EventSubscriptionUpdated = "subscription.updated"
)

type Event struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
	PostID int64  `json:"postId,omitempty"`
	Status string `json:"status,omitempty"`
	Tier   string `json:"tier,omitempty"`
	At     string `json:"at"`
}

// Sender abstracts a websocket connection so the hub can be tested without one.
type Sender interface {
	Send(msg string) error
	Close() error
}

type wsSender struct{ c *websocket.Conn }

func (s wsSender) Send(msg string) error { return websocket.Message.Send(s.c, msg) }
func (s wsSender) Close() error          { return s.c.Close() }

// WrapConn adapts a websocket connection for the hub.
func WrapConn(c *websocket.Conn) Sender { return wsSender{c: c} }

type Hub struct {
	mu    sync.Mutex
	conns map[int64]map[Sender]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[int64]map[Sender]struct{})}
}

func (h *Hub) Add(userID int64, s Sender) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[userID]
	if m == nil {
		m = make(map[Sender]struct{})
		h.conns[userID] = m
	}
	m[s] = struct{}{}
}

func (h *Hub) Remove(userID int64, s Sender) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.conns[userID]
	if m == nil {
		return
	}
	delete(m, s)
	if len(m) == 0 {
		delete(h.conns, userID)
	}
}

func (h *Hub) Count(userID int64) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Emit stamps and broadcasts ev to every connection of ev.UserID. Dead
// connections are closed and dropped.
func (h *Hub) Emit(ev Event) {
	if h == nil || ev.UserID == 0 {
		return
	}
	if ev.At == "" {
		ev.At = time.Now().UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Str("component", "realtime").Err(err).Msg("marshal event failed")
		return
	}

	h.mu.Lock()
	targets := make([]Sender, 0, len(h.conns[ev.UserID]))
	for s := range h.conns[ev.UserID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	log.Debug().Str("component", "realtime").Int64("userId", ev.UserID).Str("type", ev.Type).
		Int64("postId", ev.PostID).Int("subs", len(targets)).Msg("emit")
	for _, s := range targets {
		if err := s.Send(string(b)); err != nil {
			_ = s.Close()
			h.Remove(ev.UserID, s)
		}
	}
}

// PostCreated implements posts.Observer.
func (h *Hub) PostCreated(_ context.Context, c posts.Created) {
	h.Emit(Event{Type: EventPostCreated, UserID: c.UserID, PostID: c.PostID, Status: string(c.Status)})
}

func (h *Hub) PostCancelled(_ context.Context, userID, postID int64) {
	h.Emit(Event{Type: EventPostCancelled, UserID: userID, PostID: postID, Status: string(models.PostCancelled)})
}

// PostFinished reports a dispatcher outcome.
func (h *Hub) PostFinished(_ context.Context, userID, postID int64, status models.PostStatus) {
	typ := EventPostPublished
	if status == models.PostFailed {
		typ = EventPostFailed
	}
	h.Emit(Event{Type: typ, UserID: userID, PostID: postID, Status: string(status)})
}

func (h *Hub) SubscriptionUpdated(userID int64, tier entitlements.Tier) {
	h.Emit(Event{Type: EventSubscriptionUpdated, UserID: userID, Tier: string(tier)})
}
