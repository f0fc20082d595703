// Package notify delivers best-effort owner notifications: every message is
// logged to notification_logs and optionally POSTed to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
	"github.com/PortNumber53/liftx/internal/posts"
	"github.com/PortNumber53/liftx/internal/users"
)

const TypeOwner = "owner"

type Message struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Notifier struct {
	db         database.Querier
	users      *users.Store
	webhookURL string
	client     *http.Client
}

func New(db database.Querier, webhookURL string) *Notifier {
	return &Notifier{
		db:         db,
		users:      users.NewStore(db),
		webhookURL: strings.TrimSpace(webhookURL),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyOwner never returns an error; failures are logged.
func (n *Notifier) NotifyOwner(ctx context.Context, title, content string) {
	if n == nil {
		return
	}
	msg := Message{Title: title, Content: content}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Str("component", "notify").Err(err).Msg("marshal notification failed")
		return
	}

	if _, err := n.db.ExecContext(ctx,
		`INSERT INTO public.notification_logs (type, payload, sent_at) VALUES ($1, $2, NOW())`,
		TypeOwner, payload,
	); err != nil {
		log.Warn().Str("component", "notify").Err(err).Str("title", title).Msg("persist notification failed")
	}

	if n.webhookURL == "" {
		return
	}
	if err := n.post(ctx, payload); err != nil {
		log.Warn().Str("component", "notify").Err(err).Str("title", title).Msg("owner webhook failed")
	}
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// DisplayName picks the friendliest identifier for a user.
func DisplayName(u *models.User) string {
	if u == nil {
		return "unknown"
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) != "" {
		return *u.Name
	}
	if u.Email != nil && strings.TrimSpace(*u.Email) != "" {
		return *u.Email
	}
	return u.OpenID
}

func (n *Notifier) userLabel(ctx context.Context, userID int64) string {
	u, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Sprintf("ID %d", userID)
	}
	return DisplayName(u)
}

// PostCreated implements posts.Observer.
func (n *Notifier) PostCreated(ctx context.Context, c posts.Created) {
	names := make([]string, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		names = append(names, string(p))
	}
	n.NotifyOwner(ctx, "New Post Created",
		fmt.Sprintf("User %s created a %s post for %s.", n.userLabel(ctx, c.UserID), c.ContentType, strings.Join(names, ", ")))
}

func (n *Notifier) PostCancelled(context.Context, int64, int64) {}

// TierChanged reports a self-service upgrade. Downgrades to trial are silent.
func (n *Notifier) TierChanged(ctx context.Context, u *models.User, tier entitlements.Tier) {
	if tier == entitlements.TierTrial {
		return
	}
	n.NotifyOwner(ctx, fmt.Sprintf("Subscription Upgrade: %s", strings.ToUpper(string(tier))),
		fmt.Sprintf("User %s upgraded to %s.", DisplayName(u), tier))
}

// Subscribed reports a completed Stripe checkout.
func (n *Notifier) Subscribed(ctx context.Context, userID int64, tier entitlements.Tier) {
	n.NotifyOwner(ctx, fmt.Sprintf("New Subscription: %s", strings.ToUpper(string(tier))),
		fmt.Sprintf("User ID %d subscribed to %s via Stripe.", userID, tier))
}
