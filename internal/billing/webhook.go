package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/metrics"
)

// MaxWebhookBytes caps the webhook request body.
const MaxWebhookBytes = int64(65536)

var ErrInvalidSignature = errors.New("invalid stripe signature")

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeTest      Outcome = "test"
	OutcomeFailed    Outcome = "failed"
)

// VerifyEvent checks the Stripe-Signature header against the webhook secret.
// Account API versions drift from the library's, so the version check is skipped.
func (s *Service) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if s.webhookSecret == "" || sigHeader == "" {
		return stripe.Event{}, ErrInvalidSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return evt, nil
}

// HandleEvent applies evt at most once. A returned error means Stripe should retry.
func (s *Service) HandleEvent(ctx context.Context, evt stripe.Event) (Outcome, error) {
	logger := log.With().Str("component", "billing").Str("eventId", evt.ID).Str("type", string(evt.Type)).Logger()
	if strings.HasPrefix(evt.ID, "evt_test_") {
		logger.Info().Msg("test event acknowledged")
		metrics.RecordWebhookEvent(string(evt.Type), string(OutcomeTest))
		return OutcomeTest, nil
	}

	var raw []byte
	if evt.Data != nil {
		raw = evt.Data.Raw
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO public.billing_events (stripe_event_id, event_type, payload, received_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (stripe_event_id) DO NOTHING`, evt.ID, string(evt.Type), nullJSON(raw)); err != nil {
		metrics.RecordWebhookEvent(string(evt.Type), string(OutcomeFailed))
		return OutcomeFailed, fmt.Errorf("record billing event: %w", err)
	}
	var processedAt sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT processed_at FROM public.billing_events WHERE stripe_event_id = $1`, evt.ID,
	).Scan(&processedAt); err != nil {
		metrics.RecordWebhookEvent(string(evt.Type), string(OutcomeFailed))
		return OutcomeFailed, fmt.Errorf("load billing event: %w", err)
	}
	if processedAt.Valid {
		logger.Info().Msg("event already processed")
		metrics.RecordWebhookEvent(string(evt.Type), string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	var err error
	outcome := OutcomeProcessed
	switch evt.Type {
	case "checkout.session.completed":
		err = s.checkoutCompleted(ctx, raw)
	case "customer.subscription.updated":
		err = s.subscriptionUpdated(ctx, raw)
	case "customer.subscription.deleted":
		err = s.subscriptionDeleted(ctx, raw)
	default:
		logger.Info().Msg("unhandled event type")
		outcome = OutcomeIgnored
	}
	if err != nil {
		logger.Error().Err(err).Msg("event processing failed")
		metrics.RecordWebhookEvent(string(evt.Type), string(OutcomeFailed))
		return OutcomeFailed, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE public.billing_events SET processed_at = NOW() WHERE stripe_event_id = $1`, evt.ID,
	); err != nil {
		metrics.RecordWebhookEvent(string(evt.Type), string(OutcomeFailed))
		return OutcomeFailed, fmt.Errorf("mark billing event processed: %w", err)
	}
	metrics.RecordWebhookEvent(string(evt.Type), string(outcome))
	return outcome, nil
}

func (s *Service) checkoutCompleted(ctx context.Context, raw []byte) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	userID, err := strconv.ParseInt(sess.Metadata["user_id"], 10, 64)
	tier, tierErr := entitlements.ParseTier(sess.Metadata["tier"])
	if err != nil || tierErr != nil {
		log.Warn().Str("component", "billing").Str("sessionId", sess.ID).
			Msg("checkout session missing user_id or tier metadata")
		return nil
	}
	var customerID, subscriptionID *string
	if sess.Customer != nil && sess.Customer.ID != "" {
		customerID = &sess.Customer.ID
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		subscriptionID = &sess.Subscription.ID
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE public.users
		SET subscription_tier = $2,
			stripe_customer_id = COALESCE($3, stripe_customer_id),
			stripe_subscription_id = COALESCE($4, stripe_subscription_id),
			subscription_status = 'active',
			updated_at = NOW()
		WHERE id = $1`, userID, string(tier), customerID, subscriptionID)
	if err != nil {
		return fmt.Errorf("apply checkout for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Warn().Str("component", "billing").Int64("userId", userID).Msg("checkout for unknown user")
		return nil
	}
	log.Info().Str("component", "billing").Int64("userId", userID).Str("tier", string(tier)).Msg("subscription activated")
	if s.notifier != nil {
		s.notifier.Subscribed(ctx, userID, tier)
	}
	if s.events != nil {
		s.events.SubscriptionUpdated(userID, tier)
	}
	return nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, raw []byte) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		log.Warn().Str("component", "billing").Str("subscriptionId", sub.ID).Msg("subscription without customer")
		return nil
	}
	var expiresAt *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		expiresAt = &t
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE public.users
		SET subscription_status = $2,
			stripe_subscription_id = $3,
			subscription_expires_at = $4,
			updated_at = NOW()
		WHERE stripe_customer_id = $1`, sub.Customer.ID, string(sub.Status), sub.ID, expiresAt); err != nil {
		return fmt.Errorf("apply subscription update: %w", err)
	}
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, raw []byte) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `
		UPDATE public.users
		SET subscription_tier = 'trial',
			subscription_status = 'cancelled',
			stripe_subscription_id = NULL,
			updated_at = NOW()
		WHERE stripe_customer_id = $1
		RETURNING id`, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("apply subscription deletion: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan downgraded user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("apply subscription deletion: %w", err)
	}
	for _, id := range ids {
		log.Info().Str("component", "billing").Int64("userId", id).Msg("subscription cancelled, downgraded to trial")
		if s.events != nil {
			s.events.SubscriptionUpdated(id, entitlements.TierTrial)
		}
	}
	return nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
