// Package billing turns Stripe checkout and subscription events into tier
// changes on the user row.
package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
	"github.com/PortNumber53/liftx/internal/users"
)

type Interval string

const (
	Monthly Interval = "monthly"
	Yearly  Interval = "yearly"
)

// Price is a plan price in USD cents.
type Price struct {
	Name         string
	MonthlyCents int64
	YearlyCents  int64
}

var prices = map[entitlements.Tier]Price{
	entitlements.TierPro:      {Name: "Liftx Pro", MonthlyCents: 1900, YearlyCents: 18000},
	entitlements.TierUltraPro: {Name: "Liftx Ultra Pro", MonthlyCents: 4900, YearlyCents: 47000},
}

func PriceFor(t entitlements.Tier) (Price, bool) {
	p, ok := prices[t]
	return p, ok
}

// SessionCreator is the part of the Stripe checkout client this package uses.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Notifier receives best-effort owner notifications.
type Notifier interface {
	Subscribed(ctx context.Context, userID int64, tier entitlements.Tier)
	TierChanged(ctx context.Context, u *models.User, tier entitlements.Tier)
}

// Events is told whenever a user's tier changes.
type Events interface {
	SubscriptionUpdated(userID int64, tier entitlements.Tier)
}

type Options struct {
	WebhookSecret string
	Notifier      Notifier
	Events        Events
}

type Service struct {
	db            database.Querier
	users         *users.Store
	sessions      SessionCreator
	webhookSecret string
	notifier      Notifier
	events        Events
}

func New(db database.Querier, sessions SessionCreator, opts Options) *Service {
	return &Service{
		db:            db,
		users:         users.NewStore(db),
		sessions:      sessions,
		webhookSecret: opts.WebhookSecret,
		notifier:      opts.Notifier,
		events:        opts.Events,
	}
}

// NewStripeSessions returns nil when secretKey is empty so checkout reports
// the dependency as unavailable.
func NewStripeSessions(secretKey string) SessionCreator {
	if strings.TrimSpace(secretKey) == "" {
		return nil
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return sc.CheckoutSessions
}

func (s *Service) CheckoutConfigured() bool { return s.sessions != nil }

type CheckoutRequest struct {
	Tier    entitlements.Tier
	Billing Interval
	Origin  string
}

// CreateCheckoutSession opens a subscription-mode Stripe Checkout session and
// returns its hosted URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, u *models.User, req CheckoutRequest) (string, error) {
	if s.sessions == nil {
		return "", apperrors.DependencyUnavailable("Stripe is not configured", nil)
	}
	price, ok := PriceFor(req.Tier)
	if !ok {
		return "", apperrors.Validation("tier must be one of: pro, ultra_pro")
	}
	var cents int64
	var interval string
	switch req.Billing {
	case Monthly:
		cents, interval = price.MonthlyCents, string(stripe.PriceRecurringIntervalMonth)
	case Yearly:
		cents, interval = price.YearlyCents, string(stripe.PriceRecurringIntervalYear)
	default:
		return "", apperrors.Validation("billing must be one of: monthly, yearly")
	}
	origin := strings.TrimRight(req.Origin, "/")

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount:  stripe.Int64(cents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(price.Name)},
				Recurring:   &stripe.CheckoutSessionLineItemPriceDataRecurringParams{Interval: stripe.String(interval)},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(fmt.Sprintf("%s/subscription?success=true&tier=%s", origin, req.Tier)),
		CancelURL:         stripe.String(origin + "/subscription?cancelled=true"),
		ClientReferenceID: stripe.String(strconv.FormatInt(u.ID, 10)),
	}
	params.Context = ctx
	if u.Email != nil && *u.Email != "" {
		params.CustomerEmail = stripe.String(*u.Email)
	}
	params.AddMetadata("user_id", strconv.FormatInt(u.ID, 10))
	params.AddMetadata("customer_email", deref(u.Email))
	params.AddMetadata("customer_name", deref(u.Name))
	params.AddMetadata("tier", string(req.Tier))
	params.AddMetadata("billing", string(req.Billing))

	sess, err := s.sessions.New(params)
	if err != nil {
		log.Error().Str("component", "billing").Int64("userId", u.ID).Err(err).Msg("checkout session failed")
		return "", apperrors.DependencyUnavailable("Failed to create checkout session", err)
	}
	log.Info().Str("component", "billing").Int64("userId", u.ID).Str("tier", string(req.Tier)).
		Str("sessionId", sess.ID).Msg("checkout session created")
	return sess.URL, nil
}

// SimulateUpgrade changes the user's tier without payment. Last write wins.
func (s *Service) SimulateUpgrade(ctx context.Context, u *models.User, tier entitlements.Tier) error {
	if !tier.Valid() {
		return apperrors.Validation("tier must be one of: trial, pro, ultra_pro")
	}
	if err := s.users.SetTier(ctx, u.ID, tier); err != nil {
		return err
	}
	log.Info().Str("component", "billing").Int64("userId", u.ID).Str("tier", string(tier)).Msg("tier changed")
	if s.notifier != nil {
		s.notifier.TierChanged(ctx, u, tier)
	}
	if s.events != nil {
		s.events.SubscriptionUpdated(u.ID, tier)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
