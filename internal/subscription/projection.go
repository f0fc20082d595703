// Package subscription composes the user record, the entitlement catalog and
// live quota usage into read-only views. Nothing here writes.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
	"github.com/PortNumber53/liftx/internal/quota"
	"github.com/PortNumber53/liftx/internal/users"
)

type CurrentView struct {
	Tier                 entitlements.Tier          `json:"tier"`
	Status               string                     `json:"status"`
	ExpiresAt            *time.Time                 `json:"expiresAt"`
	StripeSubscriptionID *string                    `json:"stripeSubscriptionId"`
	DailyUsed            int                        `json:"dailyUsed"`
	DailyLimit           *int                       `json:"dailyLimit"`
	Unlimited            bool                       `json:"unlimited"`
	PlatformLimit        *int                       `json:"platformLimit"`
	AllowedContentTypes  []entitlements.ContentType `json:"allowedContentTypes"`
	CanSchedule          bool                       `json:"canSchedule"`
	HasAnalytics         bool                       `json:"hasAnalytics"`
}

type DailyUsageView struct {
	Used      int               `json:"used"`
	Limit     *int              `json:"limit"`
	Unlimited bool              `json:"unlimited"`
	Tier      entitlements.Tier `json:"tier"`
	Remaining *int              `json:"remaining"`
}

type Projection struct {
	db    database.Querier
	users *users.Store
	quota *quota.Accountant
}

func NewProjection(db database.Querier, accountant *quota.Accountant) *Projection {
	return &Projection{db: db, users: users.NewStore(db), quota: accountant}
}

// Profile returns the effective entitlements for a user record.
func Profile(u *models.User) entitlements.Profile {
	return entitlements.Effective(u.SubscriptionTier, u.ProPostLimit)
}

func (p *Projection) CurrentView(ctx context.Context, userID int64) (CurrentView, error) {
	u, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return CurrentView{}, err
	}
	return p.CurrentViewFor(ctx, u)
}

// CurrentViewFor builds the view from an already loaded user.
func (p *Projection) CurrentViewFor(ctx context.Context, u *models.User) (CurrentView, error) {
	profile := Profile(u)
	usage, err := p.quota.DailyUsage(ctx, u.ID, profile)
	if err != nil {
		return CurrentView{}, err
	}
	return CurrentView{
		Tier:                 profile.Tier,
		Status:               u.SubscriptionStatus,
		ExpiresAt:            u.SubscriptionExpiresAt,
		StripeSubscriptionID: u.StripeSubscriptionID,
		DailyUsed:            usage.Used,
		DailyLimit:           usage.Limit,
		Unlimited:            usage.Unlimited,
		PlatformLimit:        profile.Platforms,
		AllowedContentTypes:  profile.ContentTypes,
		CanSchedule:          profile.CanSchedule,
		HasAnalytics:         profile.HasAnalytics,
	}, nil
}

func (p *Projection) DailyUsage(ctx context.Context, userID int64) (DailyUsageView, error) {
	u, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return DailyUsageView{}, err
	}
	return p.DailyUsageFor(ctx, u)
}

func (p *Projection) DailyUsageFor(ctx context.Context, u *models.User) (DailyUsageView, error) {
	profile := Profile(u)
	usage, err := p.quota.DailyUsage(ctx, u.ID, profile)
	if err != nil {
		return DailyUsageView{}, err
	}
	return DailyUsageView{
		Used:      usage.Used,
		Limit:     usage.Limit,
		Unlimited: usage.Unlimited,
		Tier:      profile.Tier,
		Remaining: usage.Remaining,
	}, nil
}

// Plans lists active subscription plans ordered by price.
func (p *Projection) Plans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, tier, stripe_price_id, monthly_price_cents, yearly_price_cents,
			daily_post_limit, platform_limit, features, is_active
		FROM public.subscription_plans
		WHERE is_active = TRUE
		ORDER BY monthly_price_cents, id`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	out := []models.SubscriptionPlan{}
	for rows.Next() {
		var pl models.SubscriptionPlan
		var tier string
		var features []byte
		if err := rows.Scan(&pl.ID, &pl.Name, &tier, &pl.StripePriceID, &pl.MonthlyPriceCents,
			&pl.YearlyPriceCents, &pl.DailyPostLimit, &pl.PlatformLimit, &features, &pl.IsActive); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		pl.Tier = entitlements.Tier(tier)
		pl.Features = []string{}
		if len(features) > 0 {
			if err := json.Unmarshal(features, &pl.Features); err != nil {
				return nil, fmt.Errorf("decode features for plan %d: %w", pl.ID, err)
			}
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}
