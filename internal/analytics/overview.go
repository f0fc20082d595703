// Package analytics summarises stored post metrics for analytics-enabled tiers.
package analytics

import (
	"context"
	"fmt"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
)

const recentLimit = 20

type Totals struct {
	Impressions      int64  `json:"impressions"`
	Reach            int64  `json:"reach"`
	Likes            int64  `json:"likes"`
	Comments         int64  `json:"comments"`
	Shares           int64  `json:"shares"`
	Clicks           int64  `json:"clicks"`
	Saves            int64  `json:"saves"`
	EstimatedRevenue string `json:"estimatedRevenue"`

	revenueCents int64
}

func (t *Totals) add(o Totals) {
	t.Impressions += o.Impressions
	t.Reach += o.Reach
	t.Likes += o.Likes
	t.Comments += o.Comments
	t.Shares += o.Shares
	t.Clicks += o.Clicks
	t.Saves += o.Saves
	t.revenueCents += o.revenueCents
	t.EstimatedRevenue = formatCents(t.revenueCents)
}

type Overview struct {
	Totals        Totals                           `json:"totals"`
	ByPlatform    map[entitlements.Platform]Totals `json:"byPlatform"`
	RecentMetrics []models.PostMetric              `json:"recentMetrics"`
	Demo          bool                             `json:"demo"`
}

// DemoTotals are shown until the user has any stored metrics.
func DemoTotals() Totals {
	return Totals{
		Impressions: 31300, Reach: 22400, Likes: 4220, Comments: 890,
		Shares: 1240, Clicks: 3100, Saves: 680,
		EstimatedRevenue: "127.50", revenueCents: 12750,
	}
}

type Service struct {
	db database.Querier
}

func NewService(db database.Querier) *Service {
	return &Service{db: db}
}

// Overview returns the analytics overview for u. Only tiers with analytics may call it.
func (s *Service) Overview(ctx context.Context, u *models.User) (Overview, error) {
	if !entitlements.Effective(u.SubscriptionTier, u.ProPostLimit).HasAnalytics {
		return Overview{}, apperrors.Forbidden("Real-time metrics are available for Ultra Pro subscribers only.")
	}

	byPlatform, err := s.byPlatform(ctx, u.ID)
	if err != nil {
		return Overview{}, err
	}
	if len(byPlatform) == 0 {
		return Overview{
			Totals:        DemoTotals(),
			ByPlatform:    map[entitlements.Platform]Totals{},
			RecentMetrics: []models.PostMetric{},
			Demo:          true,
		}, nil
	}

	totals := Totals{EstimatedRevenue: formatCents(0)}
	for _, t := range byPlatform {
		totals.add(t)
	}
	recent, err := s.recent(ctx, u.ID)
	if err != nil {
		return Overview{}, err
	}
	return Overview{Totals: totals, ByPlatform: byPlatform, RecentMetrics: recent}, nil
}

func (s *Service) byPlatform(ctx context.Context, userID int64) (map[entitlements.Platform]Totals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.platform,
			COALESCE(SUM(m.impressions), 0), COALESCE(SUM(m.reach), 0), COALESCE(SUM(m.likes), 0),
			COALESCE(SUM(m.comments), 0), COALESCE(SUM(m.shares), 0), COALESCE(SUM(m.clicks), 0),
			COALESCE(SUM(m.saves), 0), COALESCE(SUM(m.estimated_revenue * 100), 0)::bigint
		FROM public.post_metrics m
		JOIN public.posts p ON p.id = m.post_id
		WHERE p.user_id = $1
		GROUP BY m.platform
		ORDER BY m.platform`, userID)
	if err != nil {
		return nil, apperrors.DependencyUnavailable("Failed to load metrics", err)
	}
	defer rows.Close()

	out := map[entitlements.Platform]Totals{}
	for rows.Next() {
		var p string
		var t Totals
		if err := rows.Scan(&p, &t.Impressions, &t.Reach, &t.Likes, &t.Comments, &t.Shares, &t.Clicks, &t.Saves, &t.revenueCents); err != nil {
			return nil, fmt.Errorf("scan platform metrics: %w", err)
		}
		t.EstimatedRevenue = formatCents(t.revenueCents)
		out[entitlements.Platform(p)] = t
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DependencyUnavailable("Failed to load metrics", err)
	}
	return out, nil
}

func (s *Service) recent(ctx context.Context, userID int64) ([]models.PostMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.post_id, m.post_platform_id, m.platform, m.impressions, m.reach, m.likes,
			m.comments, m.shares, m.clicks, m.saves, m.estimated_revenue::text, m.fetched_at
		FROM public.post_metrics m
		JOIN public.posts p ON p.id = m.post_id
		WHERE p.user_id = $1
		ORDER BY m.fetched_at DESC, m.id DESC
		LIMIT $2`, userID, recentLimit)
	if err != nil {
		return nil, apperrors.DependencyUnavailable("Failed to load metrics", err)
	}
	defer rows.Close()

	out := make([]models.PostMetric, 0, recentLimit)
	for rows.Next() {
		var m models.PostMetric
		var platform string
		if err := rows.Scan(&m.ID, &m.PostID, &m.PostPlatformID, &platform, &m.Impressions, &m.Reach, &m.Likes,
			&m.Comments, &m.Shares, &m.Clicks, &m.Saves, &m.EstimatedRevenue, &m.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Platform = entitlements.Platform(platform)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DependencyUnavailable("Failed to load metrics", err)
	}
	return out, nil
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
