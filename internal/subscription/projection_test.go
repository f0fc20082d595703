package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/quota"
)

var userCols = []string{
	"id", "open_id", "name", "email", "avatar_url", "login_method", "role", "subscription_tier",
	"stripe_customer_id", "stripe_subscription_id", "subscription_status",
	"subscription_expires_at", "pro_post_limit", "created_at", "updated_at", "last_signed_in",
}

func newProjection(t *testing.T) (*Projection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	acc := &quota.Accountant{DB: db, Loc: time.UTC, Now: func() time.Time { return now }}
	return NewProjection(db, acc), mock
}

func expectUser(mock sqlmock.Sqlmock, id int64, tier string, proLimit any) {
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM public\.users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			id, "open-1", nil, nil, nil, nil, "user", tier, "cus_1", "sub_1", "active", nil, proLimit, now, now, now,
		))
}

func expectCount(mock sqlmock.Sqlmock, id int64, used int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM public\.posts`).
		WithArgs(id, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(used))
}

func TestCurrentView_Trial(t *testing.T) {
	p, mock := newProjection(t)
	expectUser(mock, 1, "trial", int64(50))
	expectCount(mock, 1, 1)

	v, err := p.CurrentView(context.Background(), 1)
	if err != nil {
		t.Fatalf("CurrentView: %v", err)
	}
	if v.Tier != entitlements.TierTrial || v.DailyUsed != 1 || *v.DailyLimit != 2 || v.Unlimited {
		t.Fatalf("unexpected view %+v", v)
	}
	if *v.PlatformLimit != 2 || v.CanSchedule || v.HasAnalytics {
		t.Fatalf("unexpected trial entitlements %+v", v)
	}
	if len(v.AllowedContentTypes) != 1 || v.AllowedContentTypes[0] != entitlements.ContentImage {
		t.Fatalf("expected image only got %v", v.AllowedContentTypes)
	}
	if v.StripeSubscriptionID == nil || *v.StripeSubscriptionID != "sub_1" {
		t.Fatalf("expected subscription id sub_1 got %v", v.StripeSubscriptionID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDailyUsage_UltraPro(t *testing.T) {
	p, mock := newProjection(t)
	expectUser(mock, 3, "ultra_pro", nil)
	expectCount(mock, 3, 412)

	v, err := p.DailyUsage(context.Background(), 3)
	if err != nil {
		t.Fatalf("DailyUsage: %v", err)
	}
	if !v.Unlimited || v.Limit != nil || v.Remaining != nil || v.Used != 412 {
		t.Fatalf("unexpected usage %+v", v)
	}
}

func TestDailyUsage_ProOverrideAtLimit(t *testing.T) {
	p, mock := newProjection(t)
	expectUser(mock, 2, "pro", int64(10))
	expectCount(mock, 2, 10)

	v, err := p.DailyUsage(context.Background(), 2)
	if err != nil {
		t.Fatalf("DailyUsage: %v", err)
	}
	if *v.Limit != 10 || *v.Remaining != 0 || v.Tier != entitlements.TierPro {
		t.Fatalf("unexpected usage %+v", v)
	}
}

func TestPlans(t *testing.T) {
	p, mock := newProjection(t)
	mock.ExpectQuery(`FROM public\.subscription_plans\s+WHERE is_active = TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "tier", "stripe_price_id", "monthly_price_cents", "yearly_price_cents",
			"daily_post_limit", "platform_limit", "features", "is_active",
		}).
			AddRow(int64(1), "Trial", "trial", nil, int64(0), int64(0), int64(2), int64(2), []byte(`["2 posts per day"]`), true).
			AddRow(int64(3), "Ultra Pro", "ultra_pro", nil, int64(4900), int64(47000), nil, nil, []byte(`["Analytics"]`), true))

	plans, err := p.Plans(context.Background())
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans got %d", len(plans))
	}
	if plans[0].DailyPostLimit == nil || *plans[0].DailyPostLimit != 2 || plans[0].Features[0] != "2 posts per day" {
		t.Fatalf("unexpected trial plan %+v", plans[0])
	}
	if plans[1].DailyPostLimit != nil || plans[1].Tier != entitlements.TierUltraPro {
		t.Fatalf("unexpected ultra plan %+v", plans[1])
	}
}
