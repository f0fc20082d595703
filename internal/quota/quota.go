// Package quota counts a user's posts for the current local day and derives
// the remaining daily allowance.
package quota

import (
	"context"
	"time"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
)

// Usage is the daily-usage view. Limit and Remaining are nil when unlimited.
type Usage struct {
	Used      int  `json:"used"`
	Limit     *int `json:"limit"`
	Unlimited bool `json:"unlimited"`
	Remaining *int `json:"remaining"`
}

// Exhausted reports whether a finite limit has been reached.
func (u Usage) Exhausted() bool {
	return u.Limit != nil && u.Used >= *u.Limit
}

// Compute derives the usage view from a profile and a live count.
func Compute(p entitlements.Profile, used int) Usage {
	u := Usage{Used: used}
	if p.DailyPosts == nil {
		u.Unlimited = true
		return u
	}
	limit := *p.DailyPosts
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	u.Limit = &limit
	u.Remaining = &remaining
	return u
}

// StartOfDay returns local midnight of now in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

const countActiveSQL = `SELECT COUNT(*) FROM public.posts WHERE user_id = $1 AND created_at >= $2 AND status <> 'cancelled'`

// CountActivePosts counts non-cancelled posts created since the given instant.
// q may be a transaction so the count shares the caller's lock.
func CountActivePosts(ctx context.Context, q database.Querier, userID int64, since time.Time) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, countActiveSQL, userID, since).Scan(&n); err != nil {
		return 0, apperrors.DependencyUnavailable("Could not determine today's post usage. Please try again.", err)
	}
	return n, nil
}

// Accountant computes usage live on every call.
type Accountant struct {
	DB  database.Querier
	Loc *time.Location
	Now func() time.Time
}

func NewAccountant(db database.Querier, loc *time.Location) *Accountant {
	return &Accountant{DB: db, Loc: loc, Now: time.Now}
}

func (a *Accountant) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// DayStart is the start of the current quota day.
func (a *Accountant) DayStart() time.Time {
	return StartOfDay(a.now(), a.Loc)
}

// DailyUsage counts through a.DB.
func (a *Accountant) DailyUsage(ctx context.Context, userID int64, p entitlements.Profile) (Usage, error) {
	return a.DailyUsageWith(ctx, a.DB, userID, p)
}

// DailyUsageWith counts through q, typically a transaction.
func (a *Accountant) DailyUsageWith(ctx context.Context, q database.Querier, userID int64, p entitlements.Profile) (Usage, error) {
	used, err := CountActivePosts(ctx, q, userID, a.DayStart())
	if err != nil {
		return Usage{}, err
	}
	return Compute(p, used), nil
}
