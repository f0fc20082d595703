// Package users persists account rows keyed by the external identity (open id).
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
)

// Identity is what the auth layer knows about a caller on sign-in.
type Identity struct {
	OpenID      string
	Name        *string
	Email       *string
	AvatarURL   *string
	LoginMethod *string
}

type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

const userColumns = `id, open_id, name, email, avatar_url, login_method, role, subscription_tier,
	stripe_customer_id, stripe_subscription_id, COALESCE(subscription_status, 'active'),
	subscription_expires_at, pro_post_limit, created_at, updated_at, last_signed_in`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var tier string
	var proLimit sql.NullInt64
	if err := row.Scan(
		&u.ID, &u.OpenID, &u.Name, &u.Email, &u.AvatarURL, &u.LoginMethod, &u.Role, &tier,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.SubscriptionStatus,
		&u.SubscriptionExpiresAt, &proLimit, &u.CreatedAt, &u.UpdatedAt, &u.LastSignedIn,
	); err != nil {
		return nil, err
	}
	u.SubscriptionTier = entitlements.Tier(tier)
	if proLimit.Valid {
		n := int(proLimit.Int64)
		u.ProPostLimit = &n
	}
	return &u, nil
}

// UpsertByOpenID creates the user on first sign-in and refreshes profile fields
// and last_signed_in afterwards. Subscription fields are never touched here.
func (s *Store) UpsertByOpenID(ctx context.Context, id Identity) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO public.users (open_id, name, email, avatar_url, login_method, last_signed_in)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (open_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, public.users.name),
			email = COALESCE(EXCLUDED.email, public.users.email),
			avatar_url = COALESCE(EXCLUDED.avatar_url, public.users.avatar_url),
			login_method = COALESCE(EXCLUDED.login_method, public.users.login_method),
			last_signed_in = NOW(),
			updated_at = NOW()
		RETURNING `+userColumns,
		id.OpenID, id.Name, id.Email, id.AvatarURL, id.LoginMethod,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user %q: %w", id.OpenID, err)
	}
	return u, nil
}

func (s *Store) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM public.users WHERE id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("User")
	}
	if err != nil {
		return nil, apperrors.DependencyUnavailable("Could not load your account. Please try again.", err)
	}
	return u, nil
}

func (s *Store) GetByOpenID(ctx context.Context, openID string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM public.users WHERE open_id = $1`, openID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("User")
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", openID, err)
	}
	return u, nil
}

// PostingState is the slice of the user row the lifecycle engine needs.
type PostingState struct {
	Tier         entitlements.Tier
	ProPostLimit *int
}

// LockForPosting reads tier and override with a row lock held until q's
// transaction ends. Concurrent creates by the same user serialize here.
func LockForPosting(ctx context.Context, q database.Querier, userID int64) (PostingState, error) {
	var tier string
	var proLimit sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT subscription_tier, pro_post_limit FROM public.users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&tier, &proLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return PostingState{}, apperrors.NotFound("User")
	}
	if err != nil {
		return PostingState{}, apperrors.DependencyUnavailable("Could not load your plan. Please try again.", err)
	}
	st := PostingState{Tier: entitlements.Tier(tier)}
	if proLimit.Valid {
		n := int(proLimit.Int64)
		st.ProPostLimit = &n
	}
	return st, nil
}

// SetTier records a self-service or operator tier change. Last write wins.
func (s *Store) SetTier(ctx context.Context, userID int64, tier entitlements.Tier) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE public.users
		SET subscription_tier = $2, subscription_status = 'active', updated_at = NOW()
		WHERE id = $1`, userID, string(tier))
	if err != nil {
		return fmt.Errorf("set tier for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("User")
	}
	return nil
}

// SetTierByOpenID is the operator path. A nil proPostLimit leaves the override unchanged.
func (s *Store) SetTierByOpenID(ctx context.Context, openID string, tier entitlements.Tier, proPostLimit *int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE public.users
		SET subscription_tier = $2,
			subscription_status = 'active',
			pro_post_limit = COALESCE($3, pro_post_limit),
			updated_at = NOW()
		WHERE open_id = $1`, openID, string(tier), proPostLimit)
	if err != nil {
		return fmt.Errorf("set tier for %q: %w", openID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("User")
	}
	return nil
}
