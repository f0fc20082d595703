// Package connections tracks which social platforms a user has linked.
package connections

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
)

// Profile holds the display fields captured when an account is linked.
// Token material is opaque to the registry.
type Profile struct {
	PlatformUserID      *string `json:"platformUserId"`
	PlatformUsername    *string `json:"platformUsername"`
	PlatformDisplayName *string `json:"platformDisplayName"`
	PlatformAvatarURL   *string `json:"platformAvatarUrl"`
	AccessToken         *string `json:"-"`
	RefreshToken        *string `json:"-"`
}

type Registry struct {
	db database.Querier
}

func NewRegistry(db database.Querier) *Registry {
	return &Registry{db: db}
}

// List returns the user's active connections.
func (r *Registry) List(ctx context.Context, userID int64) ([]models.ConnectedAccount, error) {
	return listActive(ctx, r.db, userID)
}

func listActive(ctx context.Context, q database.Querier, userID int64) ([]models.ConnectedAccount, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, platform, platform_user_id, platform_username, platform_display_name,
			platform_avatar_url, token_expires_at, is_active, created_at, updated_at
		FROM public.connected_accounts
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY platform`, userID)
	if err != nil {
		return nil, database.Unavailable(err, "list connections for user %d", userID)
	}
	defer rows.Close()

	out := []models.ConnectedAccount{}
	for rows.Next() {
		var a models.ConnectedAccount
		var platform string
		if err := rows.Scan(&a.ID, &a.UserID, &platform, &a.PlatformUserID, &a.PlatformUsername,
			&a.PlatformDisplayName, &a.PlatformAvatarURL, &a.TokenExpiresAt, &a.IsActive,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, database.Unavailable(err, "scan connection")
		}
		a.Platform = entitlements.Platform(platform)
		out = append(out, a)
	}
	return out, database.Unavailable(rows.Err(), "list connections for user %d", userID)
}

// ActiveSet returns the set of platforms with an active connection.
func ActiveSet(ctx context.Context, q database.Querier, userID int64) (map[entitlements.Platform]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT platform FROM public.connected_accounts WHERE user_id = $1 AND is_active = TRUE`, userID)
	if err != nil {
		return nil, database.Unavailable(err, "active platforms for user %d", userID)
	}
	defer rows.Close()

	set := map[entitlements.Platform]bool{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, database.Unavailable(err, "scan platform")
		}
		set[entitlements.Platform(p)] = true
	}
	return set, database.Unavailable(rows.Err(), "active platforms for user %d", userID)
}

func (r *Registry) ListActive(ctx context.Context, userID int64) (map[entitlements.Platform]bool, error) {
	return ActiveSet(ctx, r.db, userID)
}

// Connect links or relinks an account. The upsert keeps at most one row per
// (user, platform), reactivates it and overwrites the display fields.
func (r *Registry) Connect(ctx context.Context, userID int64, platform entitlements.Platform, p Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO public.connected_accounts
			(user_id, platform, platform_user_id, platform_username, platform_display_name,
			 platform_avatar_url, access_token, refresh_token, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW())
		ON CONFLICT (user_id, platform) DO UPDATE SET
			platform_user_id = EXCLUDED.platform_user_id,
			platform_username = EXCLUDED.platform_username,
			platform_display_name = EXCLUDED.platform_display_name,
			platform_avatar_url = EXCLUDED.platform_avatar_url,
			access_token = COALESCE(EXCLUDED.access_token, public.connected_accounts.access_token),
			refresh_token = COALESCE(EXCLUDED.refresh_token, public.connected_accounts.refresh_token),
			is_active = TRUE,
			updated_at = NOW()`,
		userID, string(platform), p.PlatformUserID, p.PlatformUsername, p.PlatformDisplayName,
		p.PlatformAvatarURL, p.AccessToken, p.RefreshToken,
	)
	if err != nil {
		return database.Unavailable(err, "connect %s for user %d", platform, userID)
	}
	log.Info().Str("component", "connections").Int64("userId", userID).Str("platform", string(platform)).Msg("platform connected")
	return nil
}

// Disconnect deactivates the row. A missing row is a no-op.
func (r *Registry) Disconnect(ctx context.Context, userID int64, platform entitlements.Platform) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE public.connected_accounts
		SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND platform = $2`, userID, string(platform))
	if err != nil {
		return database.Unavailable(err, "disconnect %s for user %d", platform, userID)
	}
	return nil
}
