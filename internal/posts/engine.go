// Package posts implements post creation and cancellation with tier gating,
// plus the per-user post listing.
package posts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/connections"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
	"github.com/PortNumber53/liftx/internal/quota"
	"github.com/PortNumber53/liftx/internal/users"
)

// CreateResult is returned after a successful create.
type CreateResult struct {
	PostID int64             `json:"postId"`
	Status models.PostStatus `json:"status"`
}

// Created describes a committed post for observers.
type Created struct {
	UserID      int64
	PostID      int64
	Status      models.PostStatus
	Tier        entitlements.Tier
	ContentType entitlements.ContentType
	Platforms   []entitlements.Platform
}

// Observer is told about committed transitions. Calls happen after commit and
// must not fail the request.
type Observer interface {
	PostCreated(ctx context.Context, c Created)
	PostCancelled(ctx context.Context, userID, postID int64)
}

type Config struct {
	// QuotaLocation is the zone whose midnight resets the daily count.
	QuotaLocation *time.Location
	// RequireConnectedPlatforms rejects targets without an active connection.
	RequireConnectedPlatforms bool
}

type Engine struct {
	db        *sql.DB
	cfg       Config
	now       func() time.Time
	observers []Observer
}

func NewEngine(db *sql.DB, cfg Config, observers ...Observer) *Engine {
	if cfg.QuotaLocation == nil {
		cfg.QuotaLocation = time.Local
	}
	return &Engine{db: db, cfg: cfg, now: time.Now, observers: observers}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Create validates, gates and persists a post. Checks run in a fixed order and
// the first failure wins; nothing is written when any check fails.
func (e *Engine) Create(ctx context.Context, userID int64, in CreateInput) (CreateResult, error) {
	now := e.now()
	n, err := normalize(in, now)
	if err != nil {
		return CreateResult{}, err
	}

	var res CreateResult
	var tier entitlements.Tier
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		st, err := users.LockForPosting(ctx, tx, userID)
		if err != nil {
			return err
		}
		tier = st.Tier
		profile := entitlements.Effective(st.Tier, st.ProPostLimit)

		if err := e.checkEntitlements(ctx, tx, userID, profile, n, now); err != nil {
			return err
		}
		if err := n.checkMedia(); err != nil {
			return err
		}

		res, err = insertPost(ctx, tx, userID, n, now)
		return err
	})
	if err != nil {
		if ae, ok := apperrors.As(err); ok && apperrors.IsEntitlementDenial(ae.Kind) {
			log.Info().Str("component", "posts").Int64("userId", userID).Str("kind", string(ae.Kind)).Msg("create denied")
		}
		return CreateResult{}, err
	}

	log.Info().Str("component", "posts").Int64("userId", userID).Int64("postId", res.PostID).
		Str("status", string(res.Status)).Msg("post created")
	for _, o := range e.observers {
		o.PostCreated(ctx, Created{
			UserID:      userID,
			PostID:      res.PostID,
			Status:      res.Status,
			Tier:        tier,
			ContentType: n.contentType,
			Platforms:   n.platforms,
		})
	}
	return res, nil
}

func (e *Engine) checkEntitlements(ctx context.Context, tx *sql.Tx, userID int64, profile entitlements.Profile, n normalized, now time.Time) error {
	tier := string(profile.Tier)

	if profile.DailyPosts != nil {
		used, err := quota.CountActivePosts(ctx, tx, userID, quota.StartOfDay(now, e.cfg.QuotaLocation))
		if err != nil {
			return err
		}
		if used >= *profile.DailyPosts {
			return apperrors.QuotaExceeded(*profile.DailyPosts, tier)
		}
	}
	if profile.Platforms != nil && len(n.platforms) > *profile.Platforms {
		return apperrors.PlatformLimitExceeded(*profile.Platforms, tier)
	}
	if !profile.AllowsContentType(n.contentType) {
		return apperrors.ContentTypeNotAllowed(string(n.contentType), tier)
	}
	if n.scheduledAt != nil && !profile.CanSchedule {
		return apperrors.SchedulingNotAllowed()
	}
	if e.cfg.RequireConnectedPlatforms {
		active, err := connections.ActiveSet(ctx, tx, userID)
		if err != nil {
			return apperrors.DependencyUnavailable("Could not verify your connected platforms. Please try again.", err)
		}
		for _, p := range n.platforms {
			if !active[p] {
				name := string(p)
				if r, ok := entitlements.RulesFor(p); ok {
					name = r.Name
				}
				return apperrors.PlatformNotConnected(name)
			}
		}
	}
	return nil
}

func insertPost(ctx context.Context, tx *sql.Tx, userID int64, n normalized, now time.Time) (CreateResult, error) {
	status := models.PostPublished
	platformStatus := models.PlatformPublished
	var publishedAt *time.Time
	if n.scheduledAt != nil {
		status = models.PostScheduled
		platformStatus = models.PlatformPending
	} else {
		publishedAt = &now
	}

	var postID int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO public.posts (user_id, caption, content_type, media_urls, media_keys, status, scheduled_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		userID, n.caption, string(n.contentType), pq.Array(n.mediaURLs), pq.Array(n.mediaKeys),
		string(status), n.scheduledAt, publishedAt,
	).Scan(&postID)
	if err != nil {
		return CreateResult{}, database.Unavailable(err, "insert post")
	}

	names := make([]string, 0, len(n.platforms))
	for _, p := range n.platforms {
		names = append(names, string(p))
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO public.post_platforms (post_id, platform, status, published_at)
		SELECT $1, p, $3, $4 FROM unnest($2::text[]) AS p`,
		postID, pq.Array(names), string(platformStatus), publishedAt,
	); err != nil {
		return CreateResult{}, database.Unavailable(err, "insert post platforms")
	}
	return CreateResult{PostID: postID, Status: status}, nil
}

// Cancel moves a scheduled post owned by userID to cancelled. Pending platform
// rows are cancelled with it.
func (e *Engine) Cancel(ctx context.Context, userID, postID int64) error {
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var owner int64
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, status FROM public.posts WHERE id = $1 FOR UPDATE`, postID,
		).Scan(&owner, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.PostNotFound()
		}
		if err != nil {
			return apperrors.DependencyUnavailable("Could not load the post. Please try again.", err)
		}
		if owner != userID {
			return apperrors.PostNotFound()
		}
		if models.PostStatus(status) != models.PostScheduled {
			return apperrors.InvalidStateTransition("Only scheduled posts can be cancelled")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE public.posts SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, postID,
		); err != nil {
			return database.Unavailable(err, "cancel post %d", postID)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE public.post_platforms SET status = 'cancelled', updated_at = NOW() WHERE post_id = $1 AND status = 'pending'`, postID,
		); err != nil {
			return database.Unavailable(err, "cancel platform rows for post %d", postID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("component", "posts").Int64("userId", userID).Int64("postId", postID).Msg("post cancelled")
	for _, o := range e.observers {
		o.PostCancelled(ctx, userID, postID)
	}
	return nil
}
