package posts

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
)

type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

const (
	defaultListLimit = 20
	maxListLimit     = 50
)

func (o *ListOptions) normalize() error {
	if o.Limit == 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit < 1 || o.Limit > maxListLimit {
		return apperrors.Validation(fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
	}
	if o.Offset < 0 {
		return apperrors.Validation("offset must not be negative")
	}
	o.Status = strings.TrimSpace(o.Status)
	if o.Status != "" && !models.PostStatus(o.Status).Valid() {
		return apperrors.Validation(fmt.Sprintf("unknown status %q", o.Status))
	}
	return nil
}

// List returns the user's posts newest first, each with its platform rows.
func (e *Engine) List(ctx context.Context, userID int64, opts ListOptions) ([]models.Post, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, caption, content_type, media_urls, media_keys, status,
			scheduled_at, published_at, failure_reason, created_at, updated_at
		FROM public.posts
		WHERE user_id = $1`
	args := []any{userID}
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, opts.Limit, opts.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.Unavailable(err, "list posts for user %d", userID)
	}
	defer rows.Close()

	out := []models.Post{}
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		var p models.Post
		var contentType, status string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Caption, &contentType, pq.Array(&p.MediaURLs), pq.Array(&p.MediaKeys),
			&status, &p.ScheduledAt, &p.PublishedAt, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.ContentType = entitlements.ContentType(contentType)
		p.Status = models.PostStatus(status)
		p.Platforms = []models.PostPlatform{}
		if p.MediaURLs == nil {
			p.MediaURLs = []string{}
		}
		if p.MediaKeys == nil {
			p.MediaKeys = []string{}
		}
		index[p.ID] = len(out)
		ids = append(ids, p.ID)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	prows, err := e.db.QueryContext(ctx, `
		SELECT id, post_id, platform, status, platform_post_id, published_at, failure_reason, created_at
		FROM public.post_platforms
		WHERE post_id = ANY($1)
		ORDER BY post_id, id`, pq.Array(ids))
	if err != nil {
		return nil, database.Unavailable(err, "list post platforms")
	}
	defer prows.Close()
	for prows.Next() {
		var pp models.PostPlatform
		var platform, status string
		if err := prows.Scan(&pp.ID, &pp.PostID, &platform, &status, &pp.PlatformPostID,
			&pp.PublishedAt, &pp.FailureReason, &pp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post platform: %w", err)
		}
		pp.Platform = entitlements.Platform(platform)
		pp.Status = models.PlatformStatus(status)
		if i, ok := index[pp.PostID]; ok {
			out[i].Platforms = append(out[i].Platforms, pp)
		}
	}
	return out, prows.Err()
}
