package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/metrics"
	"github.com/PortNumber53/liftx/internal/models"
)

const defaultBatch = 25

// recordTimeout bounds status writes that outlive a cancelled dispatch.
const recordTimeout = 10 * time.Second

// Finisher is told when a dispatched post reaches a terminal status.
type Finisher interface {
	PostFinished(ctx context.Context, userID, postID int64, status models.PostStatus)
}

type Options struct {
	Batch     int
	Getenv    func(string) string
	Finishers []Finisher
}

type Dispatcher struct {
	db        *sql.DB
	pub       Publisher
	limiters  map[entitlements.Platform]*rate.Limiter
	finishers []Finisher
	batch     int
	now       func() time.Time
}

func NewDispatcher(db *sql.DB, pub Publisher, opts Options) *Dispatcher {
	if pub == nil {
		pub = SimulatedPublisher{}
	}
	batch := opts.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Dispatcher{
		db:        db,
		pub:       pub,
		limiters:  newLimiters(opts.Getenv),
		finishers: opts.Finishers,
		batch:     batch,
		now:       time.Now,
	}
}

func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

type candidate struct {
	id     int64
	userID int64
}

type target struct {
	rowID    int64
	platform entitlements.Platform
}

// RunOnce claims due scheduled posts and publishes each. It returns how many
// posts it claimed.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id
		FROM public.posts
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC, id ASC
		LIMIT $2`, d.now().UTC(), d.batch)
	if err != nil {
		return 0, fmt.Errorf("list due posts: %w", err)
	}
	var cands []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.userID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan due post: %w", err)
		}
		cands = append(cands, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("list due posts: %w", err)
	}

	claimed := 0
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		ok, err := d.claim(ctx, c.id)
		if err != nil {
			log.Error().Str("component", "dispatcher").Int64("postId", c.id).Err(err).Msg("claim failed")
			continue
		}
		if !ok {
			log.Debug().Str("component", "dispatcher").Int64("postId", c.id).Msg("claim skipped, no longer scheduled")
			continue
		}
		claimed++
		d.dispatch(ctx, c)
	}
	return claimed, nil
}

// claim moves the post from scheduled to publishing. A cancelled post is never claimed.
func (d *Dispatcher) claim(ctx context.Context, postID int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE public.posts
		SET status = 'publishing', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`, postID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, c candidate) {
	logger := log.With().Str("component", "dispatcher").Int64("postId", c.id).Int64("userId", c.userID).Logger()

	var caption sql.NullString
	var contentType string
	var mediaURLs []string
	if err := d.db.QueryRowContext(ctx, `
		SELECT caption, content_type, COALESCE(media_urls, ARRAY[]::text[])
		FROM public.posts WHERE id = $1`, c.id,
	).Scan(&caption, &contentType, pq.Array(&mediaURLs)); err != nil {
		logger.Error().Err(err).Msg("load post failed")
		d.finish(ctx, c, false, "failed to load post")
		return
	}

	targets, err := d.claimPlatforms(ctx, c.id)
	if err != nil {
		logger.Error().Err(err).Msg("claim platforms failed")
		d.finish(ctx, c, false, "failed to claim platforms")
		return
	}
	if len(targets) == 0 {
		d.finish(ctx, c, false, "no pending platforms")
		return
	}

	succeeded := 0
	var failures []string
	for _, t := range targets {
		req := Request{
			PostID:      c.id,
			UserID:      c.userID,
			Platform:    t.platform,
			Caption:     caption.String,
			ContentType: entitlements.ContentType(contentType),
			MediaURLs:   mediaURLs,
		}
		res, err := d.publishOne(ctx, req)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", t.platform, err))
			metrics.RecordDispatchOutcome(string(t.platform), "failed")
			logger.Warn().Str("platform", string(t.platform)).Err(err).Msg("platform publish failed")
			if uerr := d.record(ctx, `
				UPDATE public.post_platforms
				SET status = 'failed', failure_reason = $2, updated_at = NOW()
				WHERE id = $1`, t.rowID, err.Error()); uerr != nil {
				logger.Error().Err(uerr).Msg("record platform failure")
			}
			continue
		}
		succeeded++
		metrics.RecordDispatchOutcome(string(t.platform), "published")
		if uerr := d.record(ctx, `
			UPDATE public.post_platforms
			SET status = 'published', platform_post_id = $2, published_at = $3, failure_reason = NULL, updated_at = NOW()
			WHERE id = $1`, t.rowID, res.PlatformPostID, d.now().UTC()); uerr != nil {
			logger.Error().Err(uerr).Msg("record platform success")
		}
	}

	d.finish(ctx, c, succeeded > 0, strings.Join(failures, "; "))
}

func (d *Dispatcher) publishOne(ctx context.Context, req Request) (Result, error) {
	if lim := d.limiters[req.Platform]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("rate limiter: %w", err)
		}
	}
	return d.pub.Publish(ctx, req)
}

func (d *Dispatcher) claimPlatforms(ctx context.Context, postID int64) ([]target, error) {
	rows, err := d.db.QueryContext(ctx, `
		UPDATE public.post_platforms
		SET status = 'publishing', updated_at = NOW()
		WHERE post_id = $1 AND status = 'pending'
		RETURNING id, platform`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []target
	for rows.Next() {
		var t target
		var p string
		if err := rows.Scan(&t.rowID, &p); err != nil {
			return nil, err
		}
		t.platform = entitlements.Platform(p)
		out = append(out, t)
	}
	return out, rows.Err()
}

// record writes a status change even when ctx has been cancelled, so a
// shutdown mid-dispatch never leaves rows in publishing.
func (d *Dispatcher) record(ctx context.Context, query string, args ...any) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	_, err := d.db.ExecContext(wctx, query, args...)
	return err
}

// finish marks the post published when any platform succeeded, else failed.
func (d *Dispatcher) finish(ctx context.Context, c candidate, ok bool, reason string) {
	status := models.PostFailed
	var err error
	if ok {
		status = models.PostPublished
		err = d.record(ctx, `
			UPDATE public.posts
			SET status = 'published', published_at = $2, failure_reason = NULL, updated_at = NOW()
			WHERE id = $1 AND status = 'publishing'`, c.id, d.now().UTC())
	} else {
		err = d.record(ctx, `
			UPDATE public.posts
			SET status = 'failed', failure_reason = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'publishing'`, c.id, reason)
	}
	logger := log.With().Str("component", "dispatcher").Int64("postId", c.id).Str("status", string(status)).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("finalize post failed")
		return
	}
	logger.Info().Msg("post dispatched")
	for _, f := range d.finishers {
		f.PostFinished(context.WithoutCancel(ctx), c.userID, c.id, status)
	}
}
