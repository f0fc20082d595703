package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/database"
)

// NotificationCleanupWorker removes owner notification logs older than the retention period.
type NotificationCleanupWorker struct {
	DB             database.Querier
	RetentionHours int           // default 720
	Interval       time.Duration // default 1h, used by Start only
	Now            func() time.Time
}

func (w *NotificationCleanupWorker) defaults() {
	if w.RetentionHours <= 0 {
		w.RetentionHours = 720
	}
	if w.Interval <= 0 {
		w.Interval = time.Hour
	}
	if w.Now == nil {
		w.Now = time.Now
	}
}

// Start runs the cleanup loop until ctx is done.
func (w *NotificationCleanupWorker) Start(ctx context.Context) {
	w.defaults()
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	logger := log.With().Str("component", "notification-cleanup").Logger()
	logger.Info().Int("retentionHours", w.RetentionHours).Dur("interval", w.Interval).Msg("started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopped")
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce deletes expired logs and returns how many rows went away.
func (w *NotificationCleanupWorker) RunOnce(ctx context.Context) (int64, error) {
	w.defaults()
	cutoff := w.Now().Add(-time.Duration(w.RetentionHours) * time.Hour)
	logger := log.With().Str("component", "notification-cleanup").Logger()

	result, err := w.DB.ExecContext(ctx, `
		DELETE FROM public.notification_logs
		WHERE sent_at < $1
	`, cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("cleanup failed")
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		logger.Error().Err(err).Msg("rows affected")
		return 0, err
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Msg("deleted old notification logs")
	}
	return deleted, nil
}
