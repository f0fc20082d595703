package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/analytics"
	"github.com/PortNumber53/liftx/internal/auth"
	"github.com/PortNumber53/liftx/internal/billing"
	"github.com/PortNumber53/liftx/internal/config"
	"github.com/PortNumber53/liftx/internal/connections"
	"github.com/PortNumber53/liftx/internal/database"
	"github.com/PortNumber53/liftx/internal/handlers"
	"github.com/PortNumber53/liftx/internal/logger"
	"github.com/PortNumber53/liftx/internal/metrics"
	"github.com/PortNumber53/liftx/internal/notify"
	"github.com/PortNumber53/liftx/internal/posts"
	"github.com/PortNumber53/liftx/internal/publisher"
	"github.com/PortNumber53/liftx/internal/quota"
	"github.com/PortNumber53/liftx/internal/ratelimit"
	"github.com/PortNumber53/liftx/internal/realtime"
	"github.com/PortNumber53/liftx/internal/storage"
	"github.com/PortNumber53/liftx/internal/subscription"
	"github.com/PortNumber53/liftx/internal/users"
	"github.com/PortNumber53/liftx/internal/workers"
)

// deps holds the process boundaries run touches so tests can replace them.
type deps struct {
	openDB         func(ctx context.Context, url string, opts database.Options) (*sql.DB, error)
	migrateUp      func(db *sql.DB, sourceURL string) error
	newBlobStore   func(ctx context.Context, c config.StorageConfig) (storage.BlobStore, error)
	listenAndServe func(srv *http.Server) error
}

func defaultDeps() deps {
	return deps{
		openDB:         database.Open,
		migrateUp:      database.MigrateUp,
		newBlobStore:   newBlobStore,
		listenAndServe: func(srv *http.Server) error { return srv.ListenAndServe() },
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Setup(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	// Root context for background workers and graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, defaultDeps()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, d deps) error {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if d.openDB == nil || d.migrateUp == nil || d.newBlobStore == nil || d.listenAndServe == nil {
		return errors.New("incomplete dependencies")
	}

	db, err := d.openDB(ctx, cfg.Database.URL, database.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := d.migrateUp(db, cfg.Database.MigrationsPath); err != nil {
		return err
	}

	blobs, err := d.newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	limiter, err := newPostLimiter(cfg)
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, db, blobs, limiter)
	if err != nil {
		return err
	}
	a.scheduler.Start()

	srv := &http.Server{
		Handler:           a.handler,
		Addr:              ":" + cfg.Server.Port,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		err := d.listenAndServe(srv)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			a.scheduler.Stop(context.Background())
			return err
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

type app struct {
	handler   http.Handler
	router    *mux.Router
	hub       *realtime.Hub
	scheduler *workers.Scheduler
}

// buildApp wires stores, services, routes and background jobs around db.
func buildApp(cfg *config.Config, db *sql.DB, blobs storage.BlobStore, limiter ratelimit.Limiter) (*app, error) {
	hub := realtime.NewHub()
	notifier := notify.New(db, cfg.Notification.OwnerWebhookURL)

	engine := posts.NewEngine(db, posts.Config{
		QuotaLocation:             cfg.QuotaLocation(),
		RequireConnectedPlatforms: cfg.Posting.RequireConnectedPlatforms,
	}, notifier, hub, metrics.PostObserver{})

	h := handlers.New(handlers.Deps{
		DB:           db,
		Posts:        engine,
		Connections:  connections.NewRegistry(db),
		Subscription: subscription.NewProjection(db, quota.NewAccountant(db, cfg.QuotaLocation())),
		Billing: billing.New(db, billing.NewStripeSessions(cfg.Stripe.SecretKey), billing.Options{
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Notifier:      notifier,
			Events:        hub,
		}),
		Analytics:    analytics.NewService(db),
		Blobs:        blobs,
		Hub:          hub,
		PublicOrigin: cfg.Server.PublicOrigin,
	})

	r := handlers.NewRouter(h, handlers.RouterOptions{
		Verifier:    auth.NewVerifier(cfg.Auth.JWTSecret),
		Users:       users.NewStore(db),
		PostLimiter: limiter,
	})
	mountLocalFiles(r, cfg.Storage)

	sched, err := buildScheduler(cfg, db, hub)
	if err != nil {
		return nil, err
	}

	return &app{
		handler:   newCORS(cfg.Server.CORSAllowedOrigins).Handler(r),
		router:    r,
		hub:       hub,
		scheduler: sched,
	}, nil
}

func buildScheduler(cfg *config.Config, db *sql.DB, hub *realtime.Hub) (*workers.Scheduler, error) {
	sched := workers.NewScheduler()

	cleanup := &workers.NotificationCleanupWorker{DB: db, RetentionHours: cfg.Notification.RetentionHours}
	if err := sched.Add("notification-cleanup", "@hourly", func(ctx context.Context) error {
		_, err := cleanup.RunOnce(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	if !cfg.Dispatcher.Enabled {
		log.Info().Str("component", "dispatcher").Msg("disabled via DISPATCHER_ENABLED")
		return sched, nil
	}
	d := publisher.NewDispatcher(db, publisher.SimulatedPublisher{}, publisher.Options{
		Finishers: []publisher.Finisher{hub},
	})
	if err := sched.Add("post-dispatcher", cfg.Dispatcher.Schedule, func(ctx context.Context) error {
		_, err := d.RunOnce(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	return sched, nil
}

func newBlobStore(ctx context.Context, c config.StorageConfig) (storage.BlobStore, error) {
	if c.Driver == "minio" {
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:      c.MinioEndpoint,
			AccessKey:     c.MinioAccessKey,
			SecretKey:     c.MinioSecretKey,
			Bucket:        c.MinioBucket,
			UseSSL:        c.MinioUseSSL,
			PublicBaseURL: c.PublicBaseURL,
		})
	}
	return storage.NewLocalStore(c.LocalDir, c.PublicBaseURL)
}

// newPostLimiter shares the create-post budget through Redis when REDIS_ADDR
// is set and falls back to a per-process limiter otherwise.
func newPostLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	perMinute := cfg.Posting.RateLimitPerMinute
	if perMinute <= 0 {
		return nil, nil
	}
	if cfg.Redis.Addr == "" {
		return ratelimit.NewLocal(perMinute), nil
	}
	return ratelimit.NewRedisFixedWindow(cfg.Redis.Addr, cfg.Redis.Password, "liftx:posts", perMinute, time.Minute)
}

// mountLocalFiles serves the local blob directory when its public base URL is a path on this server.
func mountLocalFiles(r *mux.Router, c config.StorageConfig) {
	if c.Driver != "local" || !strings.HasPrefix(c.PublicBaseURL, "/") {
		return
	}
	prefix := strings.TrimRight(c.PublicBaseURL, "/") + "/"
	r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(c.LocalDir)))).Methods("GET", "HEAD")
}

func newCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Stripe-Signature", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
	})
}
