package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PortNumber53/liftx/internal/auth"
	"github.com/PortNumber53/liftx/internal/metrics"
	"github.com/PortNumber53/liftx/internal/middleware"
	"github.com/PortNumber53/liftx/internal/ratelimit"
)

type RouterOptions struct {
	Verifier    *auth.Verifier
	Users       auth.UserUpserter
	PostLimiter ratelimit.Limiter
}

// NewRouter registers every API route on a fresh mux router.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger, metrics.Middleware)

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/api/posts/platform-content-types", h.PlatformContentTypes).Methods("GET")
	r.HandleFunc("/api/subscription/plans", h.ListPlans).Methods("GET")
	r.HandleFunc("/api/stripe/webhook", h.StripeWebhook).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(opts.Verifier, opts.Users))

	api.HandleFunc("/auth/me", h.Me).Methods("GET")

	api.HandleFunc("/posts", h.ListPosts).Methods("GET")
	createPost := http.Handler(http.HandlerFunc(h.CreatePost))
	if opts.PostLimiter != nil {
		createPost = middleware.RateLimit(opts.PostLimiter)(createPost)
	}
	api.Handle("/posts", createPost).Methods("POST")
	api.HandleFunc("/posts/cancel", h.CancelPost).Methods("POST")
	api.HandleFunc("/posts/daily-usage", h.DailyUsage).Methods("GET")

	api.HandleFunc("/platforms/connected", h.ListConnected).Methods("GET")
	api.HandleFunc("/platforms/connect", h.ConnectPlatform).Methods("POST")
	api.HandleFunc("/platforms/disconnect", h.DisconnectPlatform).Methods("POST")

	api.HandleFunc("/subscription/current", h.CurrentSubscription).Methods("GET")
	api.HandleFunc("/subscription/checkout", h.CreateCheckout).Methods("POST")
	api.HandleFunc("/subscription/simulate-upgrade", h.SimulateUpgrade).Methods("POST")

	api.HandleFunc("/upload/url", h.UploadURL).Methods("POST")
	api.HandleFunc("/upload", h.Upload).Methods("POST")

	api.Handle("/metrics/overview",
		middleware.RequireCapability(middleware.CapabilityAnalytics)(http.HandlerFunc(h.MetricsOverview)),
	).Methods("GET")

	api.HandleFunc("/events/ws", h.EventsWebSocket).Methods("GET")

	return r
}
