package metrics

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/posts"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftx",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "liftx",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	postsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftx",
			Name:      "posts_created_total",
			Help:      "Posts committed by tier and initial status",
		},
		[]string{"tier", "status"},
	)

	postsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "liftx",
			Name:      "posts_cancelled_total",
			Help:      "Scheduled posts cancelled by their owner",
		},
	)

	entitlementDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftx",
			Name:      "entitlement_denials_total",
			Help:      "Create requests rejected by a tier gate",
		},
		[]string{"kind"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftx",
			Subsystem: "stripe",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	dispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liftx",
			Subsystem: "dispatcher",
			Name:      "platform_outcomes_total",
			Help:      "Per-platform publish attempts by outcome",
		},
		[]string{"platform", "outcome"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and latency labelled by mux route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := "unknown"
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCreateDenied counts entitlement denials; other errors are ignored.
func RecordCreateDenied(err error) {
	k := apperrors.KindOf(err)
	if apperrors.IsEntitlementDenial(k) {
		entitlementDenialsTotal.WithLabelValues(string(k)).Inc()
	}
}

func RecordWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordDispatchOutcome(platform, outcome string) {
	dispatchOutcomesTotal.WithLabelValues(platform, outcome).Inc()
}

// PostObserver feeds lifecycle counters.
type PostObserver struct{}

func (PostObserver) PostCreated(_ context.Context, c posts.Created) {
	postsCreatedTotal.WithLabelValues(string(c.Tier), string(c.Status)).Inc()
}

func (PostObserver) PostCancelled(context.Context, int64, int64) {
	postsCancelledTotal.Inc()
}
