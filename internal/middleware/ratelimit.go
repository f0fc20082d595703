package middleware

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/auth"
	"github.com/PortNumber53/liftx/internal/ratelimit"
)

// RateLimit throttles requests per authenticated user, falling back to the
// remote address for anonymous callers.
func RateLimit(l ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if u, ok := auth.UserFrom(r.Context()); ok {
				key = "user:" + strconv.FormatInt(u.ID, 10)
			}
			if !l.Allow(r.Context(), key) {
				log.Warn().Str("component", "ratelimit").Str("key", key).Str("path", r.URL.Path).Msg("rate limited")
				w.Header().Set("Retry-After", "60")
				respondAppError(w, apperrors.RateLimited("Too many requests, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
