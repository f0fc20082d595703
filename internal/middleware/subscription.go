package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/auth"
	"github.com/PortNumber53/liftx/internal/entitlements"
)

// Capability is a tier privilege that guards whole routes.
type Capability string

const CapabilityAnalytics Capability = "analytics"

var capabilityDenials = map[Capability]string{
	CapabilityAnalytics: "Real-time metrics are available for Ultra Pro subscribers only.",
}

func allows(p entitlements.Profile, c Capability) bool {
	switch c {
	case CapabilityAnalytics:
		return p.HasAnalytics
	}
	return false
}

type profileKey struct{}

// ProfileFrom returns the entitlement profile stored by RequireCapability.
func ProfileFrom(ctx context.Context) (entitlements.Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(entitlements.Profile)
	return p, ok
}

// RequireCapability rejects authenticated users whose tier lacks c.
// It must run after auth.Middleware.
func RequireCapability(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := auth.UserFrom(r.Context())
			if !ok {
				respondAppError(w, apperrors.Unauthorized("Authentication required"))
				return
			}
			profile := entitlements.Effective(u.SubscriptionTier, u.ProPostLimit)
			if !allows(profile, c) {
				log.Info().Str("component", "subscription").Int64("userId", u.ID).
					Str("tier", string(profile.Tier)).Str("capability", string(c)).Msg("capability denied")
				respondAppError(w, apperrors.Forbidden(capabilityDenials[c]))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey{}, profile)))
		})
	}
}

func respondAppError(w http.ResponseWriter, e *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}
