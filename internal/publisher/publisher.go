// Package publisher fans due scheduled posts out to their platforms.
package publisher

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/PortNumber53/liftx/internal/entitlements"
)

type Request struct {
	PostID      int64
	UserID      int64
	Platform    entitlements.Platform
	Caption     string
	ContentType entitlements.ContentType
	MediaURLs   []string
}

type Result struct {
	PlatformPostID string
}

// Publisher delivers one post to one platform. Implementations should
// return quickly when ctx is cancelled.
type Publisher interface {
	Publish(ctx context.Context, req Request) (Result, error)
}

// SimulatedPublisher reports success with a synthetic platform post id.
type SimulatedPublisher struct{}

func (SimulatedPublisher) Publish(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{PlatformPostID: "sim_" + string(req.Platform) + "_" + uuid.NewString()}, nil
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func DefaultRateLimits() map[entitlements.Platform]RateLimitConfig {
	return map[entitlements.Platform]RateLimitConfig{
		entitlements.PlatformLinkedIn:  {RequestsPerSecond: 1, Burst: 2},
		entitlements.PlatformInstagram: {RequestsPerSecond: 1, Burst: 2},
		entitlements.PlatformX:         {RequestsPerSecond: 1, Burst: 1},
		entitlements.PlatformFacebook:  {RequestsPerSecond: 1, Burst: 2},
		entitlements.PlatformTikTok:    {RequestsPerSecond: 1, Burst: 2},
	}
}

// rateLimitFromEnv applies PUBLISH_<PLATFORM>_RPS and PUBLISH_<PLATFORM>_BURST.
func rateLimitFromEnv(p entitlements.Platform, def RateLimitConfig, getenv func(string) string) RateLimitConfig {
	prefix := "PUBLISH_" + strings.ToUpper(string(p)) + "_"
	if v := getenv(prefix + "RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			def.RequestsPerSecond = f
		}
	}
	if v := getenv(prefix + "BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			def.Burst = n
		}
	}
	return def
}

func newLimiters(getenv func(string) string) map[entitlements.Platform]*rate.Limiter {
	if getenv == nil {
		getenv = os.Getenv
	}
	out := make(map[entitlements.Platform]*rate.Limiter, len(entitlements.AllPlatforms()))
	for p, cfg := range DefaultRateLimits() {
		cfg = rateLimitFromEnv(p, cfg, getenv)
		out[p] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return out
}
