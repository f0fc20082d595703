// Package entitlements holds the fixed per-tier policy table: daily post quota,
// platforms per post, allowed content types and the scheduling/analytics flags.
package entitlements

import (
	"fmt"
	"strings"
)

type Tier string

const (
	TierTrial    Tier = "trial"
	TierPro      Tier = "pro"
	TierUltraPro Tier = "ultra_pro"
)

// Tiers lists every tier in upgrade order.
var Tiers = []Tier{TierTrial, TierPro, TierUltraPro}

func (t Tier) Valid() bool {
	switch t {
	case TierTrial, TierPro, TierUltraPro:
		return true
	}
	return false
}

// Label is the human name used in notifications and checkout line items.
func (t Tier) Label() string {
	switch t {
	case TierPro:
		return "Pro"
	case TierUltraPro:
		return "Ultra Pro"
	default:
		return "Trial"
	}
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.TrimSpace(strings.ToLower(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

type ContentType string

const (
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentCarousel ContentType = "carousel"
	ContentText     ContentType = "text"
	ContentReel     ContentType = "reel"
	ContentStory    ContentType = "story"
)

func AllContentTypes() []ContentType {
	return []ContentType{ContentImage, ContentVideo, ContentCarousel, ContentText, ContentReel, ContentStory}
}

func (c ContentType) Valid() bool {
	for _, ct := range AllContentTypes() {
		if ct == c {
			return true
		}
	}
	return false
}

func ParseContentType(s string) (ContentType, error) {
	c := ContentType(strings.TrimSpace(strings.ToLower(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return c, nil
}

// DefaultProDailyPosts applies when a pro user has no per-user override.
const DefaultProDailyPosts = 50

// Profile is the entitlement set derived from a tier. A nil limit means unlimited.
type Profile struct {
	Tier         Tier          `json:"tier"`
	DailyPosts   *int          `json:"dailyPosts"`
	Platforms    *int          `json:"platforms"`
	ContentTypes []ContentType `json:"contentTypes"`
	CanSchedule  bool          `json:"canSchedule"`
	HasAnalytics bool          `json:"hasAnalytics"`
}

func (p Profile) UnlimitedPosts() bool { return p.DailyPosts == nil }

func (p Profile) AllowsContentType(c ContentType) bool {
	for _, ct := range p.ContentTypes {
		if ct == c {
			return true
		}
	}
	return false
}

func intPtr(n int) *int { return &n }

// LimitsFor returns the catalog profile for a tier. Unknown tiers get the trial profile.
// Every call returns fresh values so callers may not mutate the catalog.
func LimitsFor(t Tier) Profile {
	switch t {
	case TierPro:
		return Profile{
			Tier:         TierPro,
			DailyPosts:   intPtr(DefaultProDailyPosts),
			Platforms:    intPtr(5),
			ContentTypes: AllContentTypes(),
			CanSchedule:  true,
		}
	case TierUltraPro:
		return Profile{
			Tier:         TierUltraPro,
			ContentTypes: AllContentTypes(),
			CanSchedule:  true,
			HasAnalytics: true,
		}
	default:
		return Profile{
			Tier:         TierTrial,
			DailyPosts:   intPtr(2),
			Platforms:    intPtr(2),
			ContentTypes: []ContentType{ContentImage},
		}
	}
}

// Effective applies the per-user pro override. Trial and ultra_pro ignore it.
func Effective(t Tier, proPostLimit *int) Profile {
	p := LimitsFor(t)
	if p.Tier == TierPro && proPostLimit != nil {
		p.DailyPosts = intPtr(*proPostLimit)
	}
	return p
}
