package entitlements

import (
	"fmt"
	"strings"
)

type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformX         Platform = "x"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
)

func AllPlatforms() []Platform {
	return []Platform{PlatformLinkedIn, PlatformInstagram, PlatformX, PlatformFacebook, PlatformTikTok}
}

func (p Platform) Valid() bool {
	_, ok := platformRules[p]
	return ok
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.TrimSpace(strings.ToLower(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// PlatformRules describes what a network accepts. It is informational: the
// lifecycle engine does not reject posts on these rules.
type PlatformRules struct {
	Platform         Platform      `json:"id"`
	Name             string        `json:"name"`
	ContentTypes     []ContentType `json:"supportedContentTypes"`
	MaxCaptionLength int           `json:"maxCaptionLength"`
	MaxMediaCount    int           `json:"maxMediaCount"`
}

var platformRules = map[Platform]PlatformRules{
	PlatformLinkedIn: {
		Platform:         PlatformLinkedIn,
		Name:             "LinkedIn",
		ContentTypes:     []ContentType{ContentText, ContentImage, ContentCarousel, ContentVideo},
		MaxCaptionLength: 3000,
		MaxMediaCount:    9,
	},
	PlatformInstagram: {
		Platform:         PlatformInstagram,
		Name:             "Instagram",
		ContentTypes:     []ContentType{ContentImage, ContentCarousel, ContentVideo, ContentReel, ContentStory},
		MaxCaptionLength: 2200,
		MaxMediaCount:    10,
	},
	PlatformX: {
		Platform:         PlatformX,
		Name:             "X (Twitter)",
		ContentTypes:     []ContentType{ContentText, ContentImage, ContentVideo},
		MaxCaptionLength: 280,
		MaxMediaCount:    4,
	},
	PlatformFacebook: {
		Platform:         PlatformFacebook,
		Name:             "Facebook",
		ContentTypes:     []ContentType{ContentText, ContentImage, ContentCarousel, ContentVideo, ContentStory},
		MaxCaptionLength: 63206,
		MaxMediaCount:    10,
	},
	PlatformTikTok: {
		Platform:         PlatformTikTok,
		Name:             "TikTok",
		ContentTypes:     []ContentType{ContentVideo, ContentReel},
		MaxCaptionLength: 2200,
		MaxMediaCount:    1,
	},
}

// RulesFor returns a copy of the rules for p.
func RulesFor(p Platform) (PlatformRules, bool) {
	r, ok := platformRules[p]
	if !ok {
		return PlatformRules{}, false
	}
	r.ContentTypes = append([]ContentType(nil), r.ContentTypes...)
	return r, true
}

// PlatformContentTypes is the platform -> supported content types table served to clients.
func PlatformContentTypes() map[Platform][]ContentType {
	out := make(map[Platform][]ContentType, len(platformRules))
	for p, r := range platformRules {
		out[p] = append([]ContentType(nil), r.ContentTypes...)
	}
	return out
}

func (p Platform) Supports(c ContentType) bool {
	for _, ct := range platformRules[p].ContentTypes {
		if ct == c {
			return true
		}
	}
	return false
}
