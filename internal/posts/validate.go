package posts

import (
	"fmt"
	"strings"
	"time"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/validator"
)

// CreateInput is the create-post request body.
type CreateInput struct {
	Caption     *string    `json:"caption"`
	ContentType string     `json:"contentType" validate:"required"`
	MediaURLs   []string   `json:"mediaUrls"`
	MediaKeys   []string   `json:"mediaKeys"`
	Platforms   []string   `json:"platforms" validate:"required,min=1,max=5,unique,dive,oneof=linkedin instagram x facebook tiktok"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// normalized is a CreateInput that passed request validation.
type normalized struct {
	caption     *string
	contentType entitlements.ContentType
	mediaURLs   []string
	mediaKeys   []string
	platforms   []entitlements.Platform
	scheduledAt *time.Time
}

func normalize(in CreateInput, now time.Time) (normalized, error) {
	if err := validator.Struct(in); err != nil {
		return normalized{}, err
	}
	ct, err := entitlements.ParseContentType(in.ContentType)
	if err != nil {
		return normalized{}, apperrors.Validation(fmt.Sprintf("contentType must be one of [%s]", contentTypeList()))
	}
	n := normalized{
		caption:     in.Caption,
		contentType: ct,
		mediaURLs:   in.MediaURLs,
		mediaKeys:   in.MediaKeys,
		scheduledAt: in.ScheduledAt,
	}
	if n.mediaURLs == nil {
		n.mediaURLs = []string{}
	}
	if n.mediaKeys == nil {
		n.mediaKeys = []string{}
	}
	if len(n.mediaURLs) != len(n.mediaKeys) {
		return normalized{}, apperrors.Validation("mediaUrls and mediaKeys must have the same length")
	}
	if n.scheduledAt != nil && !n.scheduledAt.After(now) {
		return normalized{}, apperrors.Validation("scheduledAt must be in the future")
	}
	for _, p := range in.Platforms {
		n.platforms = append(n.platforms, entitlements.Platform(p))
	}
	return n, nil
}

// checkMedia runs after the tier gates; plan denials take precedence over
// missing media.
func (n normalized) checkMedia() error {
	if n.contentType != entitlements.ContentText && len(n.mediaURLs) == 0 {
		return apperrors.Validation("At least one media file is required for non-text posts")
	}
	return nil
}

func contentTypeList() string {
	names := make([]string, 0, len(entitlements.AllContentTypes()))
	for _, c := range entitlements.AllContentTypes() {
		names = append(names, string(c))
	}
	return strings.Join(names, " ")
}
