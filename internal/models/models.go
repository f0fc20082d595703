package models

import (
	"time"

	"github.com/PortNumber53/liftx/internal/entitlements"
)

type User struct {
	ID                    int64             `json:"id"`
	OpenID                string            `json:"openId"`
	Name                  *string           `json:"name,omitempty"`
	Email                 *string           `json:"email,omitempty"`
	AvatarURL             *string           `json:"avatarUrl,omitempty"`
	LoginMethod           *string           `json:"loginMethod,omitempty"`
	Role                  string            `json:"role"`
	SubscriptionTier      entitlements.Tier `json:"subscriptionTier"`
	StripeCustomerID      *string           `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID  *string           `json:"stripeSubscriptionId,omitempty"`
	SubscriptionStatus    string            `json:"subscriptionStatus"`
	SubscriptionExpiresAt *time.Time        `json:"subscriptionExpiresAt,omitempty"`
	ProPostLimit          *int              `json:"proPostLimit,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
	LastSignedIn          time.Time         `json:"lastSignedIn"`
}

type PostStatus string

const (
	PostDraft      PostStatus = "draft"
	PostScheduled  PostStatus = "scheduled"
	PostPublishing PostStatus = "publishing"
	PostPublished  PostStatus = "published"
	PostFailed     PostStatus = "failed"
	PostCancelled  PostStatus = "cancelled"
)

func (s PostStatus) Valid() bool {
	switch s {
	case PostDraft, PostScheduled, PostPublishing, PostPublished, PostFailed, PostCancelled:
		return true
	}
	return false
}

type PlatformStatus string

const (
	PlatformPending    PlatformStatus = "pending"
	PlatformPublishing PlatformStatus = "publishing"
	PlatformPublished  PlatformStatus = "published"
	PlatformFailed     PlatformStatus = "failed"
	PlatformCancelled  PlatformStatus = "cancelled"
)

type Post struct {
	ID            int64                    `json:"id"`
	UserID        int64                    `json:"userId"`
	Caption       *string                  `json:"caption,omitempty"`
	ContentType   entitlements.ContentType `json:"contentType"`
	MediaURLs     []string                 `json:"mediaUrls"`
	MediaKeys     []string                 `json:"mediaKeys"`
	Status        PostStatus               `json:"status"`
	ScheduledAt   *time.Time               `json:"scheduledAt,omitempty"`
	PublishedAt   *time.Time               `json:"publishedAt,omitempty"`
	FailureReason *string                  `json:"failureReason,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
	Platforms     []PostPlatform           `json:"platforms"`
}

type PostPlatform struct {
	ID             int64                 `json:"id"`
	PostID         int64                 `json:"postId"`
	Platform       entitlements.Platform `json:"platform"`
	Status         PlatformStatus        `json:"status"`
	PlatformPostID *string               `json:"platformPostId,omitempty"`
	PublishedAt    *time.Time            `json:"publishedAt,omitempty"`
	FailureReason  *string               `json:"failureReason,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// ConnectedAccount never serializes token material.
type ConnectedAccount struct {
	ID                  int64                 `json:"id"`
	UserID              int64                 `json:"userId"`
	Platform            entitlements.Platform `json:"platform"`
	PlatformUserID      *string               `json:"platformUserId,omitempty"`
	PlatformUsername    *string               `json:"platformUsername,omitempty"`
	PlatformDisplayName *string               `json:"platformDisplayName,omitempty"`
	PlatformAvatarURL   *string               `json:"platformAvatarUrl,omitempty"`
	AccessToken         *string               `json:"-"`
	RefreshToken        *string               `json:"-"`
	TokenExpiresAt      *time.Time            `json:"tokenExpiresAt,omitempty"`
	IsActive            bool                  `json:"isActive"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

type PostMetric struct {
	ID               int64                 `json:"id"`
	PostID           int64                 `json:"postId"`
	PostPlatformID   *int64                `json:"postPlatformId,omitempty"`
	Platform         entitlements.Platform `json:"platform"`
	Impressions      int64                 `json:"impressions"`
	Reach            int64                 `json:"reach"`
	Likes            int64                 `json:"likes"`
	Comments         int64                 `json:"comments"`
	Shares           int64                 `json:"shares"`
	Clicks           int64                 `json:"clicks"`
	Saves            int64                 `json:"saves"`
	EstimatedRevenue string                `json:"estimatedRevenue"`
	FetchedAt        time.Time             `json:"fetchedAt"`
}

type SubscriptionPlan struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Tier              entitlements.Tier `json:"tier"`
	StripePriceID     *string           `json:"stripePriceId,omitempty"`
	MonthlyPriceCents int64             `json:"monthlyPriceCents"`
	YearlyPriceCents  int64             `json:"yearlyPriceCents"`
	DailyPostLimit    *int              `json:"dailyPostLimit"`
	PlatformLimit     *int              `json:"platformLimit"`
	Features          []string          `json:"features"`
	IsActive          bool              `json:"isActive"`
}
