package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"campaign-launcher/internal/domain/model"
)

type AssetKind string

const (
	AssetKindAvatar AssetKind = "avatar"
	AssetKindImage  AssetKind = "image"
	AssetKindVideo  AssetKind = "video"
	AssetKindCover  AssetKind = "cover"
)

// CallContext is carried by every remote call.
type CallContext struct {
	LaunchMode     model.LaunchMode
	AdvertiserID   string // live only
	CorrelationTag string
	IdempotencyKey string
}

type UploadAssetParams struct {
	Kind           AssetKind
	SourceURL      string
	FileNamePrefix string
	Common         CallContext
}

type UploadedAsset struct {
	ResourceID string
	Width      int
	Height     int
	SizeKB     int
}

type CreateIdentityParams struct {
	DisplayName   string
	AvatarImageID string
	Common        CallContext
}

type CreateCampaignParams struct {
	Name        string
	DailyBudget float64
	Currency    string
	Common      CallContext
}

type Targeting struct {
	CountryCode string
	Gender      string
	AgeMin      int
	AgeMax      int
}

type CreateAdGroupParams struct {
	CampaignID   string
	Name         string
	Targeting    Targeting
	DailyBudget  float64
	DurationDays int
	LandingURL   string
	Common       CallContext
}

// AdGroupResult carries the location-override info returned when the platform
// replaced the requested target.
type AdGroupResult struct {
	AdGroupID       string
	LocationChanged bool
	LocationWarning string
	OriginalTarget  string
	ActualTarget    string
}

type CreateAdParams struct {
	AdGroupID     string
	Name          string
	Text          string
	CallToAction  string
	ImageID       string
	VideoID       string
	CoverImageID  string
	IdentityID    string
	AvatarImageID string
	LandingURL    string
	Common        CallContext
}

// AdPlatform is the port for the remote provisioning API. Every method returns a
// *RemoteError on a platform-side failure.
type AdPlatform interface {
	UploadAsset(ctx context.Context, p UploadAssetParams) (UploadedAsset, error)
	CreateIdentity(ctx context.Context, p CreateIdentityParams) (string, error)
	CreateCampaign(ctx context.Context, p CreateCampaignParams) (string, error)
	CreateAdGroup(ctx context.Context, p CreateAdGroupParams) (AdGroupResult, error)
	CreateAd(ctx context.Context, p CreateAdParams) (string, error)
}

// RemoteError is a structured failure reported by the ad platform.
type RemoteError struct {
	StatusCode int
	Code       int
	Message    string
	Payload    json.RawMessage
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ad platform error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ad platform error (http %d): %s", e.StatusCode, e.Message)
}
