package model

import (
	"errors"
	"fmt"
	"strings"

	"campaign-launcher/internal/domain"

	"github.com/go-playground/validator/v10"
)

type LaunchMode string

const (
	LaunchModeSandbox LaunchMode = "sandbox"
	LaunchModeLive    LaunchMode = "live"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type AdCopy struct {
	Headline     string `json:"headline,omitempty"`
	BodyText     string `json:"body_text" validate:"required"`
	CallToAction string `json:"call_to_action,omitempty"`
}

// LaunchConfig is the snapshot of everything the steps need. It is captured once
// when the job is created and never mutated afterwards.
type LaunchConfig struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name" validate:"required"`
	ProductLink     string `json:"product_link" validate:"required,url"`
	ProductImageURL string `json:"product_image_url" validate:"required"`

	AssetURL  string    `json:"asset_url" validate:"required"`
	MediaType MediaType `json:"media_type,omitempty" validate:"omitempty,oneof=image video"`

	LaunchMode   LaunchMode `json:"launch_mode" validate:"required,oneof=sandbox live"`
	AdvertiserID string     `json:"advertiser_id,omitempty" validate:"required_if=LaunchMode live"`

	CampaignName         string  `json:"campaign_name" validate:"required"`
	DailyBudget          float64 `json:"daily_budget" validate:"gt=0"`
	BudgetCurrency       string  `json:"budget_currency,omitempty"`
	CampaignDurationDays int     `json:"campaign_duration,omitempty" validate:"gte=0"`

	TargetCountryCode string `json:"target_country_code,omitempty"`
	TargetGender      string `json:"target_gender,omitempty"`
	TargetAgeMin      int    `json:"target_age_min,omitempty" validate:"gte=0"`
	TargetAgeMax      int    `json:"target_age_max,omitempty" validate:"omitempty,gtefield=TargetAgeMin"`

	AdCopy AdCopy `json:"ad_copy"`
}

var validate = validator.New()

// Validate reports every missing or malformed field, wrapped in domain.ErrIncompleteConfig.
func (c *LaunchConfig) Validate() error {
	if c == nil {
		return domain.ErrMissingConfig
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return fmt.Errorf("%w: invalid fields %s", domain.ErrIncompleteConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", domain.ErrIncompleteConfig, err)
	}
	return nil
}

// IsVideo treats an explicit video media type, or an asset URL that looks like a
// video, as a video launch.
func (c *LaunchConfig) IsVideo() bool {
	if c.MediaType == MediaTypeVideo {
		return true
	}
	u := strings.ToLower(c.AssetURL)
	return strings.Contains(u, ".mp4") || strings.Contains(u, ".mov") || strings.Contains(u, "video")
}

// FileNamePrefix is the product name with whitespace runs replaced by underscores.
func (c *LaunchConfig) FileNamePrefix() string {
	return strings.Join(strings.Fields(c.ProductName), "_")
}

// DisplayName is the identity name, cut to the platform's 50 character limit.
func (c *LaunchConfig) DisplayName() string {
	r := []rune(c.ProductName)
	if len(r) > 50 {
		r = r[:50]
	}
	return string(r)
}
