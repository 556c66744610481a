package usecase

import (
	"context"
	"fmt"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

const (
	StepUploadAsset    = "upload_asset"
	StepCreateIdentity = "create_identity"
	StepCreateCampaign = "create_campaign"
	StepCreateAdGroup  = "create_ad_group"
	StepCreateAd       = "create_ad"
)

// StepEnv is what a step body may touch besides the job.
type StepEnv struct {
	Platform adapter.AdPlatform
	Clock    Clock
	Timings  Timings
	Log      *zerolog.Logger
}

// RunFunc performs the remote calls of one step. It returns every result acquired,
// including those acquired before a failing sub-call.
type RunFunc func(ctx context.Context, env StepEnv, job *model.LaunchJob) (model.StepResults, error)

// Step is one row of the workflow table.
type Step struct {
	ID              string
	Title           string
	CompletedStatus model.LaunchStatus
	// Precondition returns an error wrapping domain.ErrPrerequisiteMissing.
	Precondition func(job *model.LaunchJob) error
	// Done reports whether the step's result fields are already present.
	Done func(job *model.LaunchJob) bool
	Run  RunFunc
}

// Steps is an ordered workflow table.
type Steps []Step

func (s Steps) Find(id string) (Step, bool) {
	for _, st := range s {
		if st.ID == id {
			return st, true
		}
	}
	return Step{}, false
}

// Next returns the first step whose marker the status has not reached.
func (s Steps) Next(status model.LaunchStatus) (Step, bool) {
	for _, st := range s {
		if !status.Reached(st.CompletedStatus) {
			return st, true
		}
	}
	return Step{}, false
}

// Index returns the position of id, or -1.
func (s Steps) Index(id string) int {
	for i, st := range s {
		if st.ID == id {
			return i
		}
	}
	return -1
}

func missing(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrPrerequisiteMissing, fmt.Sprintf(format, args...))
}

func callContext(job *model.LaunchJob) adapter.CallContext {
	cc := adapter.CallContext{
		LaunchMode:     job.Config.LaunchMode,
		CorrelationTag: job.CorrelationTag,
		IdempotencyKey: job.IdempotencyKey,
	}
	if job.Config.LaunchMode == model.LaunchModeLive {
		cc.AdvertiserID = job.Config.AdvertiserID
	}
	return cc
}

// DefaultSteps is the campaign launch table: assets, identity, campaign, ad group, ad.
func DefaultSteps() Steps {
	return Steps{
		{
			ID:              StepUploadAsset,
			Title:           "Uploading & Processing Assets",
			CompletedStatus: model.LaunchStatusAssetsDone,
			Precondition: func(job *model.LaunchJob) error {
				if job.Config.AssetURL == "" {
					return missing("creative asset URL is missing in campaign configuration")
				}
				if job.Config.ProductImageURL == "" {
					return missing("product image URL is missing in campaign configuration")
				}
				return nil
			},
			Done: func(job *model.LaunchJob) bool {
				r := job.Results
				if r.AvatarImageID == "" {
					return false
				}
				if job.Config.IsVideo() {
					return r.VideoID != ""
				}
				return r.ImageID != ""
			},
			Run: runUploadAssets,
		},
		{
			ID:              StepCreateIdentity,
			Title:           "Creating Advertiser Identity",
			CompletedStatus: model.LaunchStatusIdentityDone,
			Precondition: func(job *model.LaunchJob) error {
				if job.Results.AvatarImageID == "" {
					return missing("avatar image must be uploaded before creating identity")
				}
				return nil
			},
			Done: func(job *model.LaunchJob) bool { return job.Results.IdentityID != "" },
			Run: func(ctx context.Context, env StepEnv, job *model.LaunchJob) (model.StepResults, error) {
				id, err := env.Platform.CreateIdentity(ctx, adapter.CreateIdentityParams{
					DisplayName:   job.Config.DisplayName(),
					AvatarImageID: job.Results.AvatarImageID,
					Common:        callContext(job),
				})
				if err != nil {
					return model.StepResults{}, err
				}
				return model.StepResults{IdentityID: id}, nil
			},
		},
		{
			ID:              StepCreateCampaign,
			Title:           "Setting Up Campaign Structure",
			CompletedStatus: model.LaunchStatusCampaignDone,
			Precondition:    func(*model.LaunchJob) error { return nil },
			Done:            func(job *model.LaunchJob) bool { return job.Results.CampaignID != "" },
			Run: func(ctx context.Context, env StepEnv, job *model.LaunchJob) (model.StepResults, error) {
				id, err := env.Platform.CreateCampaign(ctx, adapter.CreateCampaignParams{
					Name:        job.Config.CampaignName,
					DailyBudget: job.Config.DailyBudget,
					Currency:    job.Config.BudgetCurrency,
					Common:      callContext(job),
				})
				if err != nil {
					return model.StepResults{}, err
				}
				return model.StepResults{CampaignID: id}, nil
			},
		},
		{
			ID:              StepCreateAdGroup,
			Title:           "Configuring Targeting & Budget",
			CompletedStatus: model.LaunchStatusAdGroupDone,
			Precondition: func(job *model.LaunchJob) error {
				if job.Results.CampaignID == "" {
					return missing("campaign must be created before creating ad group")
				}
				return nil
			},
			Done: func(job *model.LaunchJob) bool { return job.Results.AdGroupID != "" },
			Run: func(ctx context.Context, env StepEnv, job *model.LaunchJob) (model.StepResults, error) {
				cfg := job.Config
				res, err := env.Platform.CreateAdGroup(ctx, adapter.CreateAdGroupParams{
					CampaignID: job.Results.CampaignID,
					Name:       cfg.ProductName + " Ad Group",
					Targeting: adapter.Targeting{
						CountryCode: cfg.TargetCountryCode,
						Gender:      cfg.TargetGender,
						AgeMin:      cfg.TargetAgeMin,
						AgeMax:      cfg.TargetAgeMax,
					},
					DailyBudget:  cfg.DailyBudget,
					DurationDays: cfg.CampaignDurationDays,
					LandingURL:   cfg.ProductLink,
					Common:       callContext(job),
				})
				if err != nil {
					return model.StepResults{}, err
				}
				out := model.StepResults{AdGroupID: res.AdGroupID}
				if res.LocationChanged {
					out.LocationWarning = res.LocationWarning
					out.OriginalTarget = res.OriginalTarget
					out.ActualTarget = res.ActualTarget
				}
				return out, nil
			},
		},
		{
			ID:              StepCreateAd,
			Title:           "Publishing Your Ad",
			CompletedStatus: model.LaunchStatusAdDone,
			Precondition: func(job *model.LaunchJob) error {
				r := job.Results
				if r.AdGroupID == "" || r.IdentityID == "" {
					return missing("ad group and identity must be created before creating ad")
				}
				if r.ImageID == "" && r.VideoID == "" {
					return missing("at least one creative asset must be uploaded before creating ad")
				}
				return nil
			},
			Done: func(job *model.LaunchJob) bool { return job.Results.AdID != "" },
			Run: func(ctx context.Context, env StepEnv, job *model.LaunchJob) (model.StepResults, error) {
				cfg, r := job.Config, job.Results
				p := adapter.CreateAdParams{
					AdGroupID:     r.AdGroupID,
					Name:          cfg.ProductName + " Ad",
					Text:          cfg.AdCopy.BodyText,
					CallToAction:  cfg.AdCopy.CallToAction,
					IdentityID:    r.IdentityID,
					AvatarImageID: r.AvatarImageID,
					LandingURL:    cfg.ProductLink,
					Common:        callContext(job),
				}
				if cfg.IsVideo() {
					p.VideoID = r.VideoID
					p.CoverImageID = r.ImageID
				} else {
					p.ImageID = r.ImageID
				}
				id, err := env.Platform.CreateAd(ctx, p)
				if err != nil {
					return model.StepResults{}, err
				}
				return model.StepResults{AdID: id}, nil
			},
		},
	}
}

// runUploadAssets uploads the avatar, then the primary creative and, for video
// launches, a poster image. Each upload is skipped when its result is present.
func runUploadAssets(ctx context.Context, env StepEnv, job *model.LaunchJob) (model.StepResults, error) {
	cfg := job.Config
	prefix := cfg.FileNamePrefix()
	common := callContext(job)
	var out model.StepResults

	if job.Results.AvatarImageID == "" {
		a, err := env.Platform.UploadAsset(ctx, adapter.UploadAssetParams{
			Kind:           adapter.AssetKindAvatar,
			SourceURL:      cfg.ProductImageURL,
			FileNamePrefix: prefix + "_avatar",
			Common:         common,
		})
		if err != nil {
			return out, fmt.Errorf("avatar upload: %w", err)
		}
		out.AvatarImageID, out.AvatarWidth, out.AvatarHeight, out.AvatarSizeKB = a.ResourceID, a.Width, a.Height, a.SizeKB
		env.Log.Debug().Str("avatar_image_id", a.ResourceID).Msg("avatar uploaded")

		if err := env.Clock.Sleep(ctx, env.Timings.AvatarToPrimary); err != nil {
			return out, err
		}
	}

	if !cfg.IsVideo() {
		if job.Results.ImageID == "" {
			a, err := env.Platform.UploadAsset(ctx, adapter.UploadAssetParams{
				Kind:           adapter.AssetKindImage,
				SourceURL:      cfg.AssetURL,
				FileNamePrefix: prefix,
				Common:         common,
			})
			if err != nil {
				return out, fmt.Errorf("image upload: %w", err)
			}
			out.ImageID, out.ImageWidth, out.ImageHeight, out.ImageSizeKB = a.ResourceID, a.Width, a.Height, a.SizeKB
		}
		return out, nil
	}

	if job.Results.VideoID == "" {
		a, err := env.Platform.UploadAsset(ctx, adapter.UploadAssetParams{
			Kind:           adapter.AssetKindVideo,
			SourceURL:      cfg.AssetURL,
			FileNamePrefix: prefix,
			Common:         common,
		})
		if err != nil {
			return out, fmt.Errorf("video upload: %w", err)
		}
		out.VideoID = a.ResourceID
	}

	if job.Results.ImageID == "" {
		if err := env.Clock.Sleep(ctx, env.Timings.BeforePoster); err != nil {
			return out, err
		}
		a, err := env.Platform.UploadAsset(ctx, adapter.UploadAssetParams{
			Kind:           adapter.AssetKindCover,
			SourceURL:      cfg.AssetURL,
			FileNamePrefix: prefix,
			Common:         common,
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			// poster is optional
			env.Log.Warn().Err(err).Msg("video poster upload failed, continuing without it")
			return out, nil
		}
		out.ImageID, out.ImageWidth, out.ImageHeight, out.ImageSizeKB = a.ResourceID, a.Width, a.Height, a.SizeKB
	}
	return out, nil
}
