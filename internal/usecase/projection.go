package usecase

import (
	"time"

	"campaign-launcher/internal/domain/model"
)

type StepState string

const (
	StepPending   StepState = "pending"
	StepRunning   StepState = "running"
	StepCompleted StepState = "completed"
	StepFailed    StepState = "failed"
)

type StepView struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Marker string    `json:"completed_status"`
	State  StepState `json:"state"`
}

type LocationDetails struct {
	Warning        string `json:"warning"`
	OriginalTarget string `json:"original_target,omitempty"`
	ActualTarget   string `json:"actual_target,omitempty"`
}

type AssetDetails struct {
	Type          string `json:"type"` // image|video
	ImageID       string `json:"image_id,omitempty"`
	VideoID       string `json:"video_id,omitempty"`
	PosterImageID string `json:"poster_image_id,omitempty"`
	AvatarImageID string `json:"avatar_image_id,omitempty"`
}

type CreativeSummary struct {
	AdFormat       string `json:"ad_format"`
	AssetID        string `json:"asset_id,omitempty"`
	CallToAction   string `json:"call_to_action,omitempty"`
	LandingPageURL string `json:"landing_page_url,omitempty"`
	IdentityID     string `json:"identity_id,omitempty"`
	AvatarImageID  string `json:"avatar_image_id,omitempty"`
	CoverImageID   string `json:"cover_image_id,omitempty"`
}

// Verification is the exit to the verification view once a launch succeeded.
type Verification struct {
	CampaignID string           `json:"campaign_id"`
	AdGroupID  string           `json:"adgroup_id"`
	AdID       string           `json:"ad_id"`
	Mode       model.LaunchMode `json:"mode"`
}

// Projection is the read-only display state derived from a job.
type Projection struct {
	Status          model.LaunchStatus `json:"status"`
	Steps           []StepView         `json:"steps"`
	CooldownUntil   *time.Time         `json:"cooldown_until,omitempty"`
	Error           *model.ErrorLog    `json:"error,omitempty"`
	LocationDetails *LocationDetails   `json:"location_details,omitempty"`
	AssetDetails    *AssetDetails      `json:"asset_details,omitempty"`
	CreativeSummary *CreativeSummary   `json:"creative_summary,omitempty"`
	Verification    *Verification      `json:"verification,omitempty"`
}

// Project maps job state to per-step display states. running is the step in
// flight, or "". now decides whether a cool-down is still pending.
func Project(steps Steps, job *model.LaunchJob, running string, now time.Time) Projection {
	p := Projection{Status: job.Status, Error: job.ErrorLog}

	failedAt := -1
	if job.Status == model.LaunchStatusFailed && job.ErrorLog != nil {
		failedAt = steps.Index(job.ErrorLog.Step)
	}

	p.Steps = make([]StepView, 0, len(steps))
	for i, st := range steps {
		v := StepView{ID: st.ID, Title: st.Title, Marker: string(st.CompletedStatus), State: StepPending}
		switch {
		case job.Status.Reached(st.CompletedStatus):
			v.State = StepCompleted
		case failedAt >= 0 && i < failedAt:
			v.State = StepCompleted
		case i == failedAt:
			v.State = StepFailed
		case st.ID == running:
			v.State = StepRunning
		}
		p.Steps = append(p.Steps, v)
	}

	if until := job.ErrorLog.CooldownUntil(); !until.IsZero() && now.Before(until) && !job.Status.IsTerminal() {
		p.CooldownUntil = &until
	}

	r := job.Results
	if r.LocationWarning != "" {
		p.LocationDetails = &LocationDetails{
			Warning:        r.LocationWarning,
			OriginalTarget: r.OriginalTarget,
			ActualTarget:   r.ActualTarget,
		}
	}

	video := job.Config != nil && job.Config.IsVideo()
	if r.ImageID != "" || r.VideoID != "" {
		ad := &AssetDetails{Type: "image", ImageID: r.ImageID, AvatarImageID: r.AvatarImageID}
		if video {
			ad = &AssetDetails{Type: "video", VideoID: r.VideoID, PosterImageID: r.ImageID, AvatarImageID: r.AvatarImageID}
		}
		p.AssetDetails = ad
	}

	if r.AdID != "" && job.Config != nil {
		cs := &CreativeSummary{
			AdFormat:       "SINGLE_IMAGE",
			AssetID:        r.ImageID,
			CallToAction:   job.Config.AdCopy.CallToAction,
			LandingPageURL: job.Config.ProductLink,
			IdentityID:     r.IdentityID,
			AvatarImageID:  r.AvatarImageID,
		}
		if video {
			cs.AdFormat = "SINGLE_VIDEO"
			cs.AssetID = r.VideoID
			cs.CoverImageID = r.ImageID
		}
		p.CreativeSummary = cs
	}

	if job.Status == model.LaunchStatusSucceeded {
		p.Verification = &Verification{
			CampaignID: r.CampaignID,
			AdGroupID:  r.AdGroupID,
			AdID:       r.AdID,
			Mode:       job.LaunchMode,
		}
	}
	return p
}
