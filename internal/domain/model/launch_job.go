package model

import (
	"time"
)

type LaunchStatus string

const (
	LaunchStatusStarted      LaunchStatus = "STARTED"
	LaunchStatusAssetsDone   LaunchStatus = "ASSETS_DONE"
	LaunchStatusIdentityDone LaunchStatus = "IDENTITY_DONE"
	LaunchStatusCampaignDone LaunchStatus = "CAMPAIGN_DONE"
	LaunchStatusAdGroupDone  LaunchStatus = "ADGROUP_DONE"
	LaunchStatusAdDone       LaunchStatus = "AD_DONE"
	LaunchStatusSucceeded    LaunchStatus = "SUCCEEDED"
	LaunchStatusFailed       LaunchStatus = "FAILED"
)

// progressOrder lists the monotonic statuses. FAILED is absorbing and sits outside it.
var progressOrder = []LaunchStatus{
	LaunchStatusStarted,
	LaunchStatusAssetsDone,
	LaunchStatusIdentityDone,
	LaunchStatusCampaignDone,
	LaunchStatusAdGroupDone,
	LaunchStatusAdDone,
	LaunchStatusSucceeded,
}

// Rank returns the position of s in the progress order, or -1 for FAILED and unknown values.
func (s LaunchStatus) Rank() int {
	for i, v := range progressOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// Reached reports whether s is at or past marker. A FAILED job reaches nothing.
func (s LaunchStatus) Reached(marker LaunchStatus) bool {
	r := s.Rank()
	return r >= 0 && r >= marker.Rank()
}

func (s LaunchStatus) IsTerminal() bool {
	return s == LaunchStatusSucceeded || s == LaunchStatusFailed
}

func (s LaunchStatus) Valid() bool {
	return s == LaunchStatusFailed || s.Rank() >= 0
}

// LaunchJob is the durable record of one launch attempt.
type LaunchJob struct {
	ID             string        `json:"id"`
	IdempotencyKey string        `json:"idempotency_key"`
	UserID         string        `json:"user_id"`
	ProductID      string        `json:"product_id"`
	LaunchMode     LaunchMode    `json:"launch_mode"`
	Status         LaunchStatus  `json:"status"`
	CorrelationTag string        `json:"correlation_tag"`
	Config         *LaunchConfig `json:"config"`
	Results        StepResults   `json:"results"`
	ErrorLog       *ErrorLog     `json:"error_log,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewLaunchJob builds a fresh job in STARTED for the given key and config snapshot.
func NewLaunchJob(key, userID string, cfg *LaunchConfig, now time.Time) *LaunchJob {
	return &LaunchJob{
		IdempotencyKey: key,
		UserID:         userID,
		ProductID:      cfg.ProductID,
		LaunchMode:     cfg.LaunchMode,
		Status:         LaunchStatusStarted,
		CorrelationTag: CorrelationTag(key),
		Config:         cfg,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy so callers never share the error log pointer.
func (j *LaunchJob) Clone() *LaunchJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.ErrorLog != nil {
		el := *j.ErrorLog
		cp.ErrorLog = &el
	}
	return &cp
}

// Apply merges u into the job the way every store must: results are set-once,
// status and error log are replaced.
func (j *LaunchJob) Apply(u JobUpdate, now time.Time) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	j.Results = j.Results.Merge(u.Results)
	switch {
	case u.ClearErrorLog:
		j.ErrorLog = nil
	case u.ErrorLog != nil:
		el := *u.ErrorLog
		j.ErrorLog = &el
	}
	j.UpdatedAt = now
}

// JobUpdate is a partial update persisted through the job store.
type JobUpdate struct {
	Status        *LaunchStatus
	Results       StepResults
	ErrorLog      *ErrorLog
	ClearErrorLog bool
}

func StatusPtr(s LaunchStatus) *LaunchStatus { return &s }

// StepResults holds the remote identifiers acquired by the steps. Each field is
// written by exactly one step and doubles as that call's idempotency guard.
type StepResults struct {
	AvatarImageID string `json:"avatar_image_id,omitempty"`
	AvatarWidth   int    `json:"avatar_width,omitempty"`
	AvatarHeight  int    `json:"avatar_height,omitempty"`
	AvatarSizeKB  int    `json:"avatar_size_kb,omitempty"`

	VideoID     string `json:"video_id,omitempty"`
	ImageID     string `json:"image_id,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	ImageSizeKB int    `json:"image_size_kb,omitempty"`

	IdentityID string `json:"identity_id,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`

	AdGroupID       string `json:"adgroup_id,omitempty"`
	LocationWarning string `json:"location_warning,omitempty"`
	OriginalTarget  string `json:"original_target,omitempty"`
	ActualTarget    string `json:"actual_target,omitempty"`

	AdID string `json:"ad_id,omitempty"`
}

// Merge returns r with every empty field filled from patch. Populated fields win.
func (r StepResults) Merge(patch StepResults) StepResults {
	setS := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setI := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	setS(&r.AvatarImageID, patch.AvatarImageID)
	setI(&r.AvatarWidth, patch.AvatarWidth)
	setI(&r.AvatarHeight, patch.AvatarHeight)
	setI(&r.AvatarSizeKB, patch.AvatarSizeKB)
	setS(&r.VideoID, patch.VideoID)
	setS(&r.ImageID, patch.ImageID)
	setI(&r.ImageWidth, patch.ImageWidth)
	setI(&r.ImageHeight, patch.ImageHeight)
	setI(&r.ImageSizeKB, patch.ImageSizeKB)
	setS(&r.IdentityID, patch.IdentityID)
	setS(&r.CampaignID, patch.CampaignID)
	setS(&r.AdGroupID, patch.AdGroupID)
	setS(&r.LocationWarning, patch.LocationWarning)
	setS(&r.OriginalTarget, patch.OriginalTarget)
	setS(&r.ActualTarget, patch.ActualTarget)
	setS(&r.AdID, patch.AdID)
	return r
}

func (r StepResults) IsZero() bool { return r == StepResults{} }
