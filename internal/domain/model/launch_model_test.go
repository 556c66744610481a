//go:build !integration

package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"campaign-launcher/internal/domain"
)

func validConfig() *LaunchConfig {
	return &LaunchConfig{
		ProductID:       "prod-1",
		ProductName:     "Glow Serum Deluxe",
		ProductLink:     "https://shop.example.com/glow",
		ProductImageURL: "https://cdn.example.com/glow.png",
		AssetURL:        "https://cdn.example.com/glow-ad.png",
		LaunchMode:      LaunchModeSandbox,
		CampaignName:    "Glow launch",
		DailyBudget:     50,
		AdCopy:          AdCopy{BodyText: "Glow all day"},
	}
}

// --- LaunchStatus Tests ---

func TestLaunchStatusReached(t *testing.T) {
	cases := []struct {
		status LaunchStatus
		marker LaunchStatus
		want   bool
	}{
		{LaunchStatusStarted, LaunchStatusAssetsDone, false},
		{LaunchStatusAssetsDone, LaunchStatusAssetsDone, true},
		{LaunchStatusCampaignDone, LaunchStatusIdentityDone, true},
		{LaunchStatusIdentityDone, LaunchStatusCampaignDone, false},
		{LaunchStatusSucceeded, LaunchStatusAdDone, true},
		{LaunchStatusFailed, LaunchStatusAssetsDone, false},
		{LaunchStatusFailed, LaunchStatusStarted, false},
	}
	for _, c := range cases {
		if got := c.status.Reached(c.marker); got != c.want {
			t.Errorf("%s.Reached(%s) = %v, want %v", c.status, c.marker, got, c.want)
		}
	}
}

func TestLaunchStatusTerminal(t *testing.T) {
	if !LaunchStatusFailed.IsTerminal() || !LaunchStatusSucceeded.IsTerminal() {
		t.Fatal("expected FAILED and SUCCEEDED to be terminal")
	}
	if LaunchStatusAdDone.IsTerminal() {
		t.Fatal("expected AD_DONE to be non-terminal")
	}
	if LaunchStatus("BOGUS").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
}

// --- StepResults Tests ---

func TestStepResultsMergeIsSetOnce(t *testing.T) {
	r := StepResults{CampaignID: "camp-1"}
	merged := r.Merge(StepResults{CampaignID: "camp-2", AdGroupID: "ag-1"})

	if merged.CampaignID != "camp-1" {
		t.Errorf("expected populated campaign id to win, got %s", merged.CampaignID)
	}
	if merged.AdGroupID != "ag-1" {
		t.Errorf("expected empty ad group id to be filled, got %s", merged.AdGroupID)
	}
}

func TestLaunchJobApply(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	job := NewLaunchJob("abcdefghijklmnop", "user-1", validConfig(), now)
	job.ErrorLog = &ErrorLog{Step: "upload_asset", Kind: ErrorKindGenericRemoteFailure}

	later := now.Add(time.Minute)
	job.Apply(JobUpdate{
		Status:        StatusPtr(LaunchStatusAssetsDone),
		Results:       StepResults{AvatarImageID: "av-1", ImageID: "img-1"},
		ClearErrorLog: true,
	}, later)

	if job.Status != LaunchStatusAssetsDone {
		t.Errorf("expected status ASSETS_DONE, got %s", job.Status)
	}
	if job.ErrorLog != nil {
		t.Error("expected error log to be cleared")
	}
	if job.Results.ImageID != "img-1" {
		t.Errorf("expected image id img-1, got %s", job.Results.ImageID)
	}
	if !job.UpdatedAt.Equal(later) {
		t.Errorf("expected updated_at to move forward")
	}
	if job.CorrelationTag != "[NX:abcdefghij]" {
		t.Errorf("unexpected correlation tag %s", job.CorrelationTag)
	}
}

func TestCloneDoesNotShareErrorLog(t *testing.T) {
	job := &LaunchJob{ErrorLog: &ErrorLog{Message: "boom"}}
	cp := job.Clone()
	cp.ErrorLog.Message = "changed"
	if job.ErrorLog.Message != "boom" {
		t.Fatal("expected clone to own its error log")
	}
}

// --- ErrorLog Tests ---

func TestErrorLogCooldownUntil(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	el := &ErrorLog{Timestamp: ts, RateLimited: true, RetryAfterMinutes: 10}
	if got := el.CooldownUntil(); !got.Equal(ts.Add(10 * time.Minute)) {
		t.Errorf("expected cooldown at +10m, got %v", got)
	}

	el.RateLimited = false
	if !el.CooldownUntil().IsZero() {
		t.Error("expected no cooldown for non rate-limited failure")
	}

	var nilLog *ErrorLog
	if !nilLog.CooldownUntil().IsZero() {
		t.Error("expected zero cooldown on nil log")
	}
}

func TestNewIdempotencyKeyIsStable(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewIdempotencyKey("u1", "p1", LaunchModeSandbox, at)
	b := NewIdempotencyKey("u1", "p1", LaunchModeSandbox, at)
	c := NewIdempotencyKey("u1", "p1", LaunchModeLive, at)

	if a != b {
		t.Error("expected identical inputs to produce identical keys")
	}
	if a == c {
		t.Error("expected mode to change the key")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256 key, got length %d", len(a))
	}
}

// --- LaunchConfig Tests ---

func TestLaunchConfigValidate(t *testing.T) {
	t.Run("should accept a complete sandbox config", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
	})

	t.Run("should reject nil config", func(t *testing.T) {
		var cfg *LaunchConfig
		if err := cfg.Validate(); !errors.Is(err, domain.ErrMissingConfig) {
			t.Fatalf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("should reject missing asset and product image", func(t *testing.T) {
		cfg := validConfig()
		cfg.AssetURL = ""
		cfg.ProductImageURL = ""
		err := cfg.Validate()
		if !errors.Is(err, domain.ErrIncompleteConfig) {
			t.Fatalf("expected ErrIncompleteConfig, got %v", err)
		}
		if !strings.Contains(err.Error(), "AssetURL") || !strings.Contains(err.Error(), "ProductImageURL") {
			t.Errorf("expected both fields to be named, got %v", err)
		}
	})

	t.Run("should require advertiser in live mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.LaunchMode = LaunchModeLive
		if err := cfg.Validate(); !errors.Is(err, domain.ErrIncompleteConfig) {
			t.Fatalf("expected ErrIncompleteConfig, got %v", err)
		}
		cfg.AdvertiserID = "adv-1"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("expected live config with advertiser to pass, got %v", err)
		}
	})
}

func TestLaunchConfigHelpers(t *testing.T) {
	cfg := validConfig()
	if cfg.IsVideo() {
		t.Error("expected png asset to be an image launch")
	}
	cfg.AssetURL = "https://cdn.example.com/clip.MP4"
	if !cfg.IsVideo() {
		t.Error("expected mp4 asset to be a video launch")
	}
	if got := cfg.FileNamePrefix(); got != "Glow_Serum_Deluxe" {
		t.Errorf("unexpected file name prefix %s", got)
	}
	cfg.ProductName = strings.Repeat("x", 60)
	if got := cfg.DisplayName(); len(got) != 50 {
		t.Errorf("expected display name cut to 50, got %d", len(got))
	}
}
