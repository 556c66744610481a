package main

import (
	"campaign-launcher/internal/config"
	"campaign-launcher/internal/usecase"
)

// engineConfig overlays the configured engine settings on the built-in
// defaults. Zero values keep the default.
func engineConfig(c config.EngineConfig) usecase.EngineConfig {
	out := usecase.DefaultEngineConfig()
	if c.MaxRateLimitRetries > 0 {
		out.MaxRateLimitRetries = c.MaxRateLimitRetries
	}

	d := c.Delays
	t := &out.Timings
	if d.AvatarToPrimary > 0 {
		t.AvatarToPrimary = d.AvatarToPrimary
	}
	if d.BeforePoster > 0 {
		t.BeforePoster = d.BeforePoster
	}
	if d.InterStep > 0 {
		t.InterStep = d.InterStep
	}
	if d.BaseStep > 0 {
		t.BaseStepDelay = d.BaseStep
	}
	if d.AfterRateLimit > 0 {
		t.AfterRateLimit = d.AfterRateLimit
	}
	if d.AssetStepFloor > 0 {
		t.AssetStepFloor = d.AssetStepFloor
	}

	cl := c.Classifier
	r := &out.Rules
	if len(cl.RateLimitMarkers) > 0 {
		r.RateLimitMarkers = cl.RateLimitMarkers
	}
	if len(cl.RateLimitCodes) > 0 {
		r.RateLimitCodes = cl.RateLimitCodes
	}
	if len(cl.StateInconsistencyMarkers) > 0 {
		r.StateInconsistencyMarkers = cl.StateInconsistencyMarkers
	}
	if len(cl.ManualCheckMarkers) > 0 {
		r.ManualCheckMarkers = cl.ManualCheckMarkers
	}
	for step, minutes := range cl.RetryMinutes {
		r.RetryMinutes[step] = minutes
	}
	if cl.DefaultRetryMinutes > 0 {
		r.DefaultRetryMinutes = cl.DefaultRetryMinutes
	}
	return out
}
