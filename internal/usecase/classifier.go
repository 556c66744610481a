package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"
)

// ClassifierRules is the platform-specific data used to classify step failures.
type ClassifierRules struct {
	RateLimitMarkers          []string
	RateLimitCodes            []int
	StateInconsistencyMarkers []string
	ManualCheckMarkers        []string
	RetryMinutes              map[string]int
	DefaultRetryMinutes       int
}

func DefaultClassifierRules() ClassifierRules {
	return ClassifierRules{
		RateLimitMarkers:          []string{"rate limit"},
		RateLimitCodes:            []int{40100},
		StateInconsistencyMarkers: []string{"state inconsistency"},
		ManualCheckMarkers:        []string{"check your"},
		RetryMinutes:              map[string]int{StepUploadAsset: 10},
		DefaultRetryMinutes:       5,
	}
}

// Classification is the structured outcome of a failed step.
type Classification struct {
	Kind              model.ErrorKind
	Message           string
	Details           json.RawMessage
	RetryAfterMinutes int
	RecoveryNeeded    bool
	SuggestedAction   string
}

type Classifier struct {
	rules ClassifierRules
}

func NewClassifier(rules ClassifierRules) *Classifier {
	if rules.DefaultRetryMinutes <= 0 {
		rules.DefaultRetryMinutes = 5
	}
	return &Classifier{rules: rules}
}

// Classify prefers structured remote signals and falls back to message markers.
func (c *Classifier) Classify(stepID string, err error) Classification {
	out := Classification{
		Kind:    model.ErrorKindGenericRemoteFailure,
		Message: err.Error(),
	}

	if errors.Is(err, domain.ErrPrerequisiteMissing) {
		out.Kind = model.ErrorKindPrerequisiteMissing
		out.SuggestedAction = "Start again from the campaign launcher"
		out.Details = detailsOf(err, nil)
		return out
	}

	var re *adapter.RemoteError
	if errors.As(err, &re) {
		out.Message = re.Message
		out.Details = detailsOf(err, re)
		if c.isRateLimitRemote(re) {
			return c.rateLimited(stepID, out, re)
		}
	} else {
		out.Details = detailsOf(err, nil)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, c.rules.RateLimitMarkers):
		return c.rateLimited(stepID, out, re)
	case containsAny(msg, c.rules.StateInconsistencyMarkers):
		out.Kind = model.ErrorKindStateInconsistency
		out.RecoveryNeeded = true
		if containsAny(msg, c.rules.ManualCheckMarkers) {
			out.SuggestedAction = "Check the Ads Manager and contact support with the AdGroup ID if found"
		} else {
			out.SuggestedAction = "Try again in a few minutes or contact support"
		}
	}
	return out
}

func (c *Classifier) isRateLimitRemote(re *adapter.RemoteError) bool {
	if re.StatusCode == http.StatusTooManyRequests || re.RetryAfter > 0 {
		return true
	}
	for _, code := range c.rules.RateLimitCodes {
		if re.Code != 0 && re.Code == code {
			return true
		}
	}
	return false
}

func (c *Classifier) rateLimited(stepID string, out Classification, re *adapter.RemoteError) Classification {
	out.Kind = model.ErrorKindRateLimited
	minutes := c.rules.DefaultRetryMinutes
	if m, ok := c.rules.RetryMinutes[stepID]; ok && m > 0 {
		minutes = m
	}
	if re != nil && re.RetryAfter > 0 {
		minutes = int(math.Ceil(re.RetryAfter.Minutes()))
	}
	out.RetryAfterMinutes = minutes
	out.SuggestedAction = fmt.Sprintf("Wait %d minutes and try again. Rate limits are imposed by the ad platform to ensure fair API usage.", minutes)
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func detailsOf(err error, re *adapter.RemoteError) json.RawMessage {
	if re != nil && len(re.Payload) > 0 && json.Valid(re.Payload) {
		return re.Payload
	}
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
