package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

type ErrorKind string

const (
	ErrorKindPrerequisiteMissing  ErrorKind = "PREREQUISITE_MISSING"
	ErrorKindRateLimited          ErrorKind = "RATE_LIMITED"
	ErrorKindStateInconsistency   ErrorKind = "STATE_INCONSISTENCY"
	ErrorKindGenericRemoteFailure ErrorKind = "GENERIC_REMOTE_FAILURE"
)

// ErrorLog is the last failure recorded on a job.
type ErrorLog struct {
	Step              string          `json:"step"`
	Kind              ErrorKind       `json:"kind"`
	Message           string          `json:"message"`
	Details           json.RawMessage `json:"details,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	RateLimited       bool            `json:"rate_limited,omitempty"`
	RetryAfterMinutes int             `json:"retry_after_minutes,omitempty"`
	RateLimitHits     int             `json:"rate_limit_hits,omitempty"`
	RecoveryNeeded    bool            `json:"recovery_needed,omitempty"`
	SuggestedAction   string          `json:"suggested_action,omitempty"`
	CorrelationTag    string          `json:"correlation_tag,omitempty"`
}

// CooldownUntil is the earliest time a rate-limited step may run again.
// It is the zero time for any other failure.
func (e *ErrorLog) CooldownUntil() time.Time {
	if e == nil || !e.RateLimited {
		return time.Time{}
	}
	return e.Timestamp.Add(time.Duration(e.RetryAfterMinutes) * time.Minute)
}

// CorrelationTag is the short tag embedded in remote requests for support lookups.
func CorrelationTag(key string) string {
	r := []rune(key)
	if len(r) > 10 {
		r = r[:10]
	}
	return "[NX:" + string(r) + "]"
}

// NewIdempotencyKey derives the key a client generates once per launch attempt.
func NewIdempotencyKey(userID, productID string, mode LaunchMode, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s-%s", userID, productID, mode, at.UTC().Format(time.RFC3339))))
	return hex.EncodeToString(sum[:])
}
