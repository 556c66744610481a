package adplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/infra/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var _ adapter.AdPlatform = (*HTTPClient)(nil)

const maxResponseBytes = 1 << 20

// HTTPClient talks JSON to a marketing API. Responses use the envelope
// {"code": 0, "message": "OK", "request_id": "...", "data": {...}}; any non-zero
// code is a failure even on HTTP 200.
type HTTPClient struct {
	baseURLs map[model.LaunchMode]string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	log      *zerolog.Logger
}

type ClientOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) { h.http = c }
}

// WithRateLimit paces outbound requests from this process.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(h *HTTPClient) {
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewHTTPClient builds a client. liveURL may be empty, in which case live
// launches fail fast.
func NewHTTPClient(sandboxURL, liveURL, accessToken string, logger *zerolog.Logger, opts ...ClientOption) (*HTTPClient, error) {
	if sandboxURL == "" {
		return nil, errors.New("adplatform: sandbox url is required")
	}
	if accessToken == "" {
		return nil, errors.New("adplatform: access token is required")
	}
	l := logger.With().Str("component", "AdPlatformClient").Logger()
	c := &HTTPClient{
		baseURLs: map[model.LaunchMode]string{
			model.LaunchModeSandbox: strings.TrimRight(sandboxURL, "/"),
			model.LaunchModeLive:    strings.TrimRight(liveURL, "/"),
		},
		token:   accessToken,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		log:     &l,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func (c *HTTPClient) UploadAsset(ctx context.Context, p adapter.UploadAssetParams) (adapter.UploadedAsset, error) {
	path := "/file/image/ad/upload/"
	if p.Kind == adapter.AssetKindVideo {
		path = "/file/video/ad/upload/"
	}
	body := map[string]any{
		"upload_type": "UPLOAD_BY_URL",
		"file_name":   fmt.Sprintf("%s_%s_%d", p.FileNamePrefix, p.Kind, time.Now().Unix()),
	}
	if p.Kind == adapter.AssetKindVideo {
		body["video_url"] = p.SourceURL
	} else {
		body["image_url"] = p.SourceURL
	}

	var out struct {
		ImageID string `json:"image_id"`
		VideoID string `json:"video_id"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
		Size    int    `json:"size"`
	}
	if err := c.call(ctx, p.Common, uploadOp(p.Kind), path, body, &out); err != nil {
		return adapter.UploadedAsset{}, err
	}
	id := out.ImageID
	if p.Kind == adapter.AssetKindVideo {
		id = out.VideoID
	}
	if id == "" {
		return adapter.UploadedAsset{}, &adapter.RemoteError{StatusCode: http.StatusOK, Message: "upload returned no resource id"}
	}
	return adapter.UploadedAsset{ResourceID: id, Width: out.Width, Height: out.Height, SizeKB: out.Size / 1024}, nil
}

func (c *HTTPClient) CreateIdentity(ctx context.Context, p adapter.CreateIdentityParams) (string, error) {
	body := map[string]any{
		"identity_type": "CUSTOMIZED_USER",
		"display_name":  p.DisplayName,
		"image_uri":     p.AvatarImageID,
	}
	var out struct {
		IdentityID string `json:"identity_id"`
	}
	if err := c.call(ctx, p.Common, OpCreateIdentity, "/identity/create/", body, &out); err != nil {
		return "", err
	}
	return out.IdentityID, requireID("identity", out.IdentityID)
}

func (c *HTTPClient) CreateCampaign(ctx context.Context, p adapter.CreateCampaignParams) (string, error) {
	body := map[string]any{
		"campaign_name":  p.Name,
		"objective_type": "TRAFFIC",
		"budget_mode":    "BUDGET_MODE_DAY",
		"budget":         p.DailyBudget,
		"currency":       p.Currency,
		// live campaigns are created paused for review
		"operation_status": "DISABLE",
	}
	var out struct {
		CampaignID string `json:"campaign_id"`
	}
	if err := c.call(ctx, p.Common, OpCreateCampaign, "/campaign/create/", body, &out); err != nil {
		return "", err
	}
	return out.CampaignID, requireID("campaign", out.CampaignID)
}

func (c *HTTPClient) CreateAdGroup(ctx context.Context, p adapter.CreateAdGroupParams) (adapter.AdGroupResult, error) {
	body := map[string]any{
		"campaign_id":   p.CampaignID,
		"adgroup_name":  p.Name,
		"location_code": p.Targeting.CountryCode,
		"gender":        p.Targeting.Gender,
		"age_min":       p.Targeting.AgeMin,
		"age_max":       p.Targeting.AgeMax,
		"budget_mode":   "BUDGET_MODE_DAY",
		"budget":        p.DailyBudget,
		"duration_days": p.DurationDays,
		"landing_url":   p.LandingURL,
	}
	var out struct {
		AdGroupID        string `json:"adgroup_id"`
		LocationChanged  bool   `json:"location_changed"`
		LocationWarning  string `json:"location_warning"`
		OriginalLocation string `json:"original_location"`
		ActualLocation   string `json:"actual_location"`
	}
	if err := c.call(ctx, p.Common, OpCreateAdGroup, "/adgroup/create/", body, &out); err != nil {
		return adapter.AdGroupResult{}, err
	}
	if err := requireID("ad group", out.AdGroupID); err != nil {
		return adapter.AdGroupResult{}, err
	}
	return adapter.AdGroupResult{
		AdGroupID:       out.AdGroupID,
		LocationChanged: out.LocationChanged,
		LocationWarning: out.LocationWarning,
		OriginalTarget:  out.OriginalLocation,
		ActualTarget:    out.ActualLocation,
	}, nil
}

func (c *HTTPClient) CreateAd(ctx context.Context, p adapter.CreateAdParams) (string, error) {
	creative := map[string]any{
		"ad_name":        p.Name,
		"ad_text":        p.Text,
		"call_to_action": p.CallToAction,
		"identity_id":    p.IdentityID,
		"avatar_icon":    p.AvatarImageID,
		"landing_url":    p.LandingURL,
	}
	if p.VideoID != "" {
		creative["ad_format"] = "SINGLE_VIDEO"
		creative["video_id"] = p.VideoID
		creative["image_ids"] = []string{p.CoverImageID}
	} else {
		creative["ad_format"] = "SINGLE_IMAGE"
		creative["image_ids"] = []string{p.ImageID}
	}
	body := map[string]any{
		"adgroup_id": p.AdGroupID,
		"creatives":  []any{creative},
	}
	var out struct {
		AdIDs []string `json:"ad_ids"`
	}
	if err := c.call(ctx, p.Common, OpCreateAd, "/ad/create/", body, &out); err != nil {
		return "", err
	}
	if len(out.AdIDs) == 0 {
		return "", requireID("ad", "")
	}
	return out.AdIDs[0], nil
}

func requireID(what, id string) error {
	if id == "" {
		return &adapter.RemoteError{StatusCode: http.StatusOK, Message: what + " create returned no id"}
	}
	return nil
}

// call posts body to path and decodes the envelope's data into out.
func (c *HTTPClient) call(ctx context.Context, cc adapter.CallContext, op, path string, body map[string]any, out any) error {
	base := c.baseURLs[cc.LaunchMode]
	if base == "" {
		return fmt.Errorf("adplatform: no base url for %q mode", cc.LaunchMode)
	}
	if cc.AdvertiserID != "" {
		body["advertiser_id"] = cc.AdvertiserID
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if cc.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", cc.IdempotencyKey+":"+op)
	}
	if cc.CorrelationTag != "" {
		req.Header.Set("X-Correlation-Tag", cc.CorrelationTag)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveAdPlatformCall(op, string(cc.LaunchMode), latency, false)
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ObserveAdPlatformCall(op, string(cc.LaunchMode), latency, false)
		return fmt.Errorf("read %s response: %w", op, err)
	}

	remoteErr := decodeEnvelope(resp, raw, out)
	metrics.ObserveAdPlatformCall(op, string(cc.LaunchMode), latency, remoteErr == nil)
	if remoteErr != nil {
		c.log.Warn().
			Str("op", op).
			Str("tag", cc.CorrelationTag).
			Int("http_status", resp.StatusCode).
			Err(remoteErr).
			Msg("ad platform call failed")
		return remoteErr
	}
	c.log.Debug().Str("op", op).Str("tag", cc.CorrelationTag).Int64("latency_ms", latency).Msg("ad platform call ok")
	return nil
}

func decodeEnvelope(resp *http.Response, raw []byte, out any) error {
	var env envelope
	jsonErr := json.Unmarshal(raw, &env)

	var payload json.RawMessage
	if json.Valid(raw) {
		payload = raw
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if jsonErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		re := &adapter.RemoteError{StatusCode: resp.StatusCode, Code: env.Code, Message: msg, Payload: payload}
		if resp.StatusCode == http.StatusTooManyRequests {
			re.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return re
	}
	if jsonErr != nil {
		return &adapter.RemoteError{StatusCode: resp.StatusCode, Message: "malformed response: " + jsonErr.Error()}
	}
	if env.Code != 0 {
		return &adapter.RemoteError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message, Payload: payload}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &adapter.RemoteError{StatusCode: resp.StatusCode, Message: "malformed response data: " + err.Error(), Payload: payload}
		}
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
