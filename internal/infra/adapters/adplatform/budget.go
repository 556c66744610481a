package adplatform

import (
	"context"
	"net/http"
	"time"

	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/infra/metrics"
	red "campaign-launcher/internal/infra/redis"

	"github.com/rs/zerolog"
)

// Allower is a shared fixed-window counter; *redis.RateLimiter implements it.
type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ adapter.AdPlatform = (*budgetedPlatform)(nil)

// budgetedPlatform caps calls per advertiser across every instance. A call over
// budget fails like a platform rate limit so the engine's cool-down applies.
type budgetedPlatform struct {
	inner   adapter.AdPlatform
	limiter Allower
	limit   int
	window  time.Duration
	log     *zerolog.Logger
}

func NewBudgetedPlatform(inner adapter.AdPlatform, limiter Allower, perMinute int, logger *zerolog.Logger) adapter.AdPlatform {
	if limiter == nil || perMinute <= 0 {
		return inner
	}
	l := logger.With().Str("component", "AdPlatformBudget").Logger()
	return &budgetedPlatform{inner: inner, limiter: limiter, limit: perMinute, window: time.Minute, log: &l}
}

func (b *budgetedPlatform) spend(ctx context.Context, cc adapter.CallContext, op string) error {
	ok, err := b.limiter.Allow(ctx, red.AdvertiserCallKey(string(cc.LaunchMode), cc.AdvertiserID), b.limit, b.window)
	if err != nil {
		// the shared budget is advisory; the platform still enforces its own limits
		b.log.Warn().Err(err).Str("op", op).Msg("call budget unavailable, proceeding")
		return nil
	}
	if ok {
		return nil
	}
	metrics.IncBudgetBlocked(op)
	return &adapter.RemoteError{
		StatusCode: http.StatusTooManyRequests,
		Message:    "outbound call budget exhausted for advertiser",
		RetryAfter: b.window,
	}
}

func (b *budgetedPlatform) UploadAsset(ctx context.Context, p adapter.UploadAssetParams) (adapter.UploadedAsset, error) {
	if err := b.spend(ctx, p.Common, uploadOp(p.Kind)); err != nil {
		return adapter.UploadedAsset{}, err
	}
	return b.inner.UploadAsset(ctx, p)
}

func (b *budgetedPlatform) CreateIdentity(ctx context.Context, p adapter.CreateIdentityParams) (string, error) {
	if err := b.spend(ctx, p.Common, OpCreateIdentity); err != nil {
		return "", err
	}
	return b.inner.CreateIdentity(ctx, p)
}

func (b *budgetedPlatform) CreateCampaign(ctx context.Context, p adapter.CreateCampaignParams) (string, error) {
	if err := b.spend(ctx, p.Common, OpCreateCampaign); err != nil {
		return "", err
	}
	return b.inner.CreateCampaign(ctx, p)
}

func (b *budgetedPlatform) CreateAdGroup(ctx context.Context, p adapter.CreateAdGroupParams) (adapter.AdGroupResult, error) {
	if err := b.spend(ctx, p.Common, OpCreateAdGroup); err != nil {
		return adapter.AdGroupResult{}, err
	}
	return b.inner.CreateAdGroup(ctx, p)
}

func (b *budgetedPlatform) CreateAd(ctx context.Context, p adapter.CreateAdParams) (string, error) {
	if err := b.spend(ctx, p.Common, OpCreateAd); err != nil {
		return "", err
	}
	return b.inner.CreateAd(ctx, p)
}
