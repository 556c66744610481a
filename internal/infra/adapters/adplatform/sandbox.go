package adplatform

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"campaign-launcher/internal/domain/ports/adapter"
)

var _ adapter.AdPlatform = (*Sandbox)(nil)

const (
	OpUploadAvatar   = "upload_avatar"
	OpUploadImage    = "upload_image"
	OpUploadVideo    = "upload_video"
	OpUploadCover    = "upload_cover"
	OpCreateIdentity = "create_identity"
	OpCreateCampaign = "create_campaign"
	OpCreateAdGroup  = "create_adgroup"
	OpCreateAd       = "create_ad"
)

func uploadOp(kind adapter.AssetKind) string { return "upload_" + string(kind) }

// Sandbox is an in-memory ad platform with deterministic ids. Failures can be
// queued per operation and every call is counted.
type Sandbox struct {
	mu       sync.Mutex
	seq      int64
	calls    map[string]int
	failures map[string][]error
	override *adapter.AdGroupResult
	last     map[string]adapter.CallContext
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		last:     make(map[string]adapter.CallContext),
	}
}

// FailNext queues errs to be returned, one per call, by op.
func (s *Sandbox) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// RateLimitNext queues n HTTP 429 failures for op.
func (s *Sandbox) RateLimitNext(op string, n int) {
	for i := 0; i < n; i++ {
		s.FailNext(op, &adapter.RemoteError{
			StatusCode: http.StatusTooManyRequests,
			Message:    "Rate limit exceeded, please slow down",
		})
	}
}

// OverrideLocation makes the next ad groups report a replaced target.
func (s *Sandbox) OverrideLocation(original, actual string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = &adapter.AdGroupResult{
		LocationChanged: true,
		LocationWarning: fmt.Sprintf("Targeting %s is not available, %s was used instead.", original, actual),
		OriginalTarget:  original,
		ActualTarget:    actual,
	}
}

// Calls reports how many times op was invoked, failures included.
func (s *Sandbox) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls is the number of remote calls of any kind.
func (s *Sandbox) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// LastCall returns the call context of the latest invocation of op.
func (s *Sandbox) LastCall(op string) adapter.CallContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[op]
}

func (s *Sandbox) enter(ctx context.Context, op string, cc adapter.CallContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	s.last[op] = cc
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return "", q[0]
	}
	s.seq++
	return fmt.Sprintf("sbx-%s-%d", op, s.seq), nil
}

func (s *Sandbox) UploadAsset(ctx context.Context, p adapter.UploadAssetParams) (adapter.UploadedAsset, error) {
	id, err := s.enter(ctx, uploadOp(p.Kind), p.Common)
	if err != nil {
		return adapter.UploadedAsset{}, err
	}
	out := adapter.UploadedAsset{ResourceID: id, Width: 1080, Height: 1920, SizeKB: 512}
	if p.Kind == adapter.AssetKindAvatar {
		out.Width, out.Height, out.SizeKB = 400, 400, 48
	}
	return out, nil
}

func (s *Sandbox) CreateIdentity(ctx context.Context, p adapter.CreateIdentityParams) (string, error) {
	return s.enter(ctx, OpCreateIdentity, p.Common)
}

func (s *Sandbox) CreateCampaign(ctx context.Context, p adapter.CreateCampaignParams) (string, error) {
	return s.enter(ctx, OpCreateCampaign, p.Common)
}

func (s *Sandbox) CreateAdGroup(ctx context.Context, p adapter.CreateAdGroupParams) (adapter.AdGroupResult, error) {
	id, err := s.enter(ctx, OpCreateAdGroup, p.Common)
	if err != nil {
		return adapter.AdGroupResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := adapter.AdGroupResult{AdGroupID: id}
	if s.override != nil {
		res = *s.override
		res.AdGroupID = id
	}
	return res, nil
}

func (s *Sandbox) CreateAd(ctx context.Context, p adapter.CreateAdParams) (string, error) {
	return s.enter(ctx, OpCreateAd, p.Common)
}
