//go:build !integration

package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/infra/adapters/adplatform"
	"campaign-launcher/internal/infra/db/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeClock advances instantly on Sleep and records every wait.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// recordingNotifier keeps every notification it receives.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []adapter.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, msg adapter.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) Titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Title)
	}
	return out
}

// timedPlatform records the clock time of every asset upload.
type timedPlatform struct {
	adapter.AdPlatform
	clock Clock

	mu      sync.Mutex
	uploads map[adapter.AssetKind][]time.Time
}

func (p *timedPlatform) UploadAsset(ctx context.Context, in adapter.UploadAssetParams) (adapter.UploadedAsset, error) {
	p.mu.Lock()
	if p.uploads == nil {
		p.uploads = make(map[adapter.AssetKind][]time.Time)
	}
	p.uploads[in.Kind] = append(p.uploads[in.Kind], p.clock.Now())
	p.mu.Unlock()
	return p.AdPlatform.UploadAsset(ctx, in)
}

// fakeDriver is a func-field mock of Driver.
type fakeDriver struct {
	mu      sync.Mutex
	ensured []string

	EnsureFunc func(job *model.LaunchJob) (bool, error)
	CancelFunc func(key string) bool
}

func (d *fakeDriver) Ensure(job *model.LaunchJob) (bool, error) {
	d.mu.Lock()
	d.ensured = append(d.ensured, job.IdempotencyKey)
	d.mu.Unlock()
	if d.EnsureFunc != nil {
		return d.EnsureFunc(job)
	}
	return !job.Status.IsTerminal(), nil
}

func (d *fakeDriver) Cancel(key string) bool {
	if d.CancelFunc != nil {
		return d.CancelFunc(key)
	}
	return false
}

func (d *fakeDriver) Running(string) string { return "" }
func (d *fakeDriver) Active(string) bool    { return false }

func (d *fakeDriver) Ensured() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ensured...)
}

// goSubmitter runs each task on its own goroutine.
type goSubmitter struct {
	ctx context.Context
	wg  sync.WaitGroup
}

func (s *goSubmitter) Submit(task func(ctx context.Context) error) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = task(s.ctx)
	}()
	return nil
}

type engine struct {
	repo     *memory.LaunchJobRepo
	sandbox  *adplatform.Sandbox
	platform *timedPlatform
	clock    *fakeClock
	notifier *recordingNotifier
	cfg      EngineConfig
	exec     *StepExecutor
	orch     *Orchestrator
}

func newEngine(t *testing.T, mutate ...func(*EngineConfig)) *engine {
	t.Helper()
	e := &engine{
		sandbox:  adplatform.NewSandbox(),
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
		cfg:      DefaultEngineConfig(),
	}
	for _, m := range mutate {
		m(&e.cfg)
	}
	e.repo = memory.NewLaunchJobRepo().WithClock(e.clock.Now)
	e.platform = &timedPlatform{AdPlatform: e.sandbox, clock: e.clock}
	steps := DefaultSteps()
	e.exec = NewStepExecutor(steps, e.repo, e.platform, e.notifier, e.clock, e.cfg, testLogger())
	e.orch = NewOrchestrator(steps, e.exec, e.repo, e.notifier, e.clock, e.cfg.Timings, testLogger())
	return e
}

func sampleConfig() *model.LaunchConfig {
	return &model.LaunchConfig{
		ProductID:         "prod-42",
		ProductName:       "Trail Runner Pro",
		ProductLink:       "https://shop.example.com/trail-runner",
		ProductImageURL:   "https://cdn.example.com/trail-runner.png",
		AssetURL:          "https://cdn.example.com/trail-runner-ad.jpg",
		MediaType:         model.MediaTypeImage,
		LaunchMode:        model.LaunchModeSandbox,
		CampaignName:      "Trail Runner spring",
		DailyBudget:       25,
		TargetCountryCode: "US",
		TargetAgeMin:      18,
		TargetAgeMax:      44,
		AdCopy:            model.AdCopy{BodyText: "Run further", CallToAction: "SHOP_NOW"},
	}
}

func videoConfig() *model.LaunchConfig {
	cfg := sampleConfig()
	cfg.AssetURL = "https://cdn.example.com/trail-runner.mp4"
	cfg.MediaType = model.MediaTypeVideo
	return cfg
}

// seedJob stores a job at status with the given results already acquired.
func (e *engine) seedJob(t *testing.T, key string, cfg *model.LaunchConfig, status model.LaunchStatus, results model.StepResults) *model.LaunchJob {
	t.Helper()
	job := model.NewLaunchJob(key, "user-1", cfg, e.clock.Now())
	require.NoError(t, e.repo.Create(context.Background(), nil, job))
	upd := model.JobUpdate{Results: results}
	if status != model.LaunchStatusStarted {
		upd.Status = model.StatusPtr(status)
	}
	out, err := e.repo.Update(context.Background(), nil, job.ID, upd)
	require.NoError(t, err)
	return out
}
