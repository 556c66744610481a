package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"campaign-launcher/internal/config"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/infra/adapters/adplatform"
	tele "campaign-launcher/internal/infra/adapters/telegram"
	"campaign-launcher/internal/infra/db/memory"
	"campaign-launcher/internal/infra/logging"
	"campaign-launcher/internal/infra/worker"
	"campaign-launcher/internal/usecase"
)

// The demo runs one launch against the in-memory store and sandbox platform:
// the campaign step fails once, the job is retried and finishes without
// repeating the steps that already succeeded.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)

	jobs := memory.NewLaunchJobRepo()
	platform := adplatform.NewSandbox()
	platform.FailNext(adplatform.OpCreateCampaign, &adapter.RemoteError{StatusCode: 400, Code: 40002, Message: "daily budget below minimum"})
	notifier := tele.NewLogNotifier(logger)

	ecfg := usecase.DefaultEngineConfig()
	ecfg.Timings = usecase.Timings{
		AvatarToPrimary: 50 * time.Millisecond,
		BeforePoster:    50 * time.Millisecond,
		InterStep:       20 * time.Millisecond,
		BaseStepDelay:   20 * time.Millisecond,
		AfterRateLimit:  50 * time.Millisecond,
		AssetStepFloor:  50 * time.Millisecond,
	}

	steps := usecase.DefaultSteps()
	clock := usecase.RealClock()
	exec := usecase.NewStepExecutor(steps, jobs, platform, notifier, clock, ecfg, logger)
	orch := usecase.NewOrchestrator(steps, exec, jobs, notifier, clock, ecfg.Timings, logger)

	pool := worker.NewPool(2, 8, logger)
	pool.Start(ctx)
	defer pool.Stop()

	runner := usecase.NewRunner(orch, jobs, pool, nil, time.Minute, logger)
	defer runner.Shutdown()
	svc := usecase.NewLaunchService(steps, jobs, nil, runner, notifier, clock, logger)

	cfg := &model.LaunchConfig{
		ProductID:       "prod-42",
		ProductName:     "Trail Runner GTX",
		ProductLink:     "https://shop.example.com/trail-runner",
		ProductImageURL: "https://cdn.example.com/trail-runner.png",
		AssetURL:        "https://cdn.example.com/trail-runner.mp4",
		LaunchMode:      model.LaunchModeSandbox,
		CampaignName:    "Trail Runner Spring",
		DailyBudget:     50,
		AdCopy:          model.AdCopy{BodyText: "Run further this spring", CallToAction: "SHOP_NOW"},
	}
	key := model.NewIdempotencyKey("demo-user", cfg.ProductID, cfg.LaunchMode, time.Now())

	if _, err := svc.Start(ctx, usecase.StartRequest{Key: key, UserID: "demo-user", Config: cfg}); err != nil {
		log.Fatalf("start: %v", err)
	}
	view, err := waitTerminal(ctx, svc, key)
	if err != nil {
		log.Fatalf("first attempt: %v", err)
	}
	log.Printf("first attempt ended in %s at step %q", view.Job.Status, view.Job.ErrorLog.Step)

	if _, err := svc.Retry(ctx, key); err != nil {
		log.Fatalf("retry: %v", err)
	}
	view, err = waitTerminal(ctx, svc, key)
	if err != nil {
		log.Fatalf("retry attempt: %v", err)
	}

	log.Printf("final status %s, status trail %v", view.Job.Status, jobs.StatusTrail(view.Job.ID))
	log.Printf("remote calls: upload_video=%d create_identity=%d create_campaign=%d create_ad=%d",
		platform.Calls(adplatform.OpUploadVideo),
		platform.Calls(adplatform.OpCreateIdentity),
		platform.Calls(adplatform.OpCreateCampaign),
		platform.Calls(adplatform.OpCreateAd))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view.Projection); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func waitTerminal(ctx context.Context, svc usecase.LaunchUseCase, key string) (*usecase.LaunchView, error) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		view, err := svc.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if view.Job.Status.IsTerminal() && !view.Driving {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), fmt.Errorf("launch still %s", view.Job.Status))
		case <-t.C:
		}
	}
}
