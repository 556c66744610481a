// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campaign-launcher/internal/config"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/adapters/adplatform"
	tele "campaign-launcher/internal/infra/adapters/telegram"
	"campaign-launcher/internal/infra/api"
	pg "campaign-launcher/internal/infra/db/postgres"
	"campaign-launcher/internal/infra/logging"
	"campaign-launcher/internal/infra/metrics"
	red "campaign-launcher/internal/infra/redis"
	"campaign-launcher/internal/infra/sched"
	"campaign-launcher/internal/infra/security"
	"campaign-launcher/internal/infra/worker"
	"campaign-launcher/internal/usecase"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted secrets)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.Runtime.Dev = *devMode

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("campaign launcher stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting campaign launcher")

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	rawJobs := pg.NewLaunchJobRepo(pool)
	txm := pg.NewTxManager(pool)

	// ---- Redis (optional) ----
	var (
		locker   usecase.KeyLocker
		limiter  adplatform.Allower
		readJobs repository.LaunchJobRepository = rawJobs
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rc.Close() }()
		locker = red.NewLocker(rc)
		limiter = red.NewRateLimiter(rc)
		readJobs = pg.NewLaunchJobRepoCacheDecorator(rawJobs, rc, cfg.Redis.TTL, logger)
		logger.Info().Str("redis", logging.Redact(cfg.Redis.URL, cfg.Runtime.Dev)).Msg("redis enabled: launch lock, job cache, call budget")
	} else {
		logger.Warn().Msg("redis not configured: launch lock, job cache and call budget disabled")
	}

	// ---- Ad platform ----
	platform, err := newPlatform(cfg, logger)
	if err != nil {
		return err
	}
	platform = adplatform.NewBudgetedPlatform(platform, limiter, cfg.AdPlatform.CallsPerMinute, logger)

	// ---- Notifier ----
	var notifier adapter.Notifier = tele.NewLogNotifier(logger)
	if cfg.Bot.Token != "" {
		n, err := tele.NewNotifier(&cfg.Bot, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = n
	}

	// ---- Engine ----
	// drive loops read the uncached store; the cache only serves the API
	steps := usecase.DefaultSteps()
	clock := usecase.RealClock()
	ecfg := engineConfig(cfg.Engine)
	executor := usecase.NewStepExecutor(steps, rawJobs, platform, notifier, clock, ecfg, logger)
	orch := usecase.NewOrchestrator(steps, executor, rawJobs, notifier, clock, ecfg.Timings, logger)

	workers := worker.NewPool(cfg.Engine.Workers, cfg.Engine.Queue, logger)
	runner := usecase.NewRunner(orch, rawJobs, workers, locker, cfg.Engine.LockTTL, logger)
	launches := usecase.NewLaunchService(steps, readJobs, txm, runner, notifier, clock, logger)
	sweeper := sched.NewResumeSweeper(cfg.Scheduler.ResumeCron, cfg.Scheduler.ResumeBatch, rawJobs, runner, logger)

	// ---- HTTP ----
	tm := security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	srv := api.NewHTTPServer(&cfg.HTTP, api.NewRouter(launches, tm, cfg.HTTP.RequestTimeout, logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		workers.Start(gctx)
		<-gctx.Done()
		return nil
	})
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return pg.ReportPoolStats(gctx, pool, 15*time.Second) })
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		runner.Shutdown()
		workers.Stop()
		return err
	})
	return g.Wait()
}

func newPlatform(cfg *config.Config, logger *zerolog.Logger) (adapter.AdPlatform, error) {
	ac := cfg.AdPlatform
	if ac.Driver == "sandbox" {
		logger.Warn().Msg("ad platform: in-memory sandbox driver, no remote calls are made")
		return adplatform.NewSandbox(), nil
	}
	client, err := adplatform.NewHTTPClient(ac.SandboxURL, ac.LiveURL, ac.AccessToken, logger,
		adplatform.WithHTTPClient(&http.Client{Timeout: ac.Timeout}),
		adplatform.WithRateLimit(ac.RequestsPerSec, ac.Burst),
	)
	if err != nil {
		return nil, fmt.Errorf("ad platform: %w", err)
	}
	logger.Info().
		Str("sandbox_url", ac.SandboxURL).
		Str("live_url", ac.LiveURL).
		Str("access_token", logging.Redact(ac.AccessToken, cfg.Runtime.Dev)).
		Msg("ad platform: http driver")
	return client, nil
}
