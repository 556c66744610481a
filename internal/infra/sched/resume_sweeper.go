package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Ensurer starts driving a launch job unless it is terminal or already driven.
type Ensurer interface {
	Ensure(job *model.LaunchJob) (bool, error)
}

// ResumeSweeper periodically hands in-flight launch jobs to the runner so a
// job interrupted by a crash or a redeploy picks up where it stopped.
type ResumeSweeper struct {
	schedule string
	batch    int
	timeout  time.Duration
	jobs     repository.LaunchJobRepository
	runner   Ensurer
	cron     *cron.Cron
	log      *zerolog.Logger
}

func NewResumeSweeper(schedule string, batch int, jobs repository.LaunchJobRepository, runner Ensurer, logger *zerolog.Logger) *ResumeSweeper {
	if schedule == "" {
		schedule = "@every 1m"
	}
	if batch <= 0 {
		batch = 100
	}
	compLog := logger.With().Str("component", "ResumeSweeper").Logger()
	return &ResumeSweeper{
		schedule: schedule,
		batch:    batch,
		timeout:  30 * time.Second,
		jobs:     jobs,
		runner:   runner,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:      &compLog,
	}
}

// Run sweeps once on startup, then on every scheduled tick until ctx is done.
func (w *ResumeSweeper) Run(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.schedule, func() { w.runSweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", w.schedule, err)
	}
	w.log.Info().Str("schedule", w.schedule).Msg("Starting resume sweeper")
	w.runSweep(ctx)
	w.cron.Start()

	<-ctx.Done()
	w.log.Info().Msg("Stopping resume sweeper")
	<-w.cron.Stop().Done()
	return ctx.Err()
}

func (w *ResumeSweeper) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	started, err := w.SweepOnce(sctx)
	if err != nil {
		w.log.Error().Err(err).Msg("resume sweep failed")
	}
	if started > 0 {
		w.log.Info().Int("count", started).Msg("resumed in-flight launches")
	}
}

// SweepOnce lists in-flight jobs and ensures each is driven. It returns how
// many loops were started.
func (w *ResumeSweeper) SweepOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.ListInFlight(ctx, repository.NoTX, w.batch)
	if err != nil {
		return 0, fmt.Errorf("list in-flight launches: %w", err)
	}
	var (
		started int
		errs    []error
	)
	for _, job := range jobs {
		ok, err := w.runner.Ensure(job)
		if err != nil {
			w.log.Warn().Err(err).Str("job_key", job.IdempotencyKey).Msg("failed to resume launch")
			errs = append(errs, err)
			continue
		}
		if ok {
			started++
			metrics.IncLaunchJob("swept")
		}
	}
	return started, errors.Join(errs...)
}
