package usecase

import (
	"context"
	"fmt"
	"time"

	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type DecisionKind int

const (
	DecisionStop DecisionKind = iota
	DecisionWait
	DecisionComplete
	DecisionRun
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionWait:
		return "wait"
	case DecisionComplete:
		return "complete"
	case DecisionRun:
		return "run"
	default:
		return "stop"
	}
}

// Decision is what the orchestrator wants to do next with a job.
type Decision struct {
	Kind  DecisionKind
	Step  Step
	Delay time.Duration
}

// StepRunner executes one named step. *StepExecutor implements it.
type StepRunner interface {
	Execute(ctx context.Context, stepID string, job *model.LaunchJob) (*model.LaunchJob, error)
}

// Orchestrator resolves the next step of a job and drives the executor until the
// job stops, completes or the context ends.
type Orchestrator struct {
	steps    Steps
	exec     StepRunner
	jobs     repository.LaunchJobRepository
	notifier adapter.Notifier
	clock    Clock
	timings  Timings
	log      *zerolog.Logger
}

func NewOrchestrator(
	steps Steps,
	exec StepRunner,
	jobs repository.LaunchJobRepository,
	notifier adapter.Notifier,
	clock Clock,
	timings Timings,
	logger *zerolog.Logger,
) *Orchestrator {
	l := logger.With().Str("component", "Orchestrator").Logger()
	return &Orchestrator{
		steps:    steps,
		exec:     exec,
		jobs:     jobs,
		notifier: notifier,
		clock:    clock,
		timings:  timings,
		log:      &l,
	}
}

// Decide reads only the job and the time. Calling it repeatedly with the same
// inputs yields the same decision.
func (o *Orchestrator) Decide(job *model.LaunchJob, enabled bool, now time.Time) Decision {
	if !enabled || job == nil || job.Status.IsTerminal() || job.Config == nil {
		return Decision{Kind: DecisionStop}
	}

	rateLimited := job.ErrorLog != nil && job.ErrorLog.RateLimited
	if rateLimited {
		if until := job.ErrorLog.CooldownUntil(); now.Before(until) {
			return Decision{Kind: DecisionWait, Delay: until.Sub(now)}
		}
	}

	next, ok := o.steps.Next(job.Status)
	if !ok {
		return Decision{Kind: DecisionComplete}
	}

	delay := o.timings.BaseStepDelay
	if rateLimited {
		delay = o.timings.AfterRateLimit
	}
	if next.ID == StepUploadAsset && delay < o.timings.AssetStepFloor {
		delay = o.timings.AssetStepFloor
	}
	return Decision{Kind: DecisionRun, Step: next, Delay: delay}
}

// Drive loops decide, wait, execute until the job stops or completes. running,
// when set, is told which step is in flight ("" once it returns).
func (o *Orchestrator) Drive(ctx context.Context, job *model.LaunchJob, running func(stepID string)) (*model.LaunchJob, error) {
	if running == nil {
		running = func(string) {}
	}
	log := o.log.With().Str("job_key", job.IdempotencyKey).Logger()

	for {
		d := o.Decide(job, ctx.Err() == nil, o.clock.Now())
		switch d.Kind {
		case DecisionStop:
			if err := ctx.Err(); err != nil {
				return job, err
			}
			log.Debug().Str("status", string(job.Status)).Msg("nothing left to drive")
			return job, nil

		case DecisionWait:
			log.Info().Dur("remaining", d.Delay).Msg("rate limit cool-down in progress")
			if err := o.clock.Sleep(ctx, d.Delay); err != nil {
				return job, err
			}

		case DecisionComplete:
			return o.complete(ctx, &log, job)

		case DecisionRun:
			log.Debug().Str("step", d.Step.ID).Dur("delay", d.Delay).Msg("next step resolved")
			if err := o.clock.Sleep(ctx, d.Delay); err != nil {
				return job, err
			}
			running(d.Step.ID)
			next, err := o.exec.Execute(ctx, d.Step.ID, job)
			running("")
			if next != nil {
				job = next
			}
			if err != nil {
				return job, err
			}
		}
	}
}

func (o *Orchestrator) complete(ctx context.Context, log *zerolog.Logger, job *model.LaunchJob) (*model.LaunchJob, error) {
	if job.Status == model.LaunchStatusSucceeded {
		return job, nil
	}
	updated, err := o.jobs.Update(ctx, repository.NoTX, job.ID, model.JobUpdate{
		Status:        model.StatusPtr(model.LaunchStatusSucceeded),
		ClearErrorLog: true,
	})
	if err != nil {
		return job, fmt.Errorf("mark launch succeeded: %w", err)
	}
	metrics.IncLaunchJob("succeeded")
	log.Info().
		Str("campaign_id", updated.Results.CampaignID).
		Str("ad_id", updated.Results.AdID).
		Msg("launch succeeded")

	title := "Live Campaign Created Successfully! (Campaign is paused for your review)"
	if updated.LaunchMode != model.LaunchModeLive {
		title = "Sandbox Campaign Created Successfully!"
	}
	notify(ctx, o.notifier, log, adapter.Notification{
		Level:          adapter.NotificationSuccess,
		Title:          title,
		Description:    fmt.Sprintf("Campaign %s with ad %s is ready for verification.", updated.Results.CampaignID, updated.Results.AdID),
		JobKey:         updated.IdempotencyKey,
		CorrelationTag: updated.CorrelationTag,
	})
	return updated, nil
}
