package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// EngineConfig carries the tunables shared by the executor and the orchestrator.
type EngineConfig struct {
	Timings Timings
	Rules   ClassifierRules
	// MaxRateLimitRetries is how many automatic cool-down retries a step gets
	// before the job is marked FAILED. Zero disables automatic retries.
	MaxRateLimitRetries int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Timings:             DefaultTimings(),
		Rules:               DefaultClassifierRules(),
		MaxRateLimitRetries: 3,
	}
}

// StepExecutor runs exactly one step against the ad platform and records the
// outcome on the job. Step failures never escape as errors: they are persisted.
type StepExecutor struct {
	steps      Steps
	jobs       repository.LaunchJobRepository
	platform   adapter.AdPlatform
	notifier   adapter.Notifier
	classifier *Classifier
	clock      Clock
	cfg        EngineConfig
	log        *zerolog.Logger
}

func NewStepExecutor(
	steps Steps,
	jobs repository.LaunchJobRepository,
	platform adapter.AdPlatform,
	notifier adapter.Notifier,
	clock Clock,
	cfg EngineConfig,
	logger *zerolog.Logger,
) *StepExecutor {
	l := logger.With().Str("component", "StepExecutor").Logger()
	return &StepExecutor{
		steps:      steps,
		jobs:       jobs,
		platform:   platform,
		notifier:   notifier,
		classifier: NewClassifier(cfg.Rules),
		clock:      clock,
		cfg:        cfg,
		log:        &l,
	}
}

// Execute runs stepID for job and returns the job as persisted afterwards. The
// error is non-nil only when ctx ended mid-step or the job store is unreachable.
func (e *StepExecutor) Execute(ctx context.Context, stepID string, job *model.LaunchJob) (*model.LaunchJob, error) {
	start := time.Now()
	log := e.log.With().Str("job_key", job.IdempotencyKey).Str("step", stepID).Logger()

	step, ok := e.steps.Find(stepID)
	if !ok {
		err := fmt.Errorf("%w: %w %q", domain.ErrPrerequisiteMissing, domain.ErrUnknownStep, stepID)
		return e.recordFailure(ctx, &log, job, stepID, model.StepResults{}, err, start)
	}
	if job.Config == nil {
		return e.recordFailure(ctx, &log, job, stepID, model.StepResults{}, missing("campaign configuration is missing"), start)
	}
	if err := step.Precondition(job); err != nil {
		return e.recordFailure(ctx, &log, job, stepID, model.StepResults{}, err, start)
	}

	var results model.StepResults
	outcome := "ok"
	if step.Done(job) {
		outcome = "skipped"
		log.Info().Msg("step results already present, skipping remote calls")
	} else {
		log.Info().Msg("executing step")
		env := StepEnv{Platform: e.platform, Clock: e.clock, Timings: e.cfg.Timings, Log: &log}
		var err error
		results, err = step.Run(ctx, env, job)
		if err != nil {
			if ctx.Err() != nil {
				e.keepPartial(ctx, &log, job, results)
				return job, ctx.Err()
			}
			return e.recordFailure(ctx, &log, job, stepID, results, err, start)
		}
	}

	updated, err := e.jobs.Update(ctx, repository.NoTX, job.ID, model.JobUpdate{
		Status:        model.StatusPtr(step.CompletedStatus),
		Results:       results,
		ClearErrorLog: true,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to persist step completion")
		return job, fmt.Errorf("persist step %s: %w", stepID, err)
	}
	metrics.ObserveStep(stepID, outcome, time.Since(start))
	log.Info().Str("status", string(updated.Status)).Msg("step completed")

	if err := e.clock.Sleep(ctx, e.cfg.Timings.InterStep); err != nil {
		return updated, err
	}
	return updated, nil
}

// keepPartial saves results acquired before a cancellation so a resume does not
// repeat those calls. Status and error log are left as they were.
func (e *StepExecutor) keepPartial(ctx context.Context, log *zerolog.Logger, job *model.LaunchJob, results model.StepResults) {
	if results.IsZero() {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := e.jobs.Update(pctx, repository.NoTX, job.ID, model.JobUpdate{Results: results}); err != nil {
		log.Warn().Err(err).Msg("failed to keep partial step results")
	}
}

func (e *StepExecutor) recordFailure(
	ctx context.Context,
	log *zerolog.Logger,
	job *model.LaunchJob,
	stepID string,
	partial model.StepResults,
	cause error,
	start time.Time,
) (*model.LaunchJob, error) {
	cl := e.classifier.Classify(stepID, cause)
	el := &model.ErrorLog{
		Step:            stepID,
		Kind:            cl.Kind,
		Message:         cl.Message,
		Details:         cl.Details,
		Timestamp:       e.clock.Now(),
		RecoveryNeeded:  cl.RecoveryNeeded,
		SuggestedAction: cl.SuggestedAction,
		CorrelationTag:  job.CorrelationTag,
	}
	upd := model.JobUpdate{Results: partial, ErrorLog: el}

	exhausted := true
	if cl.Kind == model.ErrorKindRateLimited {
		el.RateLimited = true
		el.RetryAfterMinutes = cl.RetryAfterMinutes
		el.RateLimitHits = 1
		if prev := job.ErrorLog; prev != nil && prev.RateLimited && prev.Step == stepID {
			el.RateLimitHits = prev.RateLimitHits + 1
		}
		exhausted = el.RateLimitHits > e.cfg.MaxRateLimitRetries
		metrics.IncRateLimited(stepID)
	}
	if exhausted {
		upd.Status = model.StatusPtr(model.LaunchStatusFailed)
	}

	log.Warn().
		Err(cause).
		Str("kind", string(cl.Kind)).
		Int("retry_after_minutes", el.RetryAfterMinutes).
		Bool("terminal", exhausted).
		Msg("step failed")

	// the failure must be recorded even when the caller is tearing down
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	updated, err := e.jobs.Update(pctx, repository.NoTX, job.ID, upd)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist step failure")
		return job, fmt.Errorf("persist failure of step %s: %w", stepID, err)
	}
	metrics.ObserveStep(stepID, outcomeOf(cl.Kind), time.Since(start))
	if exhausted {
		metrics.IncLaunchJob("failed")
	}

	notify(pctx, e.notifier, log, failureNotice(updated, el, exhausted))
	return updated, nil
}

func outcomeOf(k model.ErrorKind) string {
	if k == model.ErrorKindGenericRemoteFailure {
		return "failed"
	}
	return strings.ToLower(string(k))
}

func failureNotice(job *model.LaunchJob, el *model.ErrorLog, terminal bool) adapter.Notification {
	n := adapter.Notification{
		Level:          adapter.NotificationError,
		JobKey:         job.IdempotencyKey,
		CorrelationTag: job.CorrelationTag,
	}
	switch {
	case el.RateLimited && !terminal:
		n.Title = "Ad Platform Rate Limit Reached"
		n.Description = fmt.Sprintf("The launch resumes automatically in %d minutes. This helps ensure fair API usage for all users.", el.RetryAfterMinutes)
	case el.RateLimited:
		n.Title = "Ad Platform Rate Limit Reached"
		n.Description = fmt.Sprintf("Please wait %d minutes before trying again. This helps ensure fair API usage for all users.", el.RetryAfterMinutes)
	case el.RecoveryNeeded:
		n.Title = "Campaign creation requires manual verification"
		n.Description = "The ad group may have been created but cannot be detected. Please check your Ads Manager."
	default:
		n.Title = "Campaign creation failed"
		n.Description = el.Message
	}
	return n
}

// notify is best effort: a delivery failure never affects the launch.
func notify(ctx context.Context, n adapter.Notifier, log *zerolog.Logger, msg adapter.Notification) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		log.Warn().Err(err).Str("title", msg.Title).Msg("notification failed")
	}
}
