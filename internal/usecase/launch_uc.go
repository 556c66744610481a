package usecase

import (
	"context"
	"errors"
	"fmt"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/adapter"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/logging"
	"campaign-launcher/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ LaunchUseCase = (*LaunchService)(nil)

type LaunchUseCase interface {
	// Start resumes the job stored under the key, or creates it from the config.
	Start(ctx context.Context, req StartRequest) (*LaunchView, error)
	// Retry resets a FAILED job to STARTED, keeping every acquired result.
	Retry(ctx context.Context, key string) (*LaunchView, error)
	// Cancel stops driving the job in this process.
	Cancel(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*LaunchView, error)
}

type StartRequest struct {
	Key    string
	UserID string
	// Config is only needed on the first call for a key.
	Config *model.LaunchConfig
}

// LaunchView is a job plus its display projection.
type LaunchView struct {
	Job        *model.LaunchJob `json:"job"`
	Projection Projection       `json:"projection"`
	Resumed    bool             `json:"resumed"`
	Driving    bool             `json:"driving"`
}

// Driver hands jobs to the drive loops. *Runner implements it.
type Driver interface {
	Ensure(job *model.LaunchJob) (bool, error)
	Cancel(key string) bool
	Running(key string) string
	Active(key string) bool
}

// LaunchService resolves an idempotency key to exactly one job and keeps it driven.
type LaunchService struct {
	steps    Steps
	jobs     repository.LaunchJobRepository
	tm       repository.TransactionManager
	driver   Driver
	notifier adapter.Notifier
	clock    Clock
	log      *zerolog.Logger
}

// NewLaunchService builds the service. tm may be nil for stores without transactions.
func NewLaunchService(
	steps Steps,
	jobs repository.LaunchJobRepository,
	tm repository.TransactionManager,
	driver Driver,
	notifier adapter.Notifier,
	clock Clock,
	logger *zerolog.Logger,
) *LaunchService {
	l := logger.With().Str("component", "LaunchService").Logger()
	return &LaunchService{
		steps:    steps,
		jobs:     jobs,
		tm:       tm,
		driver:   driver,
		notifier: notifier,
		clock:    clock,
		log:      &l,
	}
}

func (s *LaunchService) Start(ctx context.Context, req StartRequest) (*LaunchView, error) {
	defer logging.TraceDuration(s.log, "LaunchService.Start")()
	if req.Key == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}
	log := s.log.With().Str("job_key", req.Key).Logger()

	job, err := s.findByKey(ctx, req.Key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	resumed := job != nil

	if !resumed {
		if req.Config == nil {
			return nil, domain.ErrMissingConfig
		}
		if err := req.Config.Validate(); err != nil {
			return nil, err
		}
		job, resumed, err = s.create(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	// the stored snapshot is authoritative on resume
	if job.Config == nil {
		return nil, domain.ErrMissingConfig
	}
	if job.Config.AssetURL == "" || job.Config.ProductImageURL == "" {
		return nil, fmt.Errorf("%w: missing asset or product image", domain.ErrIncompleteConfig)
	}

	if resumed {
		metrics.IncLaunchJob("resumed")
		log.Info().Str("status", string(job.Status)).Msg("resuming launch job")
	} else {
		metrics.IncLaunchJob("started")
		log.Info().Str("job_id", job.ID).Msg("launch job created")
	}

	if _, err := s.driver.Ensure(job); err != nil {
		log.Error().Err(err).Msg("failed to hand launch to a drive loop")
	}
	return s.view(job, resumed), nil
}

// create re-checks the key and inserts the job in one transaction. Losing the
// unique-key race resumes the winner instead.
func (s *LaunchService) create(ctx context.Context, req StartRequest) (*model.LaunchJob, bool, error) {
	job := model.NewLaunchJob(req.Key, req.UserID, req.Config, s.clock.Now())
	var existing *model.LaunchJob

	insert := func(ctx context.Context, tx repository.Tx) error {
		rows, err := s.jobs.FindByKey(ctx, tx, req.Key)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			existing = rows[0]
			return nil
		}
		return s.jobs.Create(ctx, tx, job)
	}

	var err error
	if s.tm != nil {
		err = s.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, insert)
	} else {
		err = insert(ctx, repository.NoTX)
	}
	if errors.Is(err, domain.ErrAlreadyExists) {
		existing, err = s.findByKey(ctx, req.Key)
	}
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}
	return job, false, nil
}

func (s *LaunchService) Retry(ctx context.Context, key string) (*LaunchView, error) {
	defer logging.TraceDuration(s.log, "LaunchService.Retry")()
	if key == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}
	job, err := s.findByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if job.Status != model.LaunchStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrNotRetryable, job.Status)
	}

	updated, err := s.jobs.Update(ctx, repository.NoTX, job.ID, model.JobUpdate{
		Status:        model.StatusPtr(model.LaunchStatusStarted),
		ClearErrorLog: true,
	})
	if err != nil {
		return nil, fmt.Errorf("reset launch job: %w", err)
	}
	metrics.IncLaunchJob("retried")
	s.log.Info().Str("job_key", key).Msg("launch job reset for retry")

	notify(ctx, s.notifier, s.log, adapter.Notification{
		Level:          adapter.NotificationInfo,
		Title:          "Attempting to restart campaign creation process.",
		Description:    "Completed steps are kept and will be skipped.",
		JobKey:         key,
		CorrelationTag: updated.CorrelationTag,
	})

	if _, err := s.driver.Ensure(updated); err != nil {
		s.log.Error().Err(err).Str("job_key", key).Msg("failed to hand launch to a drive loop")
	}
	return s.view(updated, true), nil
}

func (s *LaunchService) Cancel(ctx context.Context, key string) error {
	if key == "" {
		return domain.ErrMissingIdempotencyKey
	}
	if s.driver.Cancel(key) {
		s.log.Info().Str("job_key", key).Msg("drive loop cancelled")
	}
	return nil
}

func (s *LaunchService) Get(ctx context.Context, key string) (*LaunchView, error) {
	if key == "" {
		return nil, domain.ErrMissingIdempotencyKey
	}
	job, err := s.findByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.view(job, true), nil
}

func (s *LaunchService) findByKey(ctx context.Context, key string) (*model.LaunchJob, error) {
	rows, err := s.jobs.FindByKey(ctx, repository.NoTX, key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

func (s *LaunchService) view(job *model.LaunchJob, resumed bool) *LaunchView {
	return &LaunchView{
		Job:        job,
		Projection: Project(s.steps, job, s.driver.Running(job.IdempotencyKey), s.clock.Now()),
		Resumed:    resumed,
		Driving:    s.driver.Active(job.IdempotencyKey),
	}
}
