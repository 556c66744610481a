package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Submitter runs tasks on a bounded set of workers. *worker.Pool implements it.
type Submitter interface {
	Submit(task func(ctx context.Context) error) error
}

// KeyLocker is a best-effort cross-instance lock. TryLock returns domain.ErrLocked
// when another holder owns key.
type KeyLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
	Unlock(ctx context.Context, key, token string) error
}

type driveLoop struct {
	cancel  context.CancelFunc
	running string
	rearm   bool
}

// Runner owns at most one drive loop per idempotency key in this process.
type Runner struct {
	orch    *Orchestrator
	jobs    repository.LaunchJobRepository
	pool    Submitter
	locker  KeyLocker
	lockTTL time.Duration
	log     *zerolog.Logger

	mu     sync.Mutex
	loops  map[string]*driveLoop
	closed bool
}

// NewRunner builds a runner. locker may be nil, in which case only in-process
// exclusion applies.
func NewRunner(
	orch *Orchestrator,
	jobs repository.LaunchJobRepository,
	pool Submitter,
	locker KeyLocker,
	lockTTL time.Duration,
	logger *zerolog.Logger,
) *Runner {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	l := logger.With().Str("component", "Runner").Logger()
	return &Runner{
		orch:    orch,
		jobs:    jobs,
		pool:    pool,
		locker:  locker,
		lockTTL: lockTTL,
		log:     &l,
		loops:   make(map[string]*driveLoop),
	}
}

// Ensure starts a drive loop for job unless it is terminal or already driven
// here. A running loop is asked to re-read the job once it finishes its pass.
func (r *Runner) Ensure(job *model.LaunchJob) (bool, error) {
	if job == nil || job.Status.IsTerminal() {
		return false, nil
	}
	return r.start(job.IdempotencyKey)
}

func (r *Runner) start(key string) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, nil
	}
	if l, ok := r.loops[key]; ok {
		l.rearm = true
		r.mu.Unlock()
		return false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &driveLoop{cancel: cancel}
	r.loops[key] = l
	r.mu.Unlock()

	// the loop holds its worker through delays and cool-downs; a loop still
	// queued behind busy workers already counts as active
	err := r.pool.Submit(func(poolCtx context.Context) error {
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()
		defer cancel()
		for {
			r.drive(ctx, key)

			r.mu.Lock()
			rearm := l.rearm
			l.rearm = false
			if rearm && ctx.Err() == nil {
				r.mu.Unlock()
				continue
			}
			if r.loops[key] == l {
				delete(r.loops, key)
			}
			r.mu.Unlock()

			// asked to resume after a cancel: hand over to a fresh loop
			if rearm && poolCtx.Err() == nil {
				if _, err := r.start(key); err != nil {
					r.log.Warn().Err(err).Str("job_key", key).Msg("failed to restart drive loop")
				}
			}
			return nil
		}
	})
	if err != nil {
		r.mu.Lock()
		if r.loops[key] == l {
			delete(r.loops, key)
		}
		r.mu.Unlock()
		cancel()
		return false, err
	}
	return true, nil
}

// Cancel stops the local drive loop for key. Nothing is rolled back remotely.
func (r *Runner) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loops[key]
	if !ok {
		return false
	}
	l.rearm = false
	l.cancel()
	return true
}

// Running returns the step currently executing for key, or "".
func (r *Runner) Running(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loops[key]; ok {
		return l.running
	}
	return ""
}

func (r *Runner) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loops[key]
	return ok
}

// Shutdown cancels every loop owned by this runner and refuses new ones.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, l := range r.loops {
		l.rearm = false
		l.cancel()
	}
}

func (r *Runner) setRunning(key, step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loops[key]; ok {
		l.running = step
	}
}

func (r *Runner) drive(ctx context.Context, key string) {
	log := r.log.With().Str("job_key", key).Logger()

	if r.locker != nil {
		lockKey := "launch:lock:" + key
		token, err := r.locker.TryLock(ctx, lockKey, r.lockTTL)
		switch {
		case errors.Is(err, domain.ErrLocked):
			metrics.IncLockContention()
			log.Info().Msg("launch is driven by another instance, skipping")
			return
		case err != nil:
			log.Warn().Err(err).Msg("launch lock unavailable, driving without it")
		default:
			stopRefresh := r.keepLock(ctx, &log, lockKey, token)
			defer func() {
				stopRefresh()
				uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := r.locker.Unlock(uctx, lockKey, token); err != nil {
					log.Warn().Err(err).Msg("failed to release launch lock")
				}
			}()
		}
	}

	rows, err := r.jobs.FindByKey(ctx, repository.NoTX, key)
	if err != nil || len(rows) == 0 {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("failed to load launch job for driving")
		}
		return
	}

	job, err := r.orch.Drive(ctx, rows[0], func(step string) { r.setRunning(key, step) })
	switch {
	case err == nil:
		log.Info().Str("status", string(job.Status)).Msg("drive loop finished")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Info().Str("status", string(job.Status)).Msg("drive loop cancelled")
	default:
		log.Error().Err(err).Str("status", string(job.Status)).Msg("drive loop aborted")
	}
}

// keepLock extends the lock until the returned func is called.
func (r *Runner) keepLock(ctx context.Context, log *zerolog.Logger, key, token string) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(r.lockTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := r.locker.Extend(ctx, key, token, r.lockTTL); err != nil {
					log.Warn().Err(err).Msg("failed to extend launch lock")
				}
			}
		}
	}()
	return func() { close(done) }
}
