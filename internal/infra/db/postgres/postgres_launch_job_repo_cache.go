package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/repository"
	"campaign-launcher/internal/infra/metrics"
	red "campaign-launcher/internal/infra/redis"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

var _ repository.LaunchJobRepository = (*launchJobRepoCacheDecorator)(nil)

// launchJobRepoCacheDecorator caches FindByKey hits for terminal jobs only.
// Drive loops write in-flight progress through the undecorated store, so an
// in-flight row is always read from the database. A terminal row leaves its
// state only through a write on this decorator, which drops the entry.
type launchJobRepoCacheDecorator struct {
	inner repository.LaunchJobRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewLaunchJobRepoCacheDecorator(inner repository.LaunchJobRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.LaunchJobRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := logger.With().Str("component", "LaunchJobCache").Logger()
	return &launchJobRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func launchKeyCacheKey(key string) string { return "launch_job:key:" + key }

func (d *launchJobRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, job *model.LaunchJob) error {
	_ = d.cache.Del(ctx, launchKeyCacheKey(job.IdempotencyKey))
	return d.inner.Create(ctx, tx, job)
}

func (d *launchJobRepoCacheDecorator) Update(ctx context.Context, tx repository.Tx, id string, upd model.JobUpdate) (*model.LaunchJob, error) {
	job, err := d.inner.Update(ctx, tx, id, upd)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Del(ctx, launchKeyCacheKey(job.IdempotencyKey)); err != nil {
		d.log.Warn().Err(err).Str("job_key", job.IdempotencyKey).Msg("failed to invalidate cached launch job")
	}
	return job, nil
}

func (d *launchJobRepoCacheDecorator) FindByKey(ctx context.Context, tx repository.Tx, key string) ([]*model.LaunchJob, error) {
	// reads inside a transaction must see the transaction's own writes
	if tx != nil {
		return d.inner.FindByKey(ctx, tx, key)
	}
	ck := launchKeyCacheKey(key)
	val, err := d.cache.Get(ctx, ck)
	if err == nil {
		var job model.LaunchJob
		if json.Unmarshal([]byte(val), &job) == nil && job.Status.IsTerminal() {
			metrics.IncCacheRequest("launch_job", "hit")
			return []*model.LaunchJob{&job}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Msg("launch job cache read failed")
	}

	metrics.IncCacheRequest("launch_job", "miss")
	jobs, err := d.inner.FindByKey(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 && jobs[0].Status.IsTerminal() {
		if b, err := json.Marshal(jobs[0]); err == nil {
			_ = d.cache.Set(ctx, ck, b, d.ttl)
		}
	}
	return jobs, nil
}

func (d *launchJobRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.LaunchJob, error) {
	return d.inner.FindByID(ctx, tx, id)
}

func (d *launchJobRepoCacheDecorator) ListInFlight(ctx context.Context, tx repository.Tx, limit int) ([]*model.LaunchJob, error) {
	return d.inner.ListInFlight(ctx, tx, limit)
}
