package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"campaign-launcher/internal/domain"
	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/repository"

	"github.com/oklog/ulid/v2"
)

// Compile-time check
var _ repository.LaunchJobRepository = (*LaunchJobRepo)(nil)

// LaunchJobRepo keeps launch jobs in process memory. It backs the demo binary and
// tests; nothing survives a restart.
type LaunchJobRepo struct {
	mu    sync.RWMutex
	byID  map[string]*model.LaunchJob
	byKey map[string]string
	trail map[string][]model.LaunchStatus
	now   func() time.Time

	// CreateErr and UpdateErr let tests simulate store failures.
	CreateErr error
	UpdateErr error
}

func NewLaunchJobRepo() *LaunchJobRepo {
	return &LaunchJobRepo{
		byID:  make(map[string]*model.LaunchJob),
		byKey: make(map[string]string),
		trail: make(map[string][]model.LaunchStatus),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock makes UpdatedAt follow the given time source.
func (r *LaunchJobRepo) WithClock(now func() time.Time) *LaunchJobRepo {
	r.now = now
	return r
}

func (r *LaunchJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.LaunchJob) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if job.IdempotencyKey == "" {
		return domain.ErrMissingIdempotencyKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[job.IdempotencyKey]; ok {
		return domain.ErrAlreadyExists
	}
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	r.byID[job.ID] = job.Clone()
	r.byKey[job.IdempotencyKey] = job.ID
	r.trail[job.ID] = []model.LaunchStatus{job.Status}
	return nil
}

func (r *LaunchJobRepo) Update(ctx context.Context, tx repository.Tx, id string, upd model.JobUpdate) (*model.LaunchJob, error) {
	if r.UpdateErr != nil {
		return nil, r.UpdateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job.Apply(upd, r.now())
	if upd.Status != nil {
		r.trail[id] = append(r.trail[id], *upd.Status)
	}
	return job.Clone(), nil
}

func (r *LaunchJobRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) ([]*model.LaunchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, nil
	}
	return []*model.LaunchJob{r.byID[id].Clone()}, nil
}

func (r *LaunchJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.LaunchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (r *LaunchJobRepo) ListInFlight(ctx context.Context, tx repository.Tx, limit int) ([]*model.LaunchJob, error) {
	r.mu.RLock()
	out := make([]*model.LaunchJob, 0, len(r.byID))
	for _, job := range r.byID {
		if !job.Status.IsTerminal() {
			out = append(out, job.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StatusTrail returns every status written for the job, in order.
func (r *LaunchJobRepo) StatusTrail(id string) []model.LaunchStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.LaunchStatus(nil), r.trail[id]...)
}

// Len is the number of stored jobs.
func (r *LaunchJobRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
