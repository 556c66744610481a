//go:build !integration

package postgres

import (
	"context"
	"time"

	"campaign-launcher/internal/domain/model"
	"campaign-launcher/internal/domain/ports/repository"
	red "campaign-launcher/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerLaunchJobRepo mocks the database repository that the decorator wraps.
type mockInnerLaunchJobRepo struct {
	CreateFunc       func(ctx context.Context, tx repository.Tx, job *model.LaunchJob) error
	UpdateFunc       func(ctx context.Context, tx repository.Tx, id string, upd model.JobUpdate) (*model.LaunchJob, error)
	FindByKeyFunc    func(ctx context.Context, tx repository.Tx, key string) ([]*model.LaunchJob, error)
	FindByIDFunc     func(ctx context.Context, tx repository.Tx, id string) (*model.LaunchJob, error)
	ListInFlightFunc func(ctx context.Context, tx repository.Tx, limit int) ([]*model.LaunchJob, error)
}

func (m *mockInnerLaunchJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.LaunchJob) error {
	return m.CreateFunc(ctx, tx, job)
}
func (m *mockInnerLaunchJobRepo) Update(ctx context.Context, tx repository.Tx, id string, upd model.JobUpdate) (*model.LaunchJob, error) {
	return m.UpdateFunc(ctx, tx, id, upd)
}
func (m *mockInnerLaunchJobRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) ([]*model.LaunchJob, error) {
	return m.FindByKeyFunc(ctx, tx, key)
}
func (m *mockInnerLaunchJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.LaunchJob, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerLaunchJobRepo) ListInFlight(ctx context.Context, tx repository.Tx, limit int) ([]*model.LaunchJob, error) {
	return m.ListInFlightFunc(ctx, tx, limit)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
