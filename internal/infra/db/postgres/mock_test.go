//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
	red "license-activation-service/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerRestrictionRepo mocks the database repository that the decorator wraps.
type mockInnerRestrictionRepo struct {
	FindByCredentialFunc func(ctx context.Context, tx repository.Tx, credentialID string) (*model.RestrictionSet, error)
	SaveFunc             func(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error
	DeleteFunc           func(ctx context.Context, tx repository.Tx, credentialID string) error
}

func (m *mockInnerRestrictionRepo) FindByCredential(ctx context.Context, tx repository.Tx, credentialID string) (*model.RestrictionSet, error) {
	return m.FindByCredentialFunc(ctx, tx, credentialID)
}
func (m *mockInnerRestrictionRepo) Save(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error {
	return m.SaveFunc(ctx, tx, rs)
}
func (m *mockInnerRestrictionRepo) Delete(ctx context.Context, tx repository.Tx, credentialID string) error {
	return m.DeleteFunc(ctx, tx, credentialID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc  func(ctx context.Context, key string) (string, error)
	SetFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc  func(ctx context.Context, keys ...string) error
	PingFunc func(ctx context.Context) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", redis.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (m *mockRedisClient) Close() error { return nil }
