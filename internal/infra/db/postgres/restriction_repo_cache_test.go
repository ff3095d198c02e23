//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
)

func TestRestrictionRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	rs := &model.RestrictionSet{CredentialID: "cred-1", AllowedIPs: []string{"10.0.0.0/24"}}
	rsJSON, _ := json.Marshal(rs)

	t.Run("FindByCredential should return from cache on hit", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key != "restrictions:cred-1" {
					t.Errorf("unexpected cache key %q", key)
				}
				return string(rsJSON), nil
			},
		}
		innerCalled := false
		inner := &mockInnerRestrictionRepo{
			FindByCredentialFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.RestrictionSet, error) {
				innerCalled = true
				return nil, nil
			},
		}

		got, err := NewRestrictionRepoCacheDecorator(inner, mockRedis, time.Minute).FindByCredential(ctx, nil, "cred-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if got == nil || len(got.AllowedIPs) != 1 {
			t.Errorf("did not return the cached restriction set: %+v", got)
		}
	})

	t.Run("miss should load from inner and populate cache", func(t *testing.T) {
		var setKey string
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
				setKey = key
				if ttl != 30*time.Second {
					t.Errorf("expected ttl 30s, got %v", ttl)
				}
				return nil
			},
		}
		inner := &mockInnerRestrictionRepo{
			FindByCredentialFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.RestrictionSet, error) {
				return rs, nil
			},
		}

		got, err := NewRestrictionRepoCacheDecorator(inner, mockRedis, 30*time.Second).FindByCredential(ctx, nil, "cred-1")
		if err != nil || got != rs {
			t.Fatalf("expected inner result, got %v, %v", got, err)
		}
		if setKey != "restrictions:cred-1" {
			t.Errorf("cache was not populated, key=%q", setKey)
		}
	})

	t.Run("unrestricted credential is cached as a marker", func(t *testing.T) {
		var stored interface{}
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
				stored = value
				return nil
			},
		}
		inner := &mockInnerRestrictionRepo{
			FindByCredentialFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.RestrictionSet, error) {
				return nil, domain.ErrNotFound
			},
		}
		dec := NewRestrictionRepoCacheDecorator(inner, mockRedis, time.Minute)

		if _, err := dec.FindByCredential(ctx, nil, "cred-2"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if stored != noRestrictions {
			t.Fatalf("expected marker to be cached, got %v", stored)
		}

		mockRedis.GetFunc = func(ctx context.Context, key string) (string, error) { return noRestrictions, nil }
		inner.FindByCredentialFunc = func(ctx context.Context, tx repository.Tx, id string) (*model.RestrictionSet, error) {
			t.Error("inner should not be called for a cached marker")
			return nil, nil
		}
		if _, err := dec.FindByCredential(ctx, nil, "cred-2"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from marker, got %v", err)
		}
	})

	t.Run("redis failure falls through to inner", func(t *testing.T) {
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", errors.New("connection refused")
			},
		}
		inner := &mockInnerRestrictionRepo{
			FindByCredentialFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.RestrictionSet, error) {
				return rs, nil
			},
		}
		got, err := NewRestrictionRepoCacheDecorator(inner, mockRedis, time.Minute).FindByCredential(ctx, nil, "cred-1")
		if err != nil || got != rs {
			t.Fatalf("expected inner result, got %v, %v", got, err)
		}
	})

	t.Run("Save and Delete invalidate around the write", func(t *testing.T) {
		var deleted []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deleted = append(deleted, keys...)
				return nil
			},
		}
		inner := &mockInnerRestrictionRepo{
			SaveFunc:   func(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error { return nil },
			DeleteFunc: func(ctx context.Context, tx repository.Tx, id string) error { return nil },
		}
		dec := NewRestrictionRepoCacheDecorator(inner, mockRedis, time.Minute)

		if err := dec.Save(ctx, nil, rs); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := dec.Delete(ctx, nil, "cred-1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if len(deleted) != 4 {
			t.Fatalf("expected two invalidations per write, got %v", deleted)
		}
		for _, k := range deleted {
			if k != "restrictions:cred-1" {
				t.Errorf("unexpected key %q", k)
			}
		}
	})

	t.Run("entry re-cached during the write is dropped afterwards", func(t *testing.T) {
		cache := map[string]string{}
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				v, ok := cache[key]
				if !ok {
					return "", redis.Nil
				}
				return v, nil
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
				switch v := value.(type) {
				case string:
					cache[key] = v
				case []byte:
					cache[key] = string(v)
				}
				return nil
			},
			DelFunc: func(ctx context.Context, keys ...string) error {
				for _, k := range keys {
					delete(cache, k)
				}
				return nil
			},
		}
		stored := &model.RestrictionSet{CredentialID: "cred-1", AllowedIPs: []string{"10.0.0.0/24"}}
		inner := &mockInnerRestrictionRepo{
			FindByCredentialFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.RestrictionSet, error) {
				cp := *stored
				return &cp, nil
			},
		}
		dec := NewRestrictionRepoCacheDecorator(inner, mockRedis, time.Minute)
		inner.SaveFunc = func(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error {
			// A reader slips in before the new row is visible.
			if _, err := dec.FindByCredential(ctx, nil, rs.CredentialID); err != nil {
				t.Fatalf("concurrent read: %v", err)
			}
			stored = rs
			return nil
		}

		updated := &model.RestrictionSet{CredentialID: "cred-1", AllowedDomains: []string{"example.com"}}
		if err := dec.Save(ctx, nil, updated); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := dec.FindByCredential(ctx, nil, "cred-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got.AllowedDomains) != 1 || len(got.AllowedIPs) != 0 {
			t.Fatalf("stale restriction set served after Save: %+v", got)
		}
	})

	t.Run("failed write leaves the cache alone after the first invalidation", func(t *testing.T) {
		dels := 0
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error { dels++; return nil },
		}
		inner := &mockInnerRestrictionRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error {
				return errors.New("write failed")
			},
		}
		if err := NewRestrictionRepoCacheDecorator(inner, mockRedis, time.Minute).Save(ctx, nil, rs); err == nil {
			t.Fatal("expected inner error")
		}
		if dels != 1 {
			t.Errorf("expected one invalidation, got %d", dels)
		}
	})
}
