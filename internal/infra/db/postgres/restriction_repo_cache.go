package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
	"license-activation-service/internal/infra/metrics"
	red "license-activation-service/internal/infra/redis"
)

var _ repository.RestrictionRepository = (*restrictionRepoCacheDecorator)(nil)

// noRestrictions marks an unrestricted credential in the cache so the common
// case does not reach Postgres either.
const noRestrictions = "none"

type restrictionRepoCacheDecorator struct {
	inner repository.RestrictionRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewRestrictionRepoCacheDecorator(inner repository.RestrictionRepository, cache red.RedisClient, ttl time.Duration) repository.RestrictionRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &restrictionRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func restrictionKey(credentialID string) string {
	return fmt.Sprintf("restrictions:%s", credentialID)
}

func (d *restrictionRepoCacheDecorator) FindByCredential(ctx context.Context, tx repository.Tx, credentialID string) (*model.RestrictionSet, error) {
	key := restrictionKey(credentialID)
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		if val == noRestrictions {
			metrics.IncCacheRequest("restriction", "hit")
			return nil, domain.ErrNotFound
		}
		var rs model.RestrictionSet
		if json.Unmarshal([]byte(val), &rs) == nil {
			metrics.IncCacheRequest("restriction", "hit")
			return &rs, nil
		}
		metrics.IncCacheRequest("restriction", "corrupt")
	case errors.Is(err, red.Nil):
		metrics.IncCacheRequest("restriction", "miss")
	default:
		metrics.IncCacheRequest("restriction", "error")
	}

	rs, err := d.inner.FindByCredential(ctx, tx, credentialID)
	if errors.Is(err, domain.ErrNotFound) {
		_ = d.cache.Set(ctx, key, noRestrictions, d.ttl)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if b, mErr := json.Marshal(rs); mErr == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return rs, nil
}

// Writes invalidate on both sides of the inner write: the second delete drops
// an entry a concurrent reader re-cached from the old row. Inside a caller's
// transaction the commit comes later, so the ttl bounds what remains stale.
func (d *restrictionRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error {
	key := restrictionKey(rs.CredentialID)
	_ = d.cache.Del(ctx, key)
	if err := d.inner.Save(ctx, tx, rs); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, key)
	return nil
}

func (d *restrictionRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, credentialID string) error {
	key := restrictionKey(credentialID)
	_ = d.cache.Del(ctx, key)
	if err := d.inner.Delete(ctx, tx, credentialID); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, key)
	return nil
}
