package redis

import (
	"context"
	"fmt"
	"time"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.RateWindowStore = (*FixedWindowStore)(nil)

// hitScript checks the counter before incrementing so a rejected request does
// not extend or inflate the window. Returns {allowed, count, pttl}.
var hitScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])
if current >= max then
	if ttl < 0 then
		redis.call("PEXPIRE", KEYS[1], window)
		ttl = window
	end
	return {0, current, ttl}
end
current = redis.call("INCR", KEYS[1])
if current == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], window)
	ttl = window
end
return {1, current, ttl}
`)

// FixedWindowStore keeps rate windows in Redis. The first hit creates the
// window and its TTL; the key vanishing is the window reset.
type FixedWindowStore struct {
	client RedisClient
	now    func() time.Time
}

func NewFixedWindowStore(client RedisClient) *FixedWindowStore {
	return &FixedWindowStore{client: client, now: time.Now}
}

func (s *FixedWindowStore) Hit(ctx context.Context, key string, max int, window time.Duration) (bool, model.RateWindow, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	raw, err := s.client.RunScript(ctx, hitScript, []string{key}, max, windowMs)
	if err != nil {
		return false, model.RateWindow{}, fmt.Errorf("rate window hit: %w", err)
	}
	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return false, model.RateWindow{}, fmt.Errorf("rate window hit: unexpected reply %T", raw)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	ttl, _ := vals[2].(int64)
	return allowed == 1, model.RateWindow{
		Count:   int(count),
		ResetAt: s.now().Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}
