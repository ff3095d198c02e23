package redis

import (
	"context"
	"testing"
	"time"

	"license-activation-service/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), &config.RedisConfig{URL: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestFixedWindowStore_AllowsUpToMax(t *testing.T) {
	c, _ := newTestClient(t)
	store := NewFixedWindowStore(c)
	ctx := context.Background()
	key := "rate_limit:validate:203.0.113.9"

	for i := 1; i <= 3; i++ {
		ok, w, err := store.Hit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
		assert.Equal(t, i, w.Count)
	}

	ok, w, err := store.Hit(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, w.Count, "rejected hit must not increment")
	assert.WithinDuration(t, time.Now().Add(time.Minute), w.ResetAt, 2*time.Second)
}

func TestFixedWindowStore_ResetsAfterWindow(t *testing.T) {
	c, mr := newTestClient(t)
	store := NewFixedWindowStore(c)
	ctx := context.Background()
	key := "rate_limit:download:k1"

	for i := 0; i < 2; i++ {
		_, _, err := store.Hit(ctx, key, 2, 5*time.Minute)
		require.NoError(t, err)
	}
	ok, _, err := store.Hit(ctx, key, 2, 5*time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(5*time.Minute + time.Second)

	ok, w, err := store.Hit(ctx, key, 2, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, w.Count)
}

func TestFixedWindowStore_KeysAreIndependent(t *testing.T) {
	c, _ := newTestClient(t)
	store := NewFixedWindowStore(c)
	ctx := context.Background()

	ok, _, err := store.Hit(ctx, "rate_limit:status:a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = store.Hit(ctx, "rate_limit:status:b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = store.Hit(ctx, "rate_limit:validate:a", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFixedWindowStore_RedisDown(t *testing.T) {
	c, mr := newTestClient(t)
	store := NewFixedWindowStore(c)
	mr.Close()

	_, _, err := store.Hit(context.Background(), "rate_limit:x:y", 1, time.Minute)
	assert.Error(t, err)
}

func TestRedisLocker(t *testing.T) {
	c, mr := newTestClient(t)
	l := NewLocker(c)
	ctx := context.Background()

	tok, err := l.TryLock(ctx, "lock:job", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	_, err = l.TryLock(ctx, "lock:job", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, l.Unlock(ctx, "lock:job", "someone-else"))
	assert.True(t, mr.Exists("lock:job"), "foreign token must not release the lock")

	require.NoError(t, l.Unlock(ctx, "lock:job", tok))
	assert.False(t, mr.Exists("lock:job"))

	_, err = l.TryLock(ctx, "lock:job", time.Minute)
	assert.NoError(t, err)
}
