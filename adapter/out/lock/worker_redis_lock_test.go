package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a live Redis; set TEST_REDIS_URL to run.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisLocker(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	a := NewRedisLocker(client)
	b := NewRedisLocker(client)

	ok, err := a.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Extend(ctx, key, time.Minute), ErrLockNotHeld)
	assert.ErrorIs(t, b.Unlock(ctx, key), ErrLockNotHeld)

	require.NoError(t, a.Extend(ctx, key, 2*time.Minute))
	ttl, err := client.PTTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	require.NoError(t, a.Unlock(ctx, key))

	ok, err = b.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx, key))
}

func TestRedisLocker_UnknownKey(t *testing.T) {
	l := NewRedisLocker(nil)
	assert.ErrorIs(t, l.Extend(context.Background(), "k", time.Second), ErrLockNotHeld)
	assert.ErrorIs(t, l.Unlock(context.Background(), "k"), ErrLockNotHeld)
}
