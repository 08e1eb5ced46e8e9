// Package lock provides a Redis-backed out.RunLocker.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"outreach_worker/core/port/out"
)

// ErrLockNotHeld is returned when extending or releasing a lock this
// process does not own.
var ErrLockNotHeld = errors.New("lock not held")

const keyPrefix = "lock:"

// Only the owner token may extend or delete the key.
var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker takes SET NX PX locks. The random token of every lock held by
// this process is kept locally so another worker's lock is never released.
type RedisLocker struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

var _ out.RunLocker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, tokens: make(map[string]string)}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) error {
	token, ok := l.token(key)
	if !ok {
		return ErrLockNotHeld
	}
	n, err := extendScript.Run(ctx, l.client, []string{keyPrefix + key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	token, ok := l.token(key)
	if !ok {
		return ErrLockNotHeld
	}
	l.mu.Lock()
	delete(l.tokens, key)
	l.mu.Unlock()

	n, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *RedisLocker) token(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.tokens[key]
	return token, ok
}
