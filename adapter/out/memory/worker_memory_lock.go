package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockNotHeld is returned when extending a lock that expired or was released.
var ErrLockNotHeld = errors.New("lock not held")

// Locker is an in-process RunLocker with expiring keys.
type Locker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]time.Time), clock: time.Now}
}

func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *Locker) Extend(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	exp, ok := l.held[key]
	if !ok || !now.Before(exp) {
		return ErrLockNotHeld
	}
	l.held[key] = now.Add(ttl)
	return nil
}

func (l *Locker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
