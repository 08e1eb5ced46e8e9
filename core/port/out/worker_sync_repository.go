package out

import (
	"context"
	"time"

	"outreach_worker/core/domain"
)

// ProgressRepository stores SyncProgress per connection and job.
type ProgressRepository interface {
	// Get returns nil, nil when no progress exists yet.
	Get(ctx context.Context, connectionID string, job domain.JobKind) (*domain.SyncProgress, error)
	Save(ctx context.Context, progress *domain.SyncProgress) error
	ListByStatus(ctx context.Context, status domain.SyncStatus) ([]*domain.SyncProgress, error)
}

// RunLocker guards a connection against concurrent runs.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, key string, ttl time.Duration) error
	Unlock(ctx context.Context, key string) error
}
