package out

import (
	"context"

	"outreach_worker/core/domain"
)

// JobQueue accepts manual sync triggers for asynchronous processing.
type JobQueue interface {
	Enqueue(ctx context.Context, req domain.TriggerRequest) (string, error)
}
