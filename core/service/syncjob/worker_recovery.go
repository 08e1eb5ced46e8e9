package syncjob

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
	"outreach_worker/pkg/logger"
	"outreach_worker/pkg/metrics"
)

// StaleHeartbeatError is the last error recorded on a recovered run.
const StaleHeartbeatError = "stale heartbeat"

// RecoveryService resets crashed runs so they can be retried. A run is crashed
// when it is still marked running but its heartbeat is older than the timeout.
type RecoveryService struct {
	progress out.ProgressRepository
	timeout  time.Duration
	metrics  *metrics.SyncMetrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewRecoveryService(progress out.ProgressRepository, heartbeatTimeout time.Duration) *RecoveryService {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	return &RecoveryService{
		progress: progress,
		timeout:  heartbeatTimeout,
		metrics:  metrics.Sync(),
		log:      logger.Component("sync-recovery"),
		now:      time.Now,
	}
}

// RecoverStale moves every stale running row to error and returns the rows it
// reset. Rows with a fresh heartbeat are never touched.
func (s *RecoveryService) RecoverStale(ctx context.Context) ([]*domain.SyncProgress, error) {
	running, err := s.progress.ListByStatus(ctx, domain.SyncStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list running progress: %w", err)
	}

	now := s.now()
	var recovered []*domain.SyncProgress
	for _, p := range running {
		if !p.IsStale(now, s.timeout) {
			continue
		}
		p.Status = domain.SyncStatusError
		p.LastError = StaleHeartbeatError
		p.UpdatedAt = now
		if err := s.progress.Save(ctx, p); err != nil {
			return recovered, fmt.Errorf("reset %s/%s: %w", p.ConnectionID, p.Job, err)
		}
		s.metrics.RecoveredRunTotal.Inc()
		s.log.Warn().
			Str("connection_id", p.ConnectionID).
			Str("job", string(p.Job)).
			Str("run_id", p.RunID).
			Int("cursor", p.Cursor).
			Msg("reset stale run")
		recovered = append(recovered, p)
	}
	return recovered, nil
}
