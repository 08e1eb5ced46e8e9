package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"outreach_worker/core/domain"
	"outreach_worker/pkg/apperr"
)

// =============================================================================
// Scheduler - periodic sync of every configured connection
// =============================================================================

// ConnectionRunner runs every job of one connection.
type ConnectionRunner interface {
	RunAll(ctx context.Context, connectionID string) ([]*domain.RunSummary, error)
}

// StaleRecoverer marks abandoned runs as failed.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context) ([]*domain.SyncProgress, error)
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Connections []string
	Interval    time.Duration
	Parallelism int
}

// TickReport describes one scheduler pass.
type TickReport struct {
	Recovered int
	Summaries []*domain.RunSummary
	Skipped   int // connections with a run already in progress
	Failed    map[string]error
}

// Scheduler recovers stale runs and then syncs each connection, at most
// Parallelism connections at a time.
type Scheduler struct {
	runner   ConnectionRunner
	recovery StaleRecoverer
	config   SchedulerConfig
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(runner ConnectionRunner, recovery StaleRecoverer, config SchedulerConfig, log zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	return &Scheduler{
		runner:   runner,
		recovery: recovery,
		config:   config,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start runs a pass immediately and then on every interval.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parent)

	s.wg.Add(1)
	go s.loop(s.ctx)

	s.log.Info().
		Dur("interval", s.config.Interval).
		Int("connections", len(s.config.Connections)).
		Int("parallelism", s.config.Parallelism).
		Msg("scheduler started")
}

// Stop cancels the current pass and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	report := s.RunOnce(ctx)
	ev := s.log.Info()
	if len(report.Failed) > 0 {
		ev = s.log.Warn()
	}
	ev.Int("recovered", report.Recovered).
		Int("runs", len(report.Summaries)).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Msg("scheduled pass finished")
}

// RunOnce performs a single pass. Recovery runs first so connections whose
// previous worker died are not reported as busy.
func (s *Scheduler) RunOnce(ctx context.Context) *TickReport {
	report := &TickReport{Failed: make(map[string]error)}

	if s.recovery != nil {
		recovered, err := s.recovery.RecoverStale(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("stale run recovery failed")
		}
		report.Recovered = len(recovered)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallelism)

	for _, connectionID := range s.config.Connections {
		connectionID := connectionID
		g.Go(func() error {
			summaries, err := s.runner.RunAll(gctx, connectionID)

			mu.Lock()
			defer mu.Unlock()
			report.Summaries = append(report.Summaries, summaries...)
			switch {
			case err == nil:
			case apperr.HasCode(err, apperr.CodeSyncInProgress):
				report.Skipped++
			case errors.Is(err, context.Canceled):
			default:
				report.Failed[connectionID] = err
				s.log.Error().Err(err).Str("connection_id", connectionID).Msg("connection sync failed")
			}
			// one connection failing never stops the others
			return nil
		})
	}
	_ = g.Wait()

	return report
}
