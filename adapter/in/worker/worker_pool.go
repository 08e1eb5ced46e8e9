package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"outreach_worker/core/domain"
	"outreach_worker/pkg/apperr"
)

// =============================================================================
// Trigger pool - runs queued triggers on a bounded go-pkgz/pool worker group
// =============================================================================

// TriggerRunner runs one trigger.
type TriggerRunner interface {
	Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error)
}

// ErrPoolNotStarted is returned by HandleTrigger before Start or after Stop.
var ErrPoolNotStarted = errors.New("trigger pool not started")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers        int
	JobTimeout     time.Duration // per trigger run
	WorkerChanSize int
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        4,
		JobTimeout:     30 * time.Minute,
		WorkerChanSize: 16,
	}
}

// PoolMetrics holds pool counters.
type PoolMetrics struct {
	Submitted int64
	Succeeded int64
	Failed    int64
	Refused   int64 // another run of the same connection and job was active
}

// Pool runs triggers handed over by the stream consumer. Handing a trigger to
// the pool acknowledges it; the outcome is recorded in the job's progress.
type Pool struct {
	runner TriggerRunner
	config *PoolConfig
	log    zerolog.Logger

	group *pool.WorkerGroup[domain.TriggerRequest]

	metrics PoolMetrics

	started bool
	mu      sync.Mutex
}

// triggerWorker implements pool.Worker for triggers.
type triggerWorker struct {
	pool *Pool
}

func (w *triggerWorker) Do(ctx context.Context, req domain.TriggerRequest) error {
	return w.pool.process(ctx, req)
}

// NewPool creates a trigger pool.
func NewPool(runner TriggerRunner, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Pool{
		runner: runner,
		config: config,
		log:    log.With().Str("component", "trigger_pool").Logger(),
	}
}

// Start starts the worker group.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.group = pool.New[domain.TriggerRequest](p.config.Workers, &triggerWorker{pool: p}).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()
	if err := p.group.Go(ctx); err != nil {
		return err
	}
	p.started = true

	p.log.Info().Int("workers", p.config.Workers).Msg("trigger pool started")
	return nil
}

// Stop waits for submitted triggers to finish.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	group := p.group
	p.mu.Unlock()

	if err := group.Close(ctx); err != nil {
		p.log.Warn().Err(err).Msg("error closing trigger pool")
	}

	m := p.Metrics()
	p.log.Info().
		Int64("succeeded", m.Succeeded).
		Int64("failed", m.Failed).
		Int64("refused", m.Refused).
		Msg("trigger pool stopped")
}

// HandleTrigger hands req to the pool.
func (p *Pool) HandleTrigger(_ context.Context, req domain.TriggerRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrPoolNotStarted
	}
	atomic.AddInt64(&p.metrics.Submitted, 1)
	p.group.Submit(req)
	return nil
}

func (p *Pool) process(ctx context.Context, req domain.TriggerRequest) error {
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	log := p.log.With().Str("connection_id", req.ConnectionID).Str("job", string(req.Job)).Logger()

	summary, err := p.runner.Run(ctx, req)
	switch {
	case apperr.HasCode(err, apperr.CodeSyncInProgress):
		atomic.AddInt64(&p.metrics.Refused, 1)
		log.Info().Msg("trigger skipped, run already in progress")
		return nil
	case err != nil:
		atomic.AddInt64(&p.metrics.Failed, 1)
		log.Error().Err(err).Msg("triggered run failed")
		return err
	}

	atomic.AddInt64(&p.metrics.Succeeded, 1)
	log.Info().
		Str("status", string(summary.Status)).
		Int("upserted", summary.Upserted).
		Int("errors", summary.Errors).
		Msg("triggered run finished")
	return nil
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Submitted: atomic.LoadInt64(&p.metrics.Submitted),
		Succeeded: atomic.LoadInt64(&p.metrics.Succeeded),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Refused:   atomic.LoadInt64(&p.metrics.Refused),
	}
}
