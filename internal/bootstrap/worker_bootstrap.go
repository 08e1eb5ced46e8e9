package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"outreach_worker/adapter/in/worker"
	"outreach_worker/adapter/out/messaging"
	"outreach_worker/config"
	"outreach_worker/core/domain"
	"outreach_worker/pkg/logger"
)

const consumerGroup = "outreach-sync-workers"

// Worker runs the scheduler and, with Redis, the trigger stream consumer.
type Worker struct {
	deps      *Dependencies
	pool      *worker.Pool
	scheduler *worker.Scheduler
	consumer  *messaging.Consumer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	zlog   zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	return newWorker(deps), cleanup, nil
}

func newWorker(deps *Dependencies) *Worker {
	cfg := deps.Config
	zlog := logger.Component("worker")

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.Workers = cfg.SyncParallelism
	w.pool = worker.NewPool(deps.Runner, poolConfig, zlog)

	connections := cfg.Connections()
	if cfg.SchedulerEnabled && len(connections) > 0 {
		w.scheduler = worker.NewScheduler(deps.Runner, deps.Recovery, worker.SchedulerConfig{
			Connections: connections,
			Interval:    cfg.SyncInterval(),
			Parallelism: cfg.SyncParallelism,
		}, zlog)
		logger.Info("[Worker] scheduler configured for %d connections", len(connections))
	} else {
		logger.Warn("[Worker] scheduler disabled or SYNC_CONNECTIONS empty")
	}

	if deps.Redis != nil {
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:    consumerGroup,
			Consumer: cfg.WorkerID,
			Handler:  w.pool,
			Logger:   zlog,
		})
		logger.Info("[Worker] trigger stream consumer configured")
	} else {
		logger.Warn("[Worker] Redis not available, queued triggers are not consumed")
	}

	return w
}

// Start blocks until Stop is called.
func (w *Worker) Start() {
	if err := w.pool.Start(w.ctx); err != nil {
		w.zlog.Error().Err(err).Msg("trigger pool failed to start")
		return
	}

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	if w.scheduler != nil {
		w.scheduler.Start(w.ctx)
	}

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	w.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	w.pool.Stop(ctx)
}

func (w *Worker) Metrics() worker.PoolMetrics {
	return w.pool.Metrics()
}

// RunOnce runs every job for every configured connection a single time.
func RunOnce(ctx context.Context, cfg *config.Config) (*worker.TickReport, error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	connections := cfg.Connections()
	if len(connections) == 0 {
		return nil, errors.New("SYNC_CONNECTIONS is empty")
	}
	scheduler := worker.NewScheduler(deps.Runner, deps.Recovery, worker.SchedulerConfig{
		Connections: connections,
		Parallelism: cfg.SyncParallelism,
	}, logger.Component("once"))

	report := scheduler.RunOnce(ctx)
	summarize(report.Summaries)
	return report, nil
}

// All runs the API and the worker in one process on shared dependencies.
type All struct {
	App    *fiber.App
	Worker *Worker
}

func NewAll(cfg *config.Config) (*All, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &All{App: newApp(deps), Worker: newWorker(deps)}, cleanup, nil
}

// summarize logs a one-line outcome per run.
func summarize(summaries []*domain.RunSummary) {
	for _, s := range summaries {
		logger.Info("[Once] %s/%s %s: fetched=%d upserted=%d errors=%d skipped=%d",
			s.ConnectionID, s.Job, s.Status, s.Fetched, s.Upserted, s.Errors, s.Skipped)
	}
}
