// Package syncjob runs paginated sync pipelines with resumable progress,
// heartbeats and per-run caps.
package syncjob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
	"outreach_worker/pkg/apperr"
	"outreach_worker/pkg/logger"
	"outreach_worker/pkg/metrics"
)

const (
	DefaultPageSize         = 100
	MaxPageSize             = 500
	DefaultHeartbeatTimeout = 10 * time.Minute
	DefaultWriteTimeout     = 2 * time.Minute

	MaxErrorSamples = 5
	errorSampleLen  = 200
)

// Config bounds a single run. Zero caps mean unlimited.
type Config struct {
	PageSize         int
	MaxPages         int
	MaxRecords       int
	HeartbeatTimeout time.Duration
	// WriteTimeout bounds the store writes of a page once cancellation no
	// longer reaches them.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// =============================================================================
// Pipeline contract
// =============================================================================

// Page is one fetched page of pipeline items.
type Page[T any] struct {
	Items   []T
	HasMore bool
	Total   *int
}

// PageResult reports what processing did with one page. Advance is how far the
// cursor moves; every item is counted as upserted, failed or skipped.
type PageResult struct {
	Upserted     int
	Failed       int
	Skipped      int
	Advance      int
	ErrorSamples []string
}

func (r *PageResult) addError(err error) {
	if len(r.ErrorSamples) < MaxErrorSamples {
		r.ErrorSamples = append(r.ErrorSamples, truncate(err.Error(), errorSampleLen))
	}
}

// Pipeline is one job's fetch and process steps. Resumable pipelines continue
// from the stored cursor; the others restart at zero every run.
//
// Cancellation is only observed between pages, so Process does its store
// writes on Orchestrator.WriteContext and a page is stored in full or not
// advanced past.
type Pipeline[T any] interface {
	Kind() domain.JobKind
	Resumable() bool
	Fetch(ctx context.Context, connectionID string, offset, limit int) (Page[T], error)
	Process(ctx context.Context, connectionID string, items []T) PageResult
}

// =============================================================================
// Orchestrator
// =============================================================================

type Orchestrator struct {
	cfg      Config
	progress out.ProgressRepository
	locker   out.RunLocker
	metrics  *metrics.SyncMetrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewOrchestrator(cfg Config, progress out.ProgressRepository, locker out.RunLocker) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		progress: progress,
		locker:   locker,
		metrics:  metrics.Sync(),
		log:      logger.Component("sync-orchestrator"),
		now:      time.Now,
	}
}

// WriteContext detaches ctx from cancellation and bounds it by WriteTimeout.
func (o *Orchestrator) WriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.WriteTimeout)
}

// Config returns the effective run bounds.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Progress returns the stored progress of every job of a connection. Jobs that
// never ran are reported idle.
func (o *Orchestrator) Progress(ctx context.Context, connectionID string) ([]*domain.SyncProgress, error) {
	list := make([]*domain.SyncProgress, 0, len(domain.JobKinds))
	for _, job := range domain.JobKinds {
		p, err := o.progress.Get(ctx, connectionID, job)
		if err != nil {
			return nil, apperr.DatabaseError("load progress", err)
		}
		if p == nil {
			p = domain.NewSyncProgress(connectionID, job)
		}
		list = append(list, p)
	}
	return list, nil
}

func lockKey(connectionID string, job domain.JobKind) string {
	return fmt.Sprintf("sync:%s:%s", connectionID, job)
}

// run holds the mutable state of one invocation.
type run struct {
	o        *Orchestrator
	progress *domain.SyncProgress
	summary  *domain.RunSummary
	lockKey  string
	log      zerolog.Logger
}

// Run executes p for one connection until the source is exhausted, a cap is
// reached, the context is cancelled or a fetch fails.
func Run[T any](ctx context.Context, o *Orchestrator, p Pipeline[T], req domain.TriggerRequest) (*domain.RunSummary, error) {
	if req.ConnectionID == "" {
		return nil, apperr.MissingField("source_connection_id")
	}
	job := p.Kind()
	started := o.now()

	progress, err := o.progress.Get(ctx, req.ConnectionID, job)
	if err != nil {
		return nil, apperr.DatabaseError("load progress", err)
	}
	if progress == nil {
		progress = domain.NewSyncProgress(req.ConnectionID, job)
	}
	if !progress.CanStart(started, o.cfg.HeartbeatTimeout) {
		return nil, apperr.SyncInProgress(req.ConnectionID, string(job))
	}

	key := lockKey(req.ConnectionID, job)
	locked, err := o.locker.TryLock(ctx, key, o.cfg.HeartbeatTimeout)
	if err != nil {
		return nil, apperr.InternalWithError(fmt.Errorf("acquire run lock: %w", err))
	}
	if !locked {
		return nil, apperr.SyncInProgress(req.ConnectionID, string(job))
	}
	defer func() {
		if err := o.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			o.log.Warn().Err(err).Str("lock", key).Msg("release run lock")
		}
	}()

	cursor := 0
	if p.Resumable() && !req.ResetCursor {
		cursor = progress.Cursor
		if req.Cursor != nil && *req.Cursor >= 0 {
			cursor = *req.Cursor
		}
	}
	pageSize := o.cfg.PageSize
	if req.BatchSize > 0 {
		pageSize = min(req.BatchSize, MaxPageSize)
	}

	runID := uuid.NewString()
	progress.Status = domain.SyncStatusRunning
	progress.RunID = runID
	progress.StartedAt = &started
	progress.Cursor = cursor
	progress.LastError = ""
	progress.LastFetched, progress.LastUpserted, progress.LastErrors = 0, 0, 0
	progress.Heartbeat(started)
	if err := o.progress.Save(ctx, progress); err != nil {
		return nil, apperr.DatabaseError("save progress", err)
	}

	r := &run{
		o:        o,
		progress: progress,
		lockKey:  key,
		summary: &domain.RunSummary{
			RunID:        runID,
			ConnectionID: req.ConnectionID,
			Job:          job,
			StartedAt:    started,
		},
		log: o.log.With().
			Str("job", string(job)).
			Str("connection_id", req.ConnectionID).
			Str("run_id", runID).
			Logger(),
	}
	r.log.Info().Int("cursor", cursor).Int("page_size", pageSize).Msg("sync run started")

	for {
		if ctx.Err() != nil {
			return r.finish(ctx, domain.SyncStatusPartial, "cancelled", p.Resumable()), nil
		}
		if r.capReached() {
			return r.finish(ctx, domain.SyncStatusPartial, "", p.Resumable()), nil
		}

		limit := pageSize
		if o.cfg.MaxRecords > 0 {
			limit = min(limit, o.cfg.MaxRecords-r.summary.Fetched)
		}

		pageStart := o.now()
		page, err := p.Fetch(ctx, req.ConnectionID, progress.Cursor, limit)
		if err != nil {
			if ctx.Err() != nil {
				return r.finish(ctx, domain.SyncStatusPartial, "cancelled", p.Resumable()), nil
			}
			summary := r.finish(ctx, domain.SyncStatusError, err.Error(), p.Resumable())
			return summary, apperr.SourceError(req.ConnectionID, err)
		}
		if page.Total != nil {
			progress.TotalKnown = page.Total
		}
		if len(page.Items) == 0 {
			return r.finish(ctx, domain.SyncStatusSuccess, "", p.Resumable()), nil
		}

		res := p.Process(ctx, req.ConnectionID, page.Items)
		r.record(len(page.Items), res)
		o.metrics.PageDuration.WithLabelValues(string(job)).Observe(o.now().Sub(pageStart).Seconds())

		if err := r.checkpoint(ctx); err != nil {
			summary := r.finish(ctx, domain.SyncStatusError, err.Error(), p.Resumable())
			return summary, apperr.DatabaseError("save progress", err)
		}
		if !page.HasMore {
			return r.finish(ctx, domain.SyncStatusSuccess, "", p.Resumable()), nil
		}
	}
}

func (r *run) capReached() bool {
	cfg := r.o.cfg
	return (cfg.MaxPages > 0 && r.summary.Pages >= cfg.MaxPages) ||
		(cfg.MaxRecords > 0 && r.summary.Fetched >= cfg.MaxRecords)
}

func (r *run) record(fetched int, res PageResult) {
	s := r.summary
	s.Pages++
	s.Fetched += fetched
	s.Upserted += res.Upserted
	s.Errors += res.Failed
	s.Skipped += res.Skipped
	for _, sample := range res.ErrorSamples {
		if len(s.ErrorSamples) >= MaxErrorSamples {
			break
		}
		s.ErrorSamples = append(s.ErrorSamples, sample)
	}
	if res.Failed > 0 {
		r.log.Warn().Int("failed", res.Failed).Strs("samples", res.ErrorSamples).Msg("page write failed")
	}

	r.progress.Cursor += res.Advance
	r.progress.LastFetched = s.Fetched
	r.progress.LastUpserted = s.Upserted
	r.progress.LastErrors = s.Errors
}

// checkpoint persists the cursor with a fresh heartbeat and extends the lock.
func (r *run) checkpoint(ctx context.Context) error {
	r.progress.Heartbeat(r.o.now())
	if err := r.o.progress.Save(context.WithoutCancel(ctx), r.progress); err != nil {
		return err
	}
	if err := r.o.locker.Extend(ctx, r.lockKey, r.o.cfg.HeartbeatTimeout); err != nil {
		r.log.Warn().Err(err).Msg("extend run lock")
	}
	return nil
}

// finish writes the final state. It runs detached from ctx so a cancelled run
// still records where it stopped.
func (r *run) finish(ctx context.Context, status domain.SyncStatus, message string, resumable bool) *domain.RunSummary {
	now := r.o.now()
	p, s := r.progress, r.summary

	p.Status = status
	p.LastError = ""
	if status == domain.SyncStatusError {
		p.LastError = truncate(message, 1000)
	}
	if status == domain.SyncStatusSuccess {
		p.LastSuccessAt = &now
	}
	p.Heartbeat(now)
	if err := r.o.progress.Save(context.WithoutCancel(ctx), p); err != nil {
		r.log.Error().Err(err).Msg("save final progress")
	}

	s.Status = status
	s.LastError = p.LastError
	s.Partial = status == domain.SyncStatusPartial
	if s.Partial && resumable {
		next := p.Cursor
		s.NextCursor = &next
	}
	s.FinishedAt = now
	s.DurationMs = now.Sub(s.StartedAt).Milliseconds()

	job := string(s.Job)
	m := r.o.metrics
	m.ObserveRecords(job, "fetched", s.Fetched)
	m.ObserveRecords(job, "upserted", s.Upserted)
	m.ObserveRecords(job, "errored", s.Errors)
	m.ObserveRecords(job, "skipped", s.Skipped)
	m.ObserveRun(job, string(status), now.Sub(s.StartedAt))

	ev := r.log.Info()
	if status == domain.SyncStatusError {
		ev = r.log.Error()
	}
	ev.Str("status", string(status)).
		Int("pages", s.Pages).
		Int("fetched", s.Fetched).
		Int("upserted", s.Upserted).
		Int("errors", s.Errors).
		Int("skipped", s.Skipped).
		Int("cursor", p.Cursor).
		Str("reason", message).
		Int64("duration_ms", s.DurationMs).
		Msg("sync run finished")
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
