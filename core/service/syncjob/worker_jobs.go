package syncjob

import (
	"context"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
	"outreach_worker/core/service/copyfeature"
	"outreach_worker/core/service/disposition"
	"outreach_worker/core/service/normalize"
)

// Job is a runnable pipeline bound to its orchestrator.
type Job interface {
	Kind() domain.JobKind
	Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error)
}

// =============================================================================
// Source-backed jobs
// =============================================================================

// SourceOption configures the jobs that page through an external source.
type SourceOption func(*sourceJob)

// WithRawArchive stores each fetched page before normalization.
func WithRawArchive(archive out.RawArchive) SourceOption {
	return func(j *sourceJob) { j.archive = archive }
}

// WithFieldMap replaces the default platform field map.
func WithFieldMap(fields normalize.FieldMap) SourceOption {
	return func(j *sourceJob) { j.fields = fields }
}

type sourceJob struct {
	orch    *Orchestrator
	kind    domain.JobKind
	sources out.SourceProvider
	archive out.RawArchive
	fields  normalize.FieldMap
}

func newSourceJob(orch *Orchestrator, kind domain.JobKind, sources out.SourceProvider, fields normalize.FieldMap, opts []SourceOption) sourceJob {
	j := sourceJob{orch: orch, kind: kind, sources: sources, fields: fields}
	for _, opt := range opts {
		opt(&j)
	}
	return j
}

func (j *sourceJob) Kind() domain.JobKind { return j.kind }
func (j *sourceJob) Resumable() bool      { return true }

func (j *sourceJob) Fetch(ctx context.Context, connectionID string, offset, limit int) (Page[out.RawRecord], error) {
	src, err := j.sources.ForConnection(connectionID)
	if err != nil {
		return Page[out.RawRecord]{}, err
	}
	page, err := src.Fetch(ctx, offset, limit)
	if err != nil {
		return Page[out.RawRecord]{}, err
	}
	return Page[out.RawRecord]{Items: page.Records, HasMore: page.HasMore, Total: page.Total}, nil
}

// archivePage is best effort; the store remains the system of record.
func (j *sourceJob) archivePage(ctx context.Context, connectionID string, records []out.ArchivedRecord) {
	if j.archive == nil || len(records) == 0 {
		return
	}
	if err := j.archive.ArchivePage(ctx, connectionID, j.kind, records); err != nil {
		j.orch.log.Warn().Err(err).
			Str("job", string(j.kind)).
			Str("connection_id", connectionID).
			Msg("archive raw page")
	}
}

// normalizePage converts raw records, keeping the last record of each key.
// Records without a key or repeated within the page are skipped.
func normalizePage[R any](items []out.RawRecord, convert func(out.RawRecord) (R, string, error)) ([]R, []out.ArchivedRecord, int) {
	index := make(map[string]int, len(items))
	var (
		records  []R
		archived []out.ArchivedRecord
		skipped  int
	)
	for _, raw := range items {
		rec, key, err := convert(raw)
		if err != nil {
			skipped++
			continue
		}
		if i, dup := index[key]; dup {
			records[i] = rec
			archived[i].Payload = raw
			skipped++
			continue
		}
		index[key] = len(records)
		records = append(records, rec)
		archived = append(archived, out.ArchivedRecord{ExternalID: key, Payload: raw})
	}
	return records, archived, skipped
}

// writePage archives and upserts one normalized page. The writes outlive a
// cancelled run.
func writePage[R any](ctx context.Context, j *sourceJob, connectionID string, total, skipped int, records []R, archived []out.ArchivedRecord, upsert func(context.Context, []R) (int, error)) PageResult {
	wctx, cancel := j.orch.WriteContext(ctx)
	defer cancel()
	j.archivePage(wctx, connectionID, archived)
	return upsertPage(wctx, total, skipped, records, upsert)
}

// upsertPage writes one batch and accounts for the whole page.
func upsertPage[R any](ctx context.Context, total, skipped int, records []R, upsert func(context.Context, []R) (int, error)) PageResult {
	res := PageResult{Skipped: skipped, Advance: total}
	if len(records) == 0 {
		return res
	}
	n, err := upsert(ctx, records)
	if err != nil {
		res.Failed = len(records)
		res.addError(err)
		return res
	}
	res.Upserted = n
	return res
}

// =============================================================================
// CallSyncJob
// =============================================================================

// CallSyncJob pulls dialer calls, classifies their disposition and upserts them.
type CallSyncJob struct {
	sourceJob
	calls       out.CallRepository
	disposition *disposition.Classifier
}

func NewCallSyncJob(orch *Orchestrator, sources out.SourceProvider, calls out.CallRepository, classifier *disposition.Classifier, opts ...SourceOption) *CallSyncJob {
	return &CallSyncJob{
		sourceJob:   newSourceJob(orch, domain.JobCallSync, sources, normalize.DialerCallFieldMap, opts),
		calls:       calls,
		disposition: classifier,
	}
}

func (j *CallSyncJob) Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error) {
	return Run[out.RawRecord](ctx, j.orch, j, req)
}

func (j *CallSyncJob) Process(ctx context.Context, connectionID string, items []out.RawRecord) PageResult {
	now := j.orch.now()
	records, archived, skipped := normalizePage(items, func(raw out.RawRecord) (*domain.CallRecord, string, error) {
		rec, err := normalize.ToCallRecord(raw, j.fields, connectionID, now)
		if err != nil {
			return nil, "", err
		}
		j.disposition.Apply(rec)
		return rec, rec.ExternalID, nil
	})
	return writePage(ctx, &j.sourceJob, connectionID, len(items), skipped, records, archived, j.calls.UpsertBatch)
}

// =============================================================================
// ReplySyncJob
// =============================================================================

// ReplySyncJob pulls reply activity and stores it unclassified.
type ReplySyncJob struct {
	sourceJob
	activities out.ActivityRepository
}

func NewReplySyncJob(orch *Orchestrator, sources out.SourceProvider, activities out.ActivityRepository, opts ...SourceOption) *ReplySyncJob {
	return &ReplySyncJob{
		sourceJob:  newSourceJob(orch, domain.JobReplySync, sources, normalize.EmailReplyFieldMap, opts),
		activities: activities,
	}
}

func (j *ReplySyncJob) Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error) {
	return Run[out.RawRecord](ctx, j.orch, j, req)
}

func (j *ReplySyncJob) Process(ctx context.Context, connectionID string, items []out.RawRecord) PageResult {
	now := j.orch.now()
	records, archived, skipped := normalizePage(items, func(raw out.RawRecord) (*domain.EmailActivityRecord, string, error) {
		rec, err := normalize.ToEmailActivity(raw, j.fields, connectionID, now)
		if err != nil {
			return nil, "", err
		}
		return rec, rec.ExternalID, nil
	})
	return writePage(ctx, &j.sourceJob, connectionID, len(items), skipped, records, archived, j.activities.UpsertBatch)
}

// =============================================================================
// CopyFeatureJob
// =============================================================================

// CopyFeatureJob pulls sequence variants and stores their extracted features.
type CopyFeatureJob struct {
	sourceJob
	features out.CopyFeatureRepository
}

func NewCopyFeatureJob(orch *Orchestrator, sources out.SourceProvider, features out.CopyFeatureRepository, opts ...SourceOption) *CopyFeatureJob {
	return &CopyFeatureJob{
		sourceJob: newSourceJob(orch, domain.JobCopyFeatures, sources, normalize.EmailVariantFieldMap, opts),
		features:  features,
	}
}

func (j *CopyFeatureJob) Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error) {
	return Run[out.RawRecord](ctx, j.orch, j, req)
}

func (j *CopyFeatureJob) Process(ctx context.Context, connectionID string, items []out.RawRecord) PageResult {
	now := j.orch.now()
	features, archived, skipped := normalizePage(items, func(raw out.RawRecord) (*domain.CopyVariantFeatures, string, error) {
		v, err := normalize.ToCopyVariant(raw, j.fields, connectionID)
		if err != nil {
			return nil, "", err
		}
		return copyfeature.Extract(v, now), v.VariantID, nil
	})
	return writePage(ctx, &j.sourceJob, connectionID, len(items), skipped, features, archived, j.features.UpsertBatch)
}
