package syncjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach_worker/adapter/out/memory"
	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
	"outreach_worker/core/service/aggregate"
	"outreach_worker/core/service/disposition"
	"outreach_worker/core/service/reply"
	"outreach_worker/pkg/apperr"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSource struct {
	mu      sync.Mutex
	records []out.RawRecord
	offsets []int
	failAt  int
	err     error
	onFetch func(offset int)
}

func newFakeSource(records []out.RawRecord) *fakeSource {
	return &fakeSource{records: records, failAt: -1}
}

func (f *fakeSource) ForConnection(string) (out.RecordSource, error) { return f, nil }

func (f *fakeSource) Fetch(_ context.Context, offset, limit int) (*out.SourcePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if f.onFetch != nil {
		f.onFetch(offset)
	}
	if offset == f.failAt {
		return nil, f.err
	}
	total := len(f.records)
	if offset >= total {
		return &out.SourcePage{Total: &total}, nil
	}
	end := min(offset+limit, total)
	return &out.SourcePage{Records: f.records[offset:end], HasMore: end < total, Total: &total}, nil
}

func (f *fakeSource) fetchedOffsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets...)
}

func callRecords(n int) []out.RawRecord {
	records := make([]out.RawRecord, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, out.RawRecord{
			"id":           fmt.Sprintf("call-%03d", i),
			"outcome":      "Meeting Booked",
			"duration":     "95",
			"opener_score": 8,
		})
	}
	return records
}

type fakeArchive struct {
	pages int
	ids   []string
}

func (a *fakeArchive) ArchivePage(_ context.Context, _ string, _ domain.JobKind, records []out.ArchivedRecord) error {
	a.pages++
	for _, r := range records {
		a.ids = append(a.ids, r.ExternalID)
	}
	return nil
}

// ctxCalls rejects writes on a done context, as a SQL driver does.
type ctxCalls struct{ out.CallRepository }

func (c ctxCalls) UpsertBatch(ctx context.Context, records []*domain.CallRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.CallRepository.UpsertBatch(ctx, records)
}

type failingCampaigns struct {
	out.CampaignRepository
	fails int
}

func (c *failingCampaigns) UpsertAggregates(ctx context.Context, aggregates []*domain.CampaignAggregate) error {
	if c.fails > 0 {
		c.fails--
		return errors.New("campaign store unavailable")
	}
	return c.CampaignRepository.UpsertAggregates(ctx, aggregates)
}

func newCallJob(store *memory.Store, src out.SourceProvider, cfg Config, opts ...SourceOption) (*CallSyncJob, *Orchestrator) {
	orch := NewOrchestrator(cfg, store.Progress(), memory.NewLocker())
	return NewCallSyncJob(orch, src, store.Calls(), disposition.NewClassifier(), opts...), orch
}

func trigger(conn string) domain.TriggerRequest {
	return domain.TriggerRequest{ConnectionID: conn, Job: domain.JobCallSync}
}

// =============================================================================
// Orchestrator
// =============================================================================

func TestRun_PartialThenResume(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	src := newFakeSource(callRecords(100))
	job, orch := newCallJob(store, src, Config{PageSize: 10, MaxPages: 3})

	first, err := job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPartial, first.Status)
	assert.True(t, first.Partial)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, 30, *first.NextCursor)
	assert.Equal(t, 3, first.Pages)
	assert.Equal(t, 30, first.Upserted)

	progress, err := store.Progress().Get(ctx, "conn-1", domain.JobCallSync)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPartial, progress.Status)
	assert.Equal(t, 30, progress.Cursor)
	require.NotNil(t, progress.TotalKnown)
	assert.Equal(t, 100, *progress.TotalKnown)

	orch.cfg.MaxPages = 0
	req := trigger("conn-1")
	req.Cursor = first.NextCursor
	second, err := job.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, second.Status)
	assert.False(t, second.Partial)
	assert.Nil(t, second.NextCursor)
	assert.Equal(t, 7, second.Pages)
	assert.Equal(t, 70, second.Fetched)

	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, src.fetchedOffsets())

	n, err := store.Calls().CountByConnection(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	rec, err := store.Calls().GetByExternalID(ctx, "call-042")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsMeeting)
	assert.True(t, rec.IsConnection)
	require.NotNil(t, rec.CompositeScore)
	assert.Equal(t, 8.0, *rec.CompositeScore)

	progress, _ = store.Progress().Get(ctx, "conn-1", domain.JobCallSync)
	assert.Equal(t, domain.SyncStatusSuccess, progress.Status)
	assert.NotNil(t, progress.LastSuccessAt)
	assert.Equal(t, 100, progress.Cursor)
}

func TestRun_ResumesFromStoredCursor(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	src := newFakeSource(callRecords(40))
	job, orch := newCallJob(store, src, Config{PageSize: 10, MaxPages: 2})

	_, err := job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)

	orch.cfg.MaxPages = 0
	summary, err := job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
	assert.Equal(t, []int{0, 10, 20, 30}, src.fetchedOffsets())
}

func TestRun_RerunFromScratchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	job, _ := newCallJob(store, newFakeSource(callRecords(25)), Config{PageSize: 10})

	for i := 0; i < 2; i++ {
		req := trigger("conn-1")
		req.ResetCursor = true
		summary, err := job.Run(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 25, summary.Upserted)
		assert.Equal(t, 3, summary.Pages)
	}

	n, err := store.Calls().CountByConnection(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestRun_MaxRecordsCap(t *testing.T) {
	src := newFakeSource(callRecords(100))
	job, _ := newCallJob(memory.NewStore(), src, Config{PageSize: 10, MaxRecords: 25})

	summary, err := job.Run(context.Background(), trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPartial, summary.Status)
	assert.Equal(t, 25, summary.Fetched)
	require.NotNil(t, summary.NextCursor)
	assert.Equal(t, 25, *summary.NextCursor)
}

func TestRun_CapOnLastPageIsSuccess(t *testing.T) {
	job, _ := newCallJob(memory.NewStore(), newFakeSource(callRecords(30)), Config{PageSize: 10, MaxPages: 3})

	summary, err := job.Run(context.Background(), trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
	assert.False(t, summary.Partial)
}

func TestRun_RefusesWhileHeartbeatFresh(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	job, _ := newCallJob(store, newFakeSource(callRecords(5)), Config{PageSize: 10, HeartbeatTimeout: time.Minute})

	beat := time.Now().Add(-10 * time.Second)
	require.NoError(t, store.Progress().Save(ctx, &domain.SyncProgress{
		ConnectionID: "conn-1",
		Job:          domain.JobCallSync,
		Status:       domain.SyncStatusRunning,
		Cursor:       3,
		HeartbeatAt:  &beat,
	}))

	_, err := job.Run(ctx, trigger("conn-1"))
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeSyncInProgress))

	progress, _ := store.Progress().Get(ctx, "conn-1", domain.JobCallSync)
	assert.Equal(t, domain.SyncStatusRunning, progress.Status)
	assert.Equal(t, 3, progress.Cursor, "a refused run must not move the cursor")

	stale := time.Now().Add(-2 * time.Minute)
	progress.HeartbeatAt = &stale
	require.NoError(t, store.Progress().Save(ctx, progress))

	summary, err := job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
}

func TestRun_RefusesWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	locker := memory.NewLocker()
	orch := NewOrchestrator(Config{PageSize: 10}, store.Progress(), locker)
	job := NewCallSyncJob(orch, newFakeSource(callRecords(5)), store.Calls(), disposition.NewClassifier())

	ok, err := locker.TryLock(ctx, lockKey("conn-1", domain.JobCallSync), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = job.Run(ctx, trigger("conn-1"))
	assert.True(t, apperr.HasCode(err, apperr.CodeSyncInProgress))

	// other connections are independent
	_, err = job.Run(ctx, trigger("conn-2"))
	assert.NoError(t, err)
}

func TestRun_FetchErrorPersisted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	src := newFakeSource(callRecords(50))
	src.failAt = 20
	src.err = errors.New("upstream returned 502")
	job, _ := newCallJob(store, src, Config{PageSize: 10})

	summary, err := job.Run(ctx, trigger("conn-1"))
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeSourceError))
	require.NotNil(t, summary)
	assert.Equal(t, domain.SyncStatusError, summary.Status)
	assert.Equal(t, 20, summary.Upserted)
	assert.Contains(t, summary.LastError, "upstream returned 502")

	progress, _ := store.Progress().Get(ctx, "conn-1", domain.JobCallSync)
	assert.Equal(t, domain.SyncStatusError, progress.Status)
	assert.Equal(t, 20, progress.Cursor)
	assert.Contains(t, progress.LastError, "upstream returned 502")

	// the next run picks up where the failed one stopped
	src.failAt = -1
	summary, err = job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, 30, summary.Fetched)
	assert.Empty(t, summary.LastError)
}

func TestRun_BatchFailureCountedAndRunContinues(t *testing.T) {
	store := memory.NewStore()
	store.FailUpserts = 1
	store.UpsertErr = errors.New("deadlock detected")
	job, _ := newCallJob(store, newFakeSource(callRecords(30)), Config{PageSize: 10})

	summary, err := job.Run(context.Background(), trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
	assert.Equal(t, 30, summary.Fetched)
	assert.Equal(t, 20, summary.Upserted)
	assert.Equal(t, 10, summary.Errors)
	require.Len(t, summary.ErrorSamples, 1)
	assert.Contains(t, summary.ErrorSamples[0], "deadlock detected")
}

func TestRun_SkipsUnkeyedAndDuplicateRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	archive := &fakeArchive{}
	records := []out.RawRecord{
		{"id": "a", "outcome": "busy"},
		{"outcome": "no answer"},
		{"call_id": "b", "outcome": "voicemail"},
		{"id": "a", "outcome": "Meeting Booked"},
	}
	job, _ := newCallJob(store, newFakeSource(records), Config{PageSize: 10}, WithRawArchive(archive))

	summary, err := job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Fetched)
	assert.Equal(t, 2, summary.Upserted)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, summary.Fetched, summary.Upserted+summary.Skipped+summary.Errors)

	rec, _ := store.Calls().GetByExternalID(ctx, "a")
	require.NotNil(t, rec)
	assert.True(t, rec.IsMeeting, "last occurrence in a page wins")

	assert.Equal(t, 1, archive.pages)
	assert.Equal(t, []string{"a", "b"}, archive.ids)
}

func TestRun_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	src := newFakeSource(callRecords(50))
	src.onFetch = func(offset int) {
		if offset == 10 {
			cancel()
		}
	}
	job, _ := newCallJob(store, src, Config{PageSize: 10})

	summary, err := job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPartial, summary.Status)
	assert.Equal(t, 2, summary.Pages)
	require.NotNil(t, summary.NextCursor)
	assert.Equal(t, 20, *summary.NextCursor)

	progress, _ := store.Progress().Get(context.Background(), "conn-1", domain.JobCallSync)
	assert.Equal(t, domain.SyncStatusPartial, progress.Status)
	assert.Equal(t, 20, progress.Cursor)
}

func TestRun_CancelledMidPageStoresThePage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	src := newFakeSource(callRecords(20))
	src.onFetch = func(offset int) {
		if offset == 0 {
			cancel()
		}
	}
	orch := NewOrchestrator(Config{PageSize: 10}, store.Progress(), memory.NewLocker())
	calls := ctxCalls{store.Calls()}
	job := NewCallSyncJob(orch, src, calls, disposition.NewClassifier())

	summary, err := job.Run(ctx, trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPartial, summary.Status)
	assert.Equal(t, 10, summary.Upserted)
	assert.Zero(t, summary.Errors)
	assert.Empty(t, summary.ErrorSamples)
	require.NotNil(t, summary.NextCursor)
	assert.Equal(t, 10, *summary.NextCursor)

	stored, err := calls.CountByConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, *summary.NextCursor, stored, "the cursor never passes unwritten records")

	src.onFetch = nil
	summary, err = job.Run(context.Background(), trigger("conn-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
	assert.Equal(t, 10, summary.Upserted)
	assert.Equal(t, []int{0, 10}, src.fetchedOffsets())

	stored, _ = calls.CountByConnection(context.Background(), "conn-1")
	assert.Equal(t, 20, stored)
}

func TestRun_MissingConnection(t *testing.T) {
	job, _ := newCallJob(memory.NewStore(), newFakeSource(nil), Config{})
	_, err := job.Run(context.Background(), domain.TriggerRequest{})
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingField))
}

// =============================================================================
// Jobs
// =============================================================================

func TestReplySyncThenClassify(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orch := NewOrchestrator(Config{PageSize: 2}, store.Progress(), memory.NewLocker())

	src := newFakeSource([]out.RawRecord{
		{"id": "r1", "campaign_id": "camp-1", "email": "A@X.COM", "reply_text": "Can we grab 15 minutes this week?"},
		{"id": "r2", "campaign_id": "camp-1", "reply_text": "unsubscribe please"},
		{"id": "r3", "campaign_id": "camp-1", "reply_text": "This sounds interesting, tell me more"},
		{"id": "r4", "campaign_id": "camp-2", "reply_text": "Not right now, maybe next quarter"},
		{"id": "r5", "campaign_id": "camp-2", "reply_text": ""},
	})
	syncJob := NewReplySyncJob(orch, src, store.Activities())
	summary, err := syncJob.Run(ctx, domain.TriggerRequest{ConnectionID: "conn-1", Job: domain.JobReplySync})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Upserted)

	r1, _ := store.Activities().GetByExternalID(ctx, "r1")
	assert.Equal(t, "a@x.com", r1.LeadEmail)
	assert.False(t, r1.IsClassified())

	classifier := reply.NewClassifier(reply.NewRuleClassifier())
	aggs := aggregate.NewService(store.Activities(), store.Campaigns())
	classifyJob := NewReplyClassifyJob(orch, store.Activities(), classifier, aggs)

	summary, err = classifyJob.Run(ctx, domain.TriggerRequest{ConnectionID: "conn-1", Job: domain.JobReplyClassify})
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
	assert.Equal(t, 4, summary.Fetched)
	assert.Equal(t, 4, summary.Upserted)

	r1, _ = store.Activities().GetByExternalID(ctx, "r1")
	require.NotNil(t, r1.Classification)
	assert.Equal(t, domain.ReplyMeetingRequest, r1.Classification.Category)
	assert.True(t, r1.Classification.IsPositive)
	assert.Equal(t, domain.TierRules, r1.Classification.Tier)

	r5, _ := store.Activities().GetByExternalID(ctx, "r5")
	assert.False(t, r5.IsClassified(), "records without text are never classified")

	camp1, _ := store.Campaigns().GetAggregate(ctx, "camp-1")
	require.NotNil(t, camp1)
	assert.Equal(t, 3, camp1.TotalReplies)
	assert.Equal(t, 2, camp1.PositiveReplies)
	assert.Equal(t, 66.67, camp1.PositiveRate)

	camp2, _ := store.Campaigns().GetAggregate(ctx, "camp-2")
	require.NotNil(t, camp2)
	assert.Equal(t, 1, camp2.TotalReplies)
	assert.Equal(t, 0.0, camp2.PositiveRate)

	// a second pass finds nothing left to classify
	summary, err = classifyJob.Run(ctx, domain.TriggerRequest{ConnectionID: "conn-1", Job: domain.JobReplyClassify})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Fetched)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
}

func TestReplyClassify_FailedBatchDoesNotLoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	var recs []*domain.EmailActivityRecord
	for i := 1; i <= 5; i++ {
		recs = append(recs, &domain.EmailActivityRecord{
			ExternalID: fmt.Sprintf("r%d", i), ConnectionID: "conn-1", CampaignID: "camp",
			Replied: true, ReplyText: "unsubscribe please",
		})
	}
	_, err := store.Activities().UpsertBatch(ctx, recs)
	require.NoError(t, err)

	store.FailUpserts = 1
	store.UpsertErr = errors.New("tx aborted")
	orch := NewOrchestrator(Config{PageSize: 2}, store.Progress(), memory.NewLocker())
	job := NewReplyClassifyJob(orch, store.Activities(),
		reply.NewClassifier(reply.NewRuleClassifier()),
		aggregate.NewService(store.Activities(), store.Campaigns()))

	summary, err := job.Run(ctx, domain.TriggerRequest{ConnectionID: "conn-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, summary.Status)
	assert.Equal(t, 2, summary.Errors)
	assert.Equal(t, 3, summary.Upserted)
	assert.Equal(t, 5, summary.Fetched)
	assert.Nil(t, summary.NextCursor)

	left, err := store.Activities().ListUnclassified(ctx, "conn-1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, left, 2, "failed rows stay unclassified for the next run")
}

func TestReplyClassify_FailedRecomputeIsRepaired(t *testing.T) {
	ctx := context.Background()
	seedReplies := func(store *memory.Store) {
		_, err := store.Activities().UpsertBatch(ctx, []*domain.EmailActivityRecord{
			{ExternalID: "r1", ConnectionID: "conn-1", CampaignID: "camp", Replied: true, ReplyText: "Can we grab 15 minutes this week?"},
			{ExternalID: "r2", ConnectionID: "conn-1", CampaignID: "camp", Replied: true, ReplyText: "unsubscribe please"},
		})
		require.NoError(t, err)
	}
	newJob := func(store *memory.Store, campaigns out.CampaignRepository) *ReplyClassifyJob {
		orch := NewOrchestrator(Config{PageSize: 10}, store.Progress(), memory.NewLocker())
		return NewReplyClassifyJob(orch, store.Activities(),
			reply.NewClassifier(reply.NewRuleClassifier()),
			aggregate.NewService(store.Activities(), campaigns))
	}
	req := domain.TriggerRequest{ConnectionID: "conn-1", Job: domain.JobReplyClassify}

	t.Run("repaired on the next run", func(t *testing.T) {
		store := memory.NewStore()
		seedReplies(store)
		campaigns := &failingCampaigns{CampaignRepository: store.Campaigns(), fails: 2}
		job := newJob(store, campaigns)

		summary, err := job.Run(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Upserted)
		require.NotEmpty(t, summary.ErrorSamples)
		assert.Contains(t, summary.ErrorSamples[0], "campaign store unavailable")

		agg, _ := store.Campaigns().GetAggregate(ctx, "camp")
		assert.Nil(t, agg)

		// nothing is left to classify, the stale campaign is still recomputed
		summary, err = job.Run(ctx, req)
		require.NoError(t, err)
		assert.Zero(t, summary.Fetched)

		agg, _ = store.Campaigns().GetAggregate(ctx, "camp")
		require.NotNil(t, agg)
		assert.Equal(t, 2, agg.TotalReplies)
		assert.Equal(t, 1, agg.PositiveReplies)
	})

	t.Run("repaired at the end of the same run", func(t *testing.T) {
		store := memory.NewStore()
		seedReplies(store)
		job := newJob(store, &failingCampaigns{CampaignRepository: store.Campaigns(), fails: 1})

		_, err := job.Run(ctx, req)
		require.NoError(t, err)

		agg, _ := store.Campaigns().GetAggregate(ctx, "camp")
		require.NotNil(t, agg)
		assert.Equal(t, 2, agg.TotalReplies)
	})
}

func TestCopyFeatureJob(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orch := NewOrchestrator(Config{PageSize: 10}, store.Progress(), memory.NewLocker())
	src := newFakeSource([]out.RawRecord{
		{"variant_id": "v1", "campaign_id": "c1", "subject": "FREE QUOTE!!! Act Now", "body": "Hi,\nOpen to a chat?"},
		{"campaign_id": "c1", "subject": "no id"},
	})
	job := NewCopyFeatureJob(orch, src, store.CopyFeatures())

	summary, err := job.Run(ctx, domain.TriggerRequest{ConnectionID: "conn-1", Job: domain.JobCopyFeatures})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Upserted)
	assert.Equal(t, 1, summary.Skipped)

	f, err := store.CopyFeatures().GetByVariantID(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, domain.CapsAllCaps, f.Subject.Capitalization)
	assert.Equal(t, domain.CTASoft, f.Body.CTAType)
}

// =============================================================================
// Recovery & runner
// =============================================================================

func TestRecoverStale(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-20 * time.Minute)
	fresh := now.Add(-time.Minute)

	for _, p := range []*domain.SyncProgress{
		{ConnectionID: "stale", Job: domain.JobCallSync, Status: domain.SyncStatusRunning, Cursor: 40, HeartbeatAt: &stale},
		{ConnectionID: "fresh", Job: domain.JobCallSync, Status: domain.SyncStatusRunning, Cursor: 10, HeartbeatAt: &fresh},
		{ConnectionID: "done", Job: domain.JobCallSync, Status: domain.SyncStatusSuccess, HeartbeatAt: &stale},
	} {
		require.NoError(t, store.Progress().Save(ctx, p))
	}

	svc := NewRecoveryService(store.Progress(), 10*time.Minute)
	svc.now = func() time.Time { return now }

	recovered, err := svc.RecoverStale(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "stale", recovered[0].ConnectionID)

	got, _ := store.Progress().Get(ctx, "stale", domain.JobCallSync)
	assert.Equal(t, domain.SyncStatusError, got.Status)
	assert.Equal(t, StaleHeartbeatError, got.LastError)
	assert.Equal(t, 40, got.Cursor, "recovery keeps the cursor for the retry")

	got, _ = store.Progress().Get(ctx, "fresh", domain.JobCallSync)
	assert.Equal(t, domain.SyncStatusRunning, got.Status)

	got, _ = store.Progress().Get(ctx, "done", domain.JobCallSync)
	assert.Equal(t, domain.SyncStatusSuccess, got.Status)
}

func TestRunner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orch := NewOrchestrator(Config{PageSize: 10}, store.Progress(), memory.NewLocker())
	calls := NewCallSyncJob(orch, newFakeSource(callRecords(3)), store.Calls(), disposition.NewClassifier())
	variants := NewCopyFeatureJob(orch, newFakeSource(nil), store.CopyFeatures())

	runner := NewRunner(variants, calls)
	assert.Equal(t, []domain.JobKind{domain.JobCallSync, domain.JobCopyFeatures}, runner.Jobs())

	_, err := runner.Run(ctx, domain.TriggerRequest{ConnectionID: "conn-1", Job: domain.JobReplySync})
	assert.True(t, apperr.HasCode(err, apperr.CodeUnknownJob))

	summaries, err := runner.RunAll(ctx, "conn-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 3, summaries[0].Upserted)
	assert.Equal(t, domain.SyncStatusSuccess, summaries[1].Status)

	progress, err := orch.Progress(ctx, "conn-1")
	require.NoError(t, err)
	require.Len(t, progress, len(domain.JobKinds))
	assert.Equal(t, domain.SyncStatusSuccess, progress[0].Status)
	assert.Equal(t, domain.SyncStatusIdle, progress[1].Status)
}
