package syncjob

import (
	"context"
	"fmt"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
	"outreach_worker/core/service/aggregate"
	"outreach_worker/core/service/reply"
)

// ReplyClassifyJob classifies stored replies that have no classification yet
// and recomputes the aggregates of the campaigns it touched.
//
// The store is its source. Classified rows leave the unclassified set, so the
// offset only moves past rows that stay unclassified, and every run starts over
// from zero. Each run ends by recomputing campaigns whose aggregate is older
// than their newest classification, which picks up failed recomputes.
type ReplyClassifyJob struct {
	orch       *Orchestrator
	activities out.ActivityRepository
	classifier *reply.Classifier
	aggregates *aggregate.Service
}

func NewReplyClassifyJob(orch *Orchestrator, activities out.ActivityRepository, classifier *reply.Classifier, aggregates *aggregate.Service) *ReplyClassifyJob {
	return &ReplyClassifyJob{
		orch:       orch,
		activities: activities,
		classifier: classifier,
		aggregates: aggregates,
	}
}

func (j *ReplyClassifyJob) Kind() domain.JobKind { return domain.JobReplyClassify }
func (j *ReplyClassifyJob) Resumable() bool      { return false }

func (j *ReplyClassifyJob) Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error) {
	summary, err := Run[*domain.EmailActivityRecord](ctx, j.orch, j, req)
	if err != nil {
		return summary, err
	}
	j.recomputeStale(ctx, summary)
	return summary, nil
}

// recomputeStale runs after the lock is released; recomputes count from
// scratch, so a concurrent one converges on the same aggregate.
func (j *ReplyClassifyJob) recomputeStale(ctx context.Context, summary *domain.RunSummary) {
	wctx, cancel := j.orch.WriteContext(ctx)
	defer cancel()

	aggs, err := j.aggregates.RecomputeStale(wctx, summary.ConnectionID)
	if err != nil {
		j.orch.log.Warn().Err(err).Str("connection_id", summary.ConnectionID).Msg("recompute stale aggregates")
		if len(summary.ErrorSamples) < MaxErrorSamples {
			summary.ErrorSamples = append(summary.ErrorSamples, truncate(err.Error(), errorSampleLen))
		}
		return
	}
	if len(aggs) > 0 {
		j.orch.log.Info().Int("campaigns", len(aggs)).Str("connection_id", summary.ConnectionID).Msg("recomputed stale aggregates")
	}
}

func (j *ReplyClassifyJob) Fetch(ctx context.Context, connectionID string, offset, limit int) (Page[*domain.EmailActivityRecord], error) {
	records, err := j.activities.ListUnclassified(ctx, connectionID, offset, limit)
	if err != nil {
		return Page[*domain.EmailActivityRecord]{}, fmt.Errorf("list unclassified replies: %w", err)
	}
	return Page[*domain.EmailActivityRecord]{Items: records, HasMore: len(records) == limit}, nil
}

func (j *ReplyClassifyJob) Process(ctx context.Context, connectionID string, items []*domain.EmailActivityRecord) PageResult {
	var res PageResult
	now := j.orch.now()

	updates := make([]out.ClassificationUpdate, 0, len(items))
	for _, item := range j.classifier.ClassifyBatch(ctx, items) {
		if item.Err != nil {
			res.Skipped++
			continue
		}
		cls := item.Outcome.Classification
		cls.ClassifiedAt = now
		updates = append(updates, out.ClassificationUpdate{
			ExternalID:     item.Record.ExternalID,
			CampaignID:     item.Record.CampaignID,
			Classification: cls,
		})
	}
	res.Advance = res.Skipped
	if len(updates) == 0 {
		return res
	}

	wctx, cancel := j.orch.WriteContext(ctx)
	defer cancel()
	n, err := j.activities.SaveClassifications(wctx, updates)
	if err != nil {
		res.Failed = len(updates)
		res.Advance += len(updates)
		res.addError(err)
		return res
	}
	res.Upserted = n
	// rows classified concurrently by another writer are already out of the set
	res.Skipped += len(updates) - n

	if n > 0 {
		campaigns := make([]string, 0, len(updates))
		for _, u := range updates {
			campaigns = append(campaigns, u.CampaignID)
		}
		// left stale on failure until the end-of-run recompute
		if _, err := j.aggregates.Recompute(wctx, campaigns); err != nil {
			res.addError(fmt.Errorf("recompute campaign aggregates: %w", err))
			j.orch.log.Warn().Err(err).Str("connection_id", connectionID).Msg("recompute aggregates")
		}
	}
	return res
}
