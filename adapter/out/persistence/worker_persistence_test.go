package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

var ts = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

func TestBuildUpsert(t *testing.T) {
	query, err := BuildUpsert(UpsertSpec{
		Table:    "campaign_aggregates",
		Columns:  []string{"campaign_id", "total_replies"},
		Conflict: []string{"campaign_id"},
	}, 2)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "campaign_aggregates" ("campaign_id", "total_replies") VALUES (?, ?), (?, ?) `+
			`ON CONFLICT ("campaign_id") DO UPDATE SET "total_replies" = excluded."total_replies"`,
		query)

	query, err = BuildUpsert(UpsertSpec{Table: "t", Columns: []string{"id"}, Conflict: []string{"id"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "t" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`, query)

	_, err = BuildUpsert(UpsertSpec{Table: "t", Columns: []string{"id"}}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpsert_RowShapeChecked(t *testing.T) {
	db := openTestDB(t)
	_, err := Upsert(context.Background(), db, campaignUpsert, [][]any{{"only-one"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db))
}

func TestCallAdapter(t *testing.T) {
	ctx := context.Background()
	a := NewCallAdapter(openTestDB(t))

	dur := 95
	score := 7.5
	rec := &domain.CallRecord{
		ExternalID:      "call-1",
		ConnectionID:    "conn-1",
		Direction:       domain.CallDirectionOutbound,
		ContactName:     "Dana",
		DurationSeconds: &dur,
		CallDateTime:    &ts,
		RawOutcome:      "Meeting Booked",
		Scores: []domain.CallScore{
			{Name: "closing", Value: 7, Justification: "asked for time"},
			{Name: "opener", Value: 8},
		},
		Disposition:    domain.Disposition{Category: "meeting booked", IsConnection: true, IsMeeting: true},
		CompositeScore: &score,
		SyncedAt:       ts,
	}
	n, err := a.UpsertBatch(ctx, []*domain.CallRecord{rec, {ExternalID: "call-2", ConnectionID: "conn-1", SyncedAt: ts}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := a.GetByExternalID(ctx, "call-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Scores, got.Scores)
	assert.True(t, got.IsMeeting)
	assert.Equal(t, 95, got.Duration())
	require.NotNil(t, got.CallDateTime)
	assert.True(t, ts.Equal(*got.CallDateTime))
	assert.Nil(t, got.CallDate)

	empty, err := a.GetByExternalID(ctx, "call-2")
	require.NoError(t, err)
	assert.Equal(t, "unknown", empty.Category)
	assert.Nil(t, empty.CompositeScore)

	// re-delivery overwrites in place
	rec.RawOutcome = "No Answer"
	rec.Disposition = domain.Disposition{Category: "no answer", IsConnection: true}
	_, err = a.UpsertBatch(ctx, []*domain.CallRecord{rec})
	require.NoError(t, err)

	got, _ = a.GetByExternalID(ctx, "call-1")
	assert.Equal(t, "No Answer", got.RawOutcome)
	assert.False(t, got.IsMeeting)

	count, err := a.CountByConnection(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	missing, err := a.GetByExternalID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestActivityAdapter(t *testing.T) {
	ctx := context.Background()
	a := NewActivityAdapter(openTestDB(t))

	_, err := a.UpsertBatch(ctx, []*domain.EmailActivityRecord{
		{ExternalID: "r1", ConnectionID: "c", CampaignID: "camp", Replied: true, ReplyText: "Let's talk Tuesday", SyncedAt: ts},
		{ExternalID: "r2", ConnectionID: "c", CampaignID: "camp", Replied: true, ReplyText: "unsubscribe", SyncedAt: ts},
		{ExternalID: "r3", ConnectionID: "c", CampaignID: "camp", Replied: true, ReplyText: "  ", SyncedAt: ts},
		{ExternalID: "r4", ConnectionID: "c", CampaignID: "camp", Replied: false, SyncedAt: ts},
	})
	require.NoError(t, err)

	pending, err := a.ListUnclassified(ctx, "c", 0, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "r1", pending[0].ExternalID)

	cls := domain.NewReplyClassification(domain.ReplyMeetingRequest, 0.85, "matched rule: meeting", domain.TierRules)
	cls.ClassifiedAt = ts
	n, err := a.SaveClassifications(ctx, []out.ClassificationUpdate{
		{ExternalID: "r1", CampaignID: "camp", Classification: cls},
		{ExternalID: "r2", CampaignID: "camp", Classification: domain.NewReplyClassification(domain.ReplyUnsubscribe, 0.95, "", domain.TierRules)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// re-sync keeps the classification
	_, err = a.UpsertBatch(ctx, []*domain.EmailActivityRecord{
		{ExternalID: "r1", ConnectionID: "c", CampaignID: "camp", Replied: true, ReplyText: "Let's talk Tuesday!", SyncedAt: ts},
	})
	require.NoError(t, err)

	got, err := a.GetByExternalID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got.Classification)
	assert.Equal(t, domain.ReplyMeetingRequest, got.Classification.Category)
	assert.Equal(t, domain.SentimentPositive, got.Classification.Sentiment)
	assert.True(t, got.Classification.IsPositive)
	assert.Equal(t, domain.TierRules, got.Classification.Tier)
	assert.Equal(t, "Let's talk Tuesday!", got.ReplyText)

	// already classified rows are not rewritten
	n, err = a.SaveClassifications(ctx, []out.ClassificationUpdate{
		{ExternalID: "r1", Classification: domain.NewReplyClassification(domain.ReplyNeutral, 0.3, "", domain.TierRules)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pending, err = a.ListUnclassified(ctx, "c", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	total, positive, err := a.CountByCampaign(ctx, "camp")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, positive)

	total, positive, err = a.CountByCampaign(ctx, "none")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, positive)
}

func TestActivityAdapter_ListStaleCampaigns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	a := NewActivityAdapter(db)
	campaigns := NewCampaignAdapter(db)

	_, err := a.UpsertBatch(ctx, []*domain.EmailActivityRecord{
		{ExternalID: "r1", ConnectionID: "c", CampaignID: "fresh", Replied: true, ReplyText: "yes", SyncedAt: ts},
		{ExternalID: "r2", ConnectionID: "c", CampaignID: "behind", Replied: true, ReplyText: "yes", SyncedAt: ts},
		{ExternalID: "r3", ConnectionID: "c", CampaignID: "missing", Replied: true, ReplyText: "yes", SyncedAt: ts},
		{ExternalID: "r4", ConnectionID: "c", CampaignID: "unclassified", Replied: true, ReplyText: "yes", SyncedAt: ts},
		{ExternalID: "r5", ConnectionID: "other", CampaignID: "elsewhere", Replied: true, ReplyText: "yes", SyncedAt: ts},
	})
	require.NoError(t, err)

	update := func(id string, at time.Time) out.ClassificationUpdate {
		cls := domain.NewReplyClassification(domain.ReplyInterested, 0.9, "", domain.TierRules)
		cls.ClassifiedAt = at
		return out.ClassificationUpdate{ExternalID: id, Classification: cls}
	}
	_, err = a.SaveClassifications(ctx, []out.ClassificationUpdate{
		update("r1", ts),
		update("r2", ts.Add(time.Hour)),
		update("r3", ts),
		update("r5", ts),
	})
	require.NoError(t, err)
	require.NoError(t, campaigns.UpsertAggregates(ctx, []*domain.CampaignAggregate{
		domain.NewCampaignAggregate("fresh", 1, 1, ts.Add(time.Minute)),
		domain.NewCampaignAggregate("behind", 0, 0, ts),
	}))

	stale, err := a.ListStaleCampaigns(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"behind", "missing"}, stale)
}

func TestCopyFeatureAndCampaignAdapters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	features := NewCopyFeatureAdapter(db)
	campaigns := NewCampaignAdapter(db)

	f := &domain.CopyVariantFeatures{
		VariantID:    "v1",
		ConnectionID: "c",
		Subject:      domain.SubjectFeatures{Length: 21, WordCount: 4, Capitalization: domain.CapsAllCaps, UrgencyScore: 100, Punctuation: domain.PunctuationNone, PersonalizationType: domain.TokenNone, FirstWord: domain.FirstWordOther},
		Body:         domain.BodyFeatures{WordCount: 40, HasCalendarLink: true, CTAType: domain.CTAMeeting, CTAPosition: domain.CTAPositionEnd, CTAStrength: domain.CTAStrengthMedium, Tone: domain.ToneProfessional, ReadingGrade: 6.25, OpeningLine: domain.OpeningGreeting},
		ExtractedAt:  ts,
	}
	n, err := features.UpsertBatch(ctx, []*domain.CopyVariantFeatures{f})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := features.GetByVariantID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, f.Subject, got.Subject)
	assert.Equal(t, f.Body, got.Body)

	require.NoError(t, campaigns.UpsertAggregates(ctx, []*domain.CampaignAggregate{
		domain.NewCampaignAggregate("camp", 1, 3, ts),
	}))
	require.NoError(t, campaigns.UpsertAggregates(ctx, []*domain.CampaignAggregate{
		domain.NewCampaignAggregate("camp", 2, 4, ts),
	}))
	agg, err := campaigns.GetAggregate(ctx, "camp")
	require.NoError(t, err)
	assert.Equal(t, 4, agg.TotalReplies)
	assert.Equal(t, 50.0, agg.PositiveRate)
}

func TestProgressAdapter(t *testing.T) {
	ctx := context.Background()
	a := NewProgressAdapter(openTestDB(t))

	got, err := a.Get(ctx, "c", domain.JobCallSync)
	require.NoError(t, err)
	assert.Nil(t, got)

	total := 120
	p := domain.NewSyncProgress("c", domain.JobCallSync)
	p.Status = domain.SyncStatusRunning
	p.RunID = "run-1"
	p.Cursor = 40
	p.TotalKnown = &total
	p.StartedAt = &ts
	p.Heartbeat(ts)
	require.NoError(t, a.Save(ctx, p))

	p.Status = domain.SyncStatusPartial
	p.Cursor = 60
	require.NoError(t, a.Save(ctx, p))

	require.NoError(t, a.Save(ctx, &domain.SyncProgress{
		ConnectionID: "c", Job: domain.JobReplySync, Status: domain.SyncStatusRunning, UpdatedAt: ts,
	}))

	got, err = a.Get(ctx, "c", domain.JobCallSync)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPartial, got.Status)
	assert.Equal(t, 60, got.Cursor)
	require.NotNil(t, got.TotalKnown)
	assert.Equal(t, 120, *got.TotalKnown)
	require.NotNil(t, got.HeartbeatAt)
	assert.True(t, ts.Equal(*got.HeartbeatAt))
	assert.Equal(t, 50.0, got.SyncPercent())

	running, err := a.ListByStatus(ctx, domain.SyncStatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, domain.JobReplySync, running[0].Job)
	assert.Nil(t, running[0].HeartbeatAt)
}
