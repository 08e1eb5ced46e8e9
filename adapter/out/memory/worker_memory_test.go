package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

func TestLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocker()
	l.clock = func() time.Time { return now }

	ok, err := l.TryLock(ctx, "conn-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.TryLock(ctx, "conn-1", time.Minute)
	assert.False(t, ok, "second holder must be refused")

	ok, _ = l.TryLock(ctx, "conn-2", time.Minute)
	assert.True(t, ok, "keys are independent")

	now = now.Add(50 * time.Second)
	require.NoError(t, l.Extend(ctx, "conn-1", time.Minute))

	now = now.Add(50 * time.Second)
	ok, _ = l.TryLock(ctx, "conn-1", time.Minute)
	assert.False(t, ok, "extended lock still held")

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, l.Extend(ctx, "conn-1", time.Minute), ErrLockNotHeld)
	ok, _ = l.TryLock(ctx, "conn-1", time.Minute)
	assert.True(t, ok, "expired lock can be taken")

	require.NoError(t, l.Unlock(ctx, "conn-1"))
	ok, _ = l.TryLock(ctx, "conn-1", time.Minute)
	assert.True(t, ok)
}

func TestActivityUpsertKeepsClassification(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.Activities()

	_, err := repo.UpsertBatch(ctx, []*domain.EmailActivityRecord{
		{ExternalID: "a-1", ConnectionID: "c", CampaignID: "camp", Replied: true, ReplyText: "Sounds good"},
	})
	require.NoError(t, err)

	n, err := repo.SaveClassifications(ctx, []out.ClassificationUpdate{{
		ExternalID:     "a-1",
		Classification: domain.NewReplyClassification(domain.ReplyInterested, 0.75, "rule", domain.TierRules),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.UpsertBatch(ctx, []*domain.EmailActivityRecord{
		{ExternalID: "a-1", ConnectionID: "c", CampaignID: "camp", Replied: true, ReplyText: "Sounds good!"},
	})
	require.NoError(t, err)

	got, err := repo.GetByExternalID(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, got.Classification)
	assert.Equal(t, domain.ReplyInterested, got.Classification.Category)
	assert.Equal(t, "Sounds good!", got.ReplyText)

	// a second classification pass leaves the first one in place
	n, err = repo.SaveClassifications(ctx, []out.ClassificationUpdate{{
		ExternalID:     "a-1",
		Classification: domain.NewReplyClassification(domain.ReplyNeutral, 0.3, "rule", domain.TierRules),
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListUnclassified(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := s.Activities()
	_, err := repo.UpsertBatch(ctx, []*domain.EmailActivityRecord{
		{ExternalID: "a-3", ConnectionID: "c", Replied: true, ReplyText: "three"},
		{ExternalID: "a-1", ConnectionID: "c", Replied: true, ReplyText: "one"},
		{ExternalID: "a-2", ConnectionID: "c", Replied: true, ReplyText: "   "},
		{ExternalID: "a-4", ConnectionID: "c", Replied: false},
		{ExternalID: "a-5", ConnectionID: "other", Replied: true, ReplyText: "five"},
	})
	require.NoError(t, err)

	got, err := repo.ListUnclassified(ctx, "c", 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-1", got[0].ExternalID)
	assert.Equal(t, "a-3", got[1].ExternalID)

	got, err = repo.ListUnclassified(ctx, "c", 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-3", got[0].ExternalID)
}

func TestInjectedUpsertFailure(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.FailUpserts = 1
	s.UpsertErr = errors.New("boom")

	_, err := s.Calls().UpsertBatch(ctx, []*domain.CallRecord{{ExternalID: "x"}})
	assert.EqualError(t, err, "boom")

	n, err := s.Calls().UpsertBatch(ctx, []*domain.CallRecord{{ExternalID: "x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
