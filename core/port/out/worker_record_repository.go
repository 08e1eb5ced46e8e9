package out

import (
	"context"

	"outreach_worker/core/domain"
)

// All pipeline writes are upserts keyed by the natural identifier.

type CallRepository interface {
	UpsertBatch(ctx context.Context, records []*domain.CallRecord) (int, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.CallRecord, error)
	CountByConnection(ctx context.Context, connectionID string) (int, error)
}

// ClassificationUpdate assigns a complete classification to one activity.
type ClassificationUpdate struct {
	ExternalID     string
	CampaignID     string
	Classification domain.ReplyClassification
}

type ActivityRepository interface {
	// UpsertBatch never overwrites an existing classification.
	UpsertBatch(ctx context.Context, records []*domain.EmailActivityRecord) (int, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.EmailActivityRecord, error)

	// ListUnclassified selects replied, unclassified records with text.
	ListUnclassified(ctx context.Context, connectionID string, offset, limit int) ([]*domain.EmailActivityRecord, error)

	// SaveClassifications writes the batch atomically; already classified
	// records are left untouched.
	SaveClassifications(ctx context.Context, updates []ClassificationUpdate) (int, error)

	// CountByCampaign counts classified replies of a campaign from scratch.
	CountByCampaign(ctx context.Context, campaignID string) (total, positive int, err error)

	// ListStaleCampaigns returns the connection's campaigns that have a
	// classified reply newer than their aggregate, or no aggregate at all.
	ListStaleCampaigns(ctx context.Context, connectionID string) ([]string, error)
}

type CopyFeatureRepository interface {
	UpsertBatch(ctx context.Context, features []*domain.CopyVariantFeatures) (int, error)
	GetByVariantID(ctx context.Context, variantID string) (*domain.CopyVariantFeatures, error)
}

type CampaignRepository interface {
	UpsertAggregates(ctx context.Context, aggregates []*domain.CampaignAggregate) error
	GetAggregate(ctx context.Context, campaignID string) (*domain.CampaignAggregate, error)
}
