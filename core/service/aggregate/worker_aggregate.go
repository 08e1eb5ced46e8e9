// Package aggregate recomputes campaign rollups from classified replies.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

// Service recounts every touched campaign from scratch. It never adds deltas to
// stored values, so interleaved recomputations converge on the same result.
type Service struct {
	activities out.ActivityRepository
	campaigns  out.CampaignRepository
	now        func() time.Time
}

func NewService(activities out.ActivityRepository, campaigns out.CampaignRepository) *Service {
	return &Service{activities: activities, campaigns: campaigns, now: time.Now}
}

// Recompute rewrites the aggregate of each distinct, non-empty campaign id.
func (s *Service) Recompute(ctx context.Context, campaignIDs []string) ([]*domain.CampaignAggregate, error) {
	ids := distinct(campaignIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	now := s.now()
	aggs := make([]*domain.CampaignAggregate, 0, len(ids))
	for _, id := range ids {
		total, positive, err := s.activities.CountByCampaign(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("count campaign %s: %w", id, err)
		}
		aggs = append(aggs, domain.NewCampaignAggregate(id, positive, total, now))
	}

	if err := s.campaigns.UpsertAggregates(ctx, aggs); err != nil {
		return nil, fmt.Errorf("upsert aggregates: %w", err)
	}
	return aggs, nil
}

// RecomputeStale recomputes the connection's campaigns whose aggregate is
// behind their classified replies.
func (s *Service) RecomputeStale(ctx context.Context, connectionID string) ([]*domain.CampaignAggregate, error) {
	ids, err := s.activities.ListStaleCampaigns(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("list stale campaigns: %w", err)
	}
	return s.Recompute(ctx, ids)
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
