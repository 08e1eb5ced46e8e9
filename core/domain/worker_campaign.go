package domain

import (
	"math"
	"time"
)

// CampaignAggregate is derived from classified replies and never edited by hand.
type CampaignAggregate struct {
	CampaignID      string    `json:"campaign_id"`
	PositiveReplies int       `json:"positive_replies"`
	TotalReplies    int       `json:"total_replies"`
	PositiveRate    float64   `json:"positive_rate"`
	RecomputedAt    time.Time `json:"recomputed_at"`
}

// NewCampaignAggregate computes the positive rate as a percentage, zero without replies.
func NewCampaignAggregate(campaignID string, positive, total int, now time.Time) *CampaignAggregate {
	if positive > total {
		positive = total
	}
	var rate float64
	if total > 0 {
		rate = math.Round(float64(positive)/float64(total)*100*100) / 100
	}
	return &CampaignAggregate{
		CampaignID:      campaignID,
		PositiveReplies: positive,
		TotalReplies:    total,
		PositiveRate:    rate,
		RecomputedAt:    now,
	}
}
