package copyfeature

import (
	"time"

	"outreach_worker/core/domain"
)

// Extract computes the feature row of a variant. The result depends only on the
// variant's current text, so re-extraction overwrites in place.
func Extract(v *domain.CopyVariant, now time.Time) *domain.CopyVariantFeatures {
	return &domain.CopyVariantFeatures{
		VariantID:    v.VariantID,
		ConnectionID: v.ConnectionID,
		CampaignID:   v.CampaignID,
		Subject:      AnalyzeSubject(v.Subject),
		Body:         AnalyzeBody(v.Body),
		ExtractedAt:  now,
	}
}
