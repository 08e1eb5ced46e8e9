package out

import (
	"context"

	"outreach_worker/core/domain"
)

// ArchivedRecord is a raw source record keyed by its external identifier.
type ArchivedRecord struct {
	ExternalID string
	Payload    RawRecord
}

// RawArchive keeps the raw source payloads for audit and re-normalization.
type RawArchive interface {
	ArchivePage(ctx context.Context, connectionID string, job domain.JobKind, records []ArchivedRecord) error
}
