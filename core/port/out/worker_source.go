package out

import (
	"context"
	"errors"
)

// RawRecord is a source-native, field-keyed record. It never crosses the
// normalization boundary.
type RawRecord map[string]any

// SourcePage is one page returned by a paginated source.
type SourcePage struct {
	Records []RawRecord
	HasMore bool
	Total   *int // when the source reports it
}

// RecordSource is an external paginated record source.
type RecordSource interface {
	Fetch(ctx context.Context, offset, limit int) (*SourcePage, error)
}

// SourceProvider resolves the record source of a connection.
type SourceProvider interface {
	ForConnection(connectionID string) (RecordSource, error)
}

// ErrSourceNotConfigured is returned when a connection has no source.
var ErrSourceNotConfigured = errors.New("record source not configured")
