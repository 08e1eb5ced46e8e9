package domain

import (
	"time"
)

// =============================================================================
// Sync Status & Job Kinds
// =============================================================================

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial" // cap reached, resumes from cursor
	SyncStatusError   SyncStatus = "error"
)

type JobKind string

const (
	JobCallSync      JobKind = "calls"
	JobReplySync     JobKind = "replies"
	JobReplyClassify JobKind = "reply_classify"
	JobCopyFeatures  JobKind = "copy_features"
)

// JobKinds lists every job the worker knows how to run.
var JobKinds = []JobKind{JobCallSync, JobReplySync, JobReplyClassify, JobCopyFeatures}

// ParseJobKind returns ok=false for unknown job names.
func ParseJobKind(s string) (JobKind, bool) {
	for _, k := range JobKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// =============================================================================
// SyncProgress - per connection and job
// =============================================================================

type SyncProgress struct {
	ConnectionID string  `json:"connection_id"`
	Job          JobKind `json:"job"`

	Cursor     int        `json:"cursor"`
	TotalKnown *int       `json:"total_known,omitempty"`
	Status     SyncStatus `json:"status"`

	RunID       string     `json:"run_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`

	LastError     string     `json:"last_error,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	// Counters of the most recent run
	LastFetched  int `json:"last_fetched"`
	LastUpserted int `json:"last_upserted"`
	LastErrors   int `json:"last_errors"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSyncProgress returns the state of a connection that has never run.
func NewSyncProgress(connectionID string, job JobKind) *SyncProgress {
	return &SyncProgress{
		ConnectionID: connectionID,
		Job:          job,
		Status:       SyncStatusIdle,
	}
}

// IsStale reports a running state whose heartbeat is older than timeout.
func (p *SyncProgress) IsStale(now time.Time, timeout time.Duration) bool {
	if p.Status != SyncStatusRunning {
		return false
	}
	if p.HeartbeatAt == nil {
		return true
	}
	return now.Sub(*p.HeartbeatAt) > timeout
}

// CanStart is false while another run holds a fresh heartbeat.
func (p *SyncProgress) CanStart(now time.Time, timeout time.Duration) bool {
	if p.Status != SyncStatusRunning {
		return true
	}
	return p.IsStale(now, timeout)
}

// Heartbeat refreshes the liveness timestamp.
func (p *SyncProgress) Heartbeat(now time.Time) {
	p.HeartbeatAt = &now
	p.UpdatedAt = now
}

// SyncPercent returns progress against the known total, 0 when unknown.
func (p *SyncProgress) SyncPercent() float64 {
	if p.TotalKnown == nil || *p.TotalKnown == 0 {
		return 0
	}
	return float64(p.Cursor) / float64(*p.TotalKnown) * 100
}

// =============================================================================
// Trigger surface
// =============================================================================

type TriggerRequest struct {
	ConnectionID string  `json:"source_connection_id"`
	Job          JobKind `json:"job,omitempty"`
	ResetCursor  bool    `json:"reset_cursor,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
	Cursor       *int    `json:"cursor,omitempty"`
}

type RunSummary struct {
	RunID        string     `json:"run_id"`
	ConnectionID string     `json:"source_connection_id"`
	Job          JobKind    `json:"job"`
	Status       SyncStatus `json:"status"`

	Fetched  int `json:"fetched"`
	Upserted int `json:"upserted"`
	Errors   int `json:"errors"`
	Skipped  int `json:"skipped"`
	Pages    int `json:"pages"`

	Partial      bool     `json:"partial"`
	NextCursor   *int     `json:"next_cursor,omitempty"`
	ErrorSamples []string `json:"error_samples,omitempty"`
	LastError    string   `json:"last_error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
}
