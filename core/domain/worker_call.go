package domain

import (
	"math"
	"time"
)

// =============================================================================
// Call Records - dialer platform call events
// =============================================================================

type CallDirection string

const (
	CallDirectionInbound  CallDirection = "inbound"
	CallDirectionOutbound CallDirection = "outbound"
)

// Disposition is the normalized outcome of a call.
type Disposition struct {
	Category     string `json:"category"`
	IsConnection bool   `json:"is_connection"`
	IsMeeting    bool   `json:"is_meeting"`
	IsVoicemail  bool   `json:"is_voicemail"`
	IsBadData    bool   `json:"is_bad_data"`
}

// CallScore is one AI-assessment sub-score (1-10) attached by the dialer platform.
type CallScore struct {
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
	Justification string  `json:"justification,omitempty"`
}

const (
	MinCallScore = 1.0
	MaxCallScore = 10.0
)

type CallRecord struct {
	ExternalID   string        `json:"external_id"`
	ConnectionID string        `json:"connection_id"`
	Direction    CallDirection `json:"direction,omitempty"`

	ContactName string `json:"contact_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Phone       string `json:"phone,omitempty"`

	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	CallDate        *time.Time `json:"call_date,omitempty"`
	CallDateTime    *time.Time `json:"call_datetime,omitempty"`

	RawOutcome string      `json:"raw_outcome,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	Scores     []CallScore `json:"scores,omitempty"`

	// Derived
	Disposition
	CompositeScore *float64 `json:"composite_score,omitempty"`

	SyncedAt time.Time `json:"synced_at"`
}

// Duration returns the call duration in seconds, zero when unknown.
func (c *CallRecord) Duration() int {
	if c.DurationSeconds == nil {
		return 0
	}
	return *c.DurationSeconds
}

// ApplyDisposition copies the classifier output onto the record.
func (c *CallRecord) ApplyDisposition(d Disposition) {
	c.Disposition = d
}

// RecomputeComposite derives CompositeScore from the current score set.
func (c *CallRecord) RecomputeComposite() {
	c.CompositeScore = CompositeScore(c.Scores)
}

// CompositeScore is the mean of all present scores rounded to 2 decimals, nil if none.
func CompositeScore(scores []CallScore) *float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, s := range scores {
		sum += s.Value
	}
	mean := math.Round(sum/float64(len(scores))*100) / 100
	return &mean
}
