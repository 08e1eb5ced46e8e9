package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Reply Classification
// =============================================================================

type ReplyCategory string

const (
	ReplyMeetingRequest  ReplyCategory = "meeting_request"
	ReplyInterested      ReplyCategory = "interested"
	ReplyQuestion        ReplyCategory = "question"
	ReplyReferral        ReplyCategory = "referral"
	ReplyNotNow          ReplyCategory = "not_now"
	ReplyNotInterested   ReplyCategory = "not_interested"
	ReplyUnsubscribe     ReplyCategory = "unsubscribe"
	ReplyOutOfOffice     ReplyCategory = "out_of_office"
	ReplyNegativeHostile ReplyCategory = "negative_hostile"
	ReplyNeutral         ReplyCategory = "neutral"
)

// ReplyCategories lists the closed category set.
var ReplyCategories = []ReplyCategory{
	ReplyMeetingRequest,
	ReplyInterested,
	ReplyQuestion,
	ReplyReferral,
	ReplyNotNow,
	ReplyNotInterested,
	ReplyUnsubscribe,
	ReplyOutOfOffice,
	ReplyNegativeHostile,
	ReplyNeutral,
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

var categorySentiment = map[ReplyCategory]Sentiment{
	ReplyMeetingRequest:  SentimentPositive,
	ReplyInterested:      SentimentPositive,
	ReplyReferral:        SentimentPositive,
	ReplyQuestion:        SentimentNeutral,
	ReplyNotNow:          SentimentNeutral,
	ReplyOutOfOffice:     SentimentNeutral,
	ReplyNeutral:         SentimentNeutral,
	ReplyNotInterested:   SentimentNegative,
	ReplyUnsubscribe:     SentimentNegative,
	ReplyNegativeHostile: SentimentNegative,
}

// ParseReplyCategory accepts a category name in any case; ok is false for unknown names.
func ParseReplyCategory(s string) (ReplyCategory, bool) {
	c := ReplyCategory(strings.ToLower(strings.TrimSpace(s)))
	_, ok := categorySentiment[c]
	return c, ok
}

// Sentiment returns the sentiment implied by the category.
func (c ReplyCategory) Sentiment() Sentiment {
	if s, ok := categorySentiment[c]; ok {
		return s
	}
	return SentimentNeutral
}

// IsPositive is true only for meeting_request and interested.
func (c ReplyCategory) IsPositive() bool {
	return c == ReplyMeetingRequest || c == ReplyInterested
}

type ClassifierTier string

const (
	TierRules ClassifierTier = "rules"
	TierAI    ClassifierTier = "ai"
)

// ReplyClassification is set on a record as a whole or not at all.
type ReplyClassification struct {
	Category     ReplyCategory  `json:"category"`
	Sentiment    Sentiment      `json:"sentiment"`
	IsPositive   bool           `json:"is_positive"`
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning,omitempty"`
	Tier         ClassifierTier `json:"tier"`
	ClassifiedAt time.Time      `json:"classified_at"`
}

// NewReplyClassification derives sentiment and is_positive from the category.
func NewReplyClassification(category ReplyCategory, confidence float64, reasoning string, tier ClassifierTier) ReplyClassification {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return ReplyClassification{
		Category:   category,
		Sentiment:  category.Sentiment(),
		IsPositive: category.IsPositive(),
		Confidence: confidence,
		Reasoning:  reasoning,
		Tier:       tier,
	}
}

// =============================================================================
// Email Activity - inbound replies per campaign
// =============================================================================

type EmailActivityRecord struct {
	ExternalID   string     `json:"external_id"`
	ConnectionID string     `json:"connection_id"`
	CampaignID   string     `json:"campaign_id"`
	LeadEmail    string     `json:"lead_email,omitempty"`
	Subject      string     `json:"subject,omitempty"`
	ReplyText    string     `json:"reply_text,omitempty"`
	Replied      bool       `json:"replied"`
	RepliedAt    *time.Time `json:"replied_at,omitempty"`

	Classification *ReplyClassification `json:"classification,omitempty"`

	SyncedAt time.Time `json:"synced_at"`
}

// IsClassified reports whether the classification has been written.
func (r *EmailActivityRecord) IsClassified() bool {
	return r.Classification != nil
}

// HasUsableText reports whether there is any text to classify.
func (r *EmailActivityRecord) HasUsableText() bool {
	return strings.TrimSpace(r.ReplyText) != ""
}
