package domain

import "time"

// =============================================================================
// Email Copy Variants & Features
// =============================================================================

// CopyVariant is one subject+body pair of a campaign sequence step.
type CopyVariant struct {
	VariantID    string `json:"variant_id"`
	ConnectionID string `json:"connection_id"`
	CampaignID   string `json:"campaign_id,omitempty"`
	Step         int    `json:"step,omitempty"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
}

type PunctuationClass string

const (
	PunctuationQuestion    PunctuationClass = "question"
	PunctuationExclamation PunctuationClass = "exclamation"
	PunctuationPeriod      PunctuationClass = "period"
	PunctuationEllipsis    PunctuationClass = "ellipsis"
	PunctuationNone        PunctuationClass = "none"
)

type CapitalizationStyle string

const (
	CapsAllCaps      CapitalizationStyle = "all_caps"
	CapsAllLower     CapitalizationStyle = "all_lower"
	CapsSentenceCase CapitalizationStyle = "sentence_case"
	CapsTitleCase    CapitalizationStyle = "title_case"
	CapsNormal       CapitalizationStyle = "normal"
)

type TokenType string

const (
	TokenNone    TokenType = "none"
	TokenName    TokenType = "name"
	TokenCompany TokenType = "company"
	TokenMixed   TokenType = "mixed"
	TokenOther   TokenType = "other"
)

type FirstWordCategory string

const (
	FirstWordGreeting        FirstWordCategory = "greeting"
	FirstWordReFwd           FirstWordCategory = "re_fwd"
	FirstWordQuestion        FirstWordCategory = "question_word"
	FirstWordNumeric         FirstWordCategory = "numeric"
	FirstWordPersonalization FirstWordCategory = "personalization"
	FirstWordOther           FirstWordCategory = "other"
)

type CTAType string

const (
	CTAChoice     CTAType = "choice"
	CTADirect     CTAType = "direct"
	CTAMeeting    CTAType = "meeting"
	CTASoft       CTAType = "soft"
	CTAValueFirst CTAType = "value_first"
	CTANone       CTAType = "none"
)

type CTAPosition string

const (
	CTAPositionEarly  CTAPosition = "early"
	CTAPositionMiddle CTAPosition = "middle"
	CTAPositionEnd    CTAPosition = "end"
	CTAPositionNone   CTAPosition = "none"
)

type CTAStrength string

const (
	CTAStrengthStrong CTAStrength = "strong"
	CTAStrengthMedium CTAStrength = "medium"
	CTAStrengthWeak   CTAStrength = "weak"
	CTAStrengthNone   CTAStrength = "none"
)

type Tone string

const (
	ToneCasual       Tone = "casual"
	ToneFormal       Tone = "formal"
	ToneDirect       Tone = "direct"
	ToneProfessional Tone = "professional"
)

type OpeningLine string

const (
	OpeningGreeting        OpeningLine = "greeting"
	OpeningQuestion        OpeningLine = "question"
	OpeningObservation     OpeningLine = "observation"
	OpeningCompliment      OpeningLine = "compliment"
	OpeningDirectIntro     OpeningLine = "direct_intro"
	OpeningPersonalization OpeningLine = "personalization"
	OpeningOther           OpeningLine = "other"
)

type SubjectFeatures struct {
	Length               int                 `json:"length"`
	WordCount            int                 `json:"word_count"`
	Punctuation          PunctuationClass    `json:"punctuation"`
	Capitalization       CapitalizationStyle `json:"capitalization"`
	PersonalizationCount int                 `json:"personalization_count"`
	PersonalizationType  TokenType           `json:"personalization_type"`
	FirstWord            FirstWordCategory   `json:"first_word"`
	UrgencyScore         int                 `json:"urgency_score"`
}

type BodyFeatures struct {
	ParagraphCount         int         `json:"paragraph_count"`
	SentenceCount          int         `json:"sentence_count"`
	WordCount              int         `json:"word_count"`
	QuestionCount          int         `json:"question_count"`
	BulletCount            int         `json:"bullet_count"`
	HasBullets             bool        `json:"has_bullets"`
	LinkCount              int         `json:"link_count"`
	HasLinks               bool        `json:"has_links"`
	HasCalendarLink        bool        `json:"has_calendar_link"`
	CTAType                CTAType     `json:"cta_type"`
	CTAPosition            CTAPosition `json:"cta_position"`
	CTAStrength            CTAStrength `json:"cta_strength"`
	Tone                   Tone        `json:"tone"`
	ReadingGrade           float64     `json:"reading_grade"`
	YouIRatio              float64     `json:"you_i_ratio"`
	PersonalizationCount   int         `json:"personalization_count"`
	PersonalizationDensity float64     `json:"personalization_density"`
	OpeningLine            OpeningLine `json:"opening_line"`
}

// CopyVariantFeatures is a pure function of the variant's current text.
type CopyVariantFeatures struct {
	VariantID    string          `json:"variant_id"`
	ConnectionID string          `json:"connection_id"`
	CampaignID   string          `json:"campaign_id,omitempty"`
	Subject      SubjectFeatures `json:"subject"`
	Body         BodyFeatures    `json:"body"`
	ExtractedAt  time.Time       `json:"extracted_at"`
}
