package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"outreach_worker/core/domain"
)

// =============================================================================
// CopyFeatureAdapter
// =============================================================================

type CopyFeatureAdapter struct {
	db *sqlx.DB
}

func NewCopyFeatureAdapter(db *sqlx.DB) *CopyFeatureAdapter {
	return &CopyFeatureAdapter{db: db}
}

var copyFeatureUpsert = UpsertSpec{
	Table: "copy_variant_features",
	Columns: []string{
		"variant_id", "connection_id", "campaign_id",
		"subject_length", "subject_word_count", "subject_punctuation", "subject_capitalization",
		"subject_personalization_count", "subject_personalization_type", "subject_first_word", "urgency_score",
		"paragraph_count", "sentence_count", "word_count", "question_count", "bullet_count", "has_bullets",
		"link_count", "has_links", "has_calendar_link", "cta_type", "cta_position", "cta_strength",
		"tone", "reading_grade", "you_i_ratio", "personalization_count", "personalization_density",
		"opening_line", "extracted_at",
	},
	Conflict: []string{"variant_id"},
}

type copyFeatureEntity struct {
	VariantID                   string         `db:"variant_id"`
	ConnectionID                string         `db:"connection_id"`
	CampaignID                  sql.NullString `db:"campaign_id"`
	SubjectLength               int            `db:"subject_length"`
	SubjectWordCount            int            `db:"subject_word_count"`
	SubjectPunctuation          string         `db:"subject_punctuation"`
	SubjectCapitalization       string         `db:"subject_capitalization"`
	SubjectPersonalizationCount int            `db:"subject_personalization_count"`
	SubjectPersonalizationType  string         `db:"subject_personalization_type"`
	SubjectFirstWord            string         `db:"subject_first_word"`
	UrgencyScore                int            `db:"urgency_score"`
	ParagraphCount              int            `db:"paragraph_count"`
	SentenceCount               int            `db:"sentence_count"`
	WordCount                   int            `db:"word_count"`
	QuestionCount               int            `db:"question_count"`
	BulletCount                 int            `db:"bullet_count"`
	HasBullets                  bool           `db:"has_bullets"`
	LinkCount                   int            `db:"link_count"`
	HasLinks                    bool           `db:"has_links"`
	HasCalendarLink             bool           `db:"has_calendar_link"`
	CTAType                     string         `db:"cta_type"`
	CTAPosition                 string         `db:"cta_position"`
	CTAStrength                 string         `db:"cta_strength"`
	Tone                        string         `db:"tone"`
	ReadingGrade                float64        `db:"reading_grade"`
	YouIRatio                   float64        `db:"you_i_ratio"`
	PersonalizationCount        int            `db:"personalization_count"`
	PersonalizationDensity      float64        `db:"personalization_density"`
	OpeningLine                 string         `db:"opening_line"`
	ExtractedAt                 time.Time      `db:"extracted_at"`
}

func (e *copyFeatureEntity) toDomain() *domain.CopyVariantFeatures {
	return &domain.CopyVariantFeatures{
		VariantID:    e.VariantID,
		ConnectionID: e.ConnectionID,
		CampaignID:   e.CampaignID.String,
		Subject: domain.SubjectFeatures{
			Length:               e.SubjectLength,
			WordCount:            e.SubjectWordCount,
			Punctuation:          domain.PunctuationClass(e.SubjectPunctuation),
			Capitalization:       domain.CapitalizationStyle(e.SubjectCapitalization),
			PersonalizationCount: e.SubjectPersonalizationCount,
			PersonalizationType:  domain.TokenType(e.SubjectPersonalizationType),
			FirstWord:            domain.FirstWordCategory(e.SubjectFirstWord),
			UrgencyScore:         e.UrgencyScore,
		},
		Body: domain.BodyFeatures{
			ParagraphCount:         e.ParagraphCount,
			SentenceCount:          e.SentenceCount,
			WordCount:              e.WordCount,
			QuestionCount:          e.QuestionCount,
			BulletCount:            e.BulletCount,
			HasBullets:             e.HasBullets,
			LinkCount:              e.LinkCount,
			HasLinks:               e.HasLinks,
			HasCalendarLink:        e.HasCalendarLink,
			CTAType:                domain.CTAType(e.CTAType),
			CTAPosition:            domain.CTAPosition(e.CTAPosition),
			CTAStrength:            domain.CTAStrength(e.CTAStrength),
			Tone:                   domain.Tone(e.Tone),
			ReadingGrade:           e.ReadingGrade,
			YouIRatio:              e.YouIRatio,
			PersonalizationCount:   e.PersonalizationCount,
			PersonalizationDensity: e.PersonalizationDensity,
			OpeningLine:            domain.OpeningLine(e.OpeningLine),
		},
		ExtractedAt: e.ExtractedAt.UTC(),
	}
}

func (a *CopyFeatureAdapter) UpsertBatch(ctx context.Context, features []*domain.CopyVariantFeatures) (int, error) {
	rows := make([][]any, 0, len(features))
	for _, f := range features {
		s, b := f.Subject, f.Body
		rows = append(rows, []any{
			f.VariantID, f.ConnectionID, nullString(f.CampaignID),
			s.Length, s.WordCount, string(s.Punctuation), string(s.Capitalization),
			s.PersonalizationCount, string(s.PersonalizationType), string(s.FirstWord), s.UrgencyScore,
			b.ParagraphCount, b.SentenceCount, b.WordCount, b.QuestionCount, b.BulletCount, b.HasBullets,
			b.LinkCount, b.HasLinks, b.HasCalendarLink, string(b.CTAType), string(b.CTAPosition), string(b.CTAStrength),
			string(b.Tone), b.ReadingGrade, b.YouIRatio, b.PersonalizationCount, b.PersonalizationDensity,
			string(b.OpeningLine), f.ExtractedAt.UTC(),
		})
	}
	return Upsert(ctx, a.db, copyFeatureUpsert, rows)
}

func (a *CopyFeatureAdapter) GetByVariantID(ctx context.Context, variantID string) (*domain.CopyVariantFeatures, error) {
	var entity copyFeatureEntity
	query := a.db.Rebind(`SELECT * FROM copy_variant_features WHERE variant_id = ?`)
	if err := a.db.GetContext(ctx, &entity, query, variantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

// =============================================================================
// CampaignAdapter
// =============================================================================

type CampaignAdapter struct {
	db *sqlx.DB
}

func NewCampaignAdapter(db *sqlx.DB) *CampaignAdapter {
	return &CampaignAdapter{db: db}
}

var campaignUpsert = UpsertSpec{
	Table:    "campaign_aggregates",
	Columns:  []string{"campaign_id", "positive_replies", "total_replies", "positive_rate", "recomputed_at"},
	Conflict: []string{"campaign_id"},
}

func (a *CampaignAdapter) UpsertAggregates(ctx context.Context, aggregates []*domain.CampaignAggregate) error {
	rows := make([][]any, 0, len(aggregates))
	for _, agg := range aggregates {
		rows = append(rows, []any{
			agg.CampaignID, agg.PositiveReplies, agg.TotalReplies, agg.PositiveRate, agg.RecomputedAt.UTC(),
		})
	}
	_, err := Upsert(ctx, a.db, campaignUpsert, rows)
	return err
}

func (a *CampaignAdapter) GetAggregate(ctx context.Context, campaignID string) (*domain.CampaignAggregate, error) {
	var entity struct {
		CampaignID      string    `db:"campaign_id"`
		PositiveReplies int       `db:"positive_replies"`
		TotalReplies    int       `db:"total_replies"`
		PositiveRate    float64   `db:"positive_rate"`
		RecomputedAt    time.Time `db:"recomputed_at"`
	}
	query := a.db.Rebind(`SELECT * FROM campaign_aggregates WHERE campaign_id = ?`)
	if err := a.db.GetContext(ctx, &entity, query, campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.CampaignAggregate{
		CampaignID:      entity.CampaignID,
		PositiveReplies: entity.PositiveReplies,
		TotalReplies:    entity.TotalReplies,
		PositiveRate:    entity.PositiveRate,
		RecomputedAt:    entity.RecomputedAt.UTC(),
	}, nil
}
