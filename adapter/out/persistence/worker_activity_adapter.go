package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

// =============================================================================
// ActivityAdapter - reply activity and its classification
// =============================================================================

type ActivityAdapter struct {
	db *sqlx.DB
}

func NewActivityAdapter(db *sqlx.DB) *ActivityAdapter {
	return &ActivityAdapter{db: db}
}

// The sync upsert never lists the classification columns, so re-syncing a
// reply keeps its classification.
var activityUpsert = UpsertSpec{
	Table: "email_activities",
	Columns: []string{
		"external_id", "connection_id", "campaign_id", "lead_email", "subject",
		"reply_text", "replied", "replied_at", "synced_at",
	},
	Conflict: []string{"external_id"},
}

const activityColumns = `external_id, connection_id, campaign_id, lead_email, subject, reply_text,
	replied, replied_at, category, sentiment, is_positive, confidence, reasoning,
	classifier_tier, classified_at, synced_at`

type activityEntity struct {
	ExternalID     string          `db:"external_id"`
	ConnectionID   string          `db:"connection_id"`
	CampaignID     sql.NullString  `db:"campaign_id"`
	LeadEmail      sql.NullString  `db:"lead_email"`
	Subject        sql.NullString  `db:"subject"`
	ReplyText      sql.NullString  `db:"reply_text"`
	Replied        bool            `db:"replied"`
	RepliedAt      sql.NullTime    `db:"replied_at"`
	Category       sql.NullString  `db:"category"`
	Sentiment      sql.NullString  `db:"sentiment"`
	IsPositive     sql.NullBool    `db:"is_positive"`
	Confidence     sql.NullFloat64 `db:"confidence"`
	Reasoning      sql.NullString  `db:"reasoning"`
	ClassifierTier sql.NullString  `db:"classifier_tier"`
	ClassifiedAt   sql.NullTime    `db:"classified_at"`
	SyncedAt       time.Time       `db:"synced_at"`
}

func (e *activityEntity) toDomain() *domain.EmailActivityRecord {
	rec := &domain.EmailActivityRecord{
		ExternalID:   e.ExternalID,
		ConnectionID: e.ConnectionID,
		CampaignID:   e.CampaignID.String,
		LeadEmail:    e.LeadEmail.String,
		Subject:      e.Subject.String,
		ReplyText:    e.ReplyText.String,
		Replied:      e.Replied,
		RepliedAt:    timePtr(e.RepliedAt),
		SyncedAt:     e.SyncedAt.UTC(),
	}
	// the classification is written as a whole, classified_at last
	if e.ClassifiedAt.Valid {
		rec.Classification = &domain.ReplyClassification{
			Category:     domain.ReplyCategory(e.Category.String),
			Sentiment:    domain.Sentiment(e.Sentiment.String),
			IsPositive:   e.IsPositive.Bool,
			Confidence:   e.Confidence.Float64,
			Reasoning:    e.Reasoning.String,
			Tier:         domain.ClassifierTier(e.ClassifierTier.String),
			ClassifiedAt: e.ClassifiedAt.Time.UTC(),
		}
	}
	return rec
}

func (a *ActivityAdapter) UpsertBatch(ctx context.Context, records []*domain.EmailActivityRecord) (int, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.ExternalID, r.ConnectionID, nullString(r.CampaignID), nullString(r.LeadEmail),
			nullString(r.Subject), nullString(r.ReplyText), r.Replied, nullTime(r.RepliedAt),
			r.SyncedAt.UTC(),
		})
	}
	return Upsert(ctx, a.db, activityUpsert, rows)
}

func (a *ActivityAdapter) GetByExternalID(ctx context.Context, externalID string) (*domain.EmailActivityRecord, error) {
	var entity activityEntity
	query := a.db.Rebind(`SELECT ` + activityColumns + ` FROM email_activities WHERE external_id = ?`)
	if err := a.db.GetContext(ctx, &entity, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *ActivityAdapter) ListUnclassified(ctx context.Context, connectionID string, offset, limit int) ([]*domain.EmailActivityRecord, error) {
	var entities []activityEntity
	query := a.db.Rebind(`SELECT ` + activityColumns + `
		FROM email_activities
		WHERE connection_id = ?
		  AND replied = TRUE
		  AND classified_at IS NULL
		  AND reply_text IS NOT NULL
		  AND TRIM(reply_text) <> ''
		ORDER BY external_id
		LIMIT ? OFFSET ?`)
	if err := a.db.SelectContext(ctx, &entities, query, connectionID, limit, offset); err != nil {
		return nil, err
	}
	records := make([]*domain.EmailActivityRecord, 0, len(entities))
	for i := range entities {
		records = append(records, entities[i].toDomain())
	}
	return records, nil
}

// SaveClassifications writes the batch in one transaction. The classified_at
// guard leaves records classified by an earlier run untouched.
func (a *ActivityAdapter) SaveClassifications(ctx context.Context, updates []out.ClassificationUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := tx.Rebind(`UPDATE email_activities
		SET category = ?, sentiment = ?, is_positive = ?, confidence = ?, reasoning = ?,
		    classifier_tier = ?, classified_at = ?
		WHERE external_id = ? AND classified_at IS NULL`)

	saved := 0
	for _, u := range updates {
		c := u.Classification
		classifiedAt := c.ClassifiedAt
		if classifiedAt.IsZero() {
			classifiedAt = time.Now()
		}
		res, err := tx.ExecContext(ctx, query,
			string(c.Category), string(c.Sentiment), c.IsPositive, c.Confidence,
			nullString(c.Reasoning), string(c.Tier), classifiedAt.UTC(), u.ExternalID)
		if err != nil {
			return 0, fmt.Errorf("classify %s: %w", u.ExternalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		saved += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return saved, nil
}

func (a *ActivityAdapter) CountByCampaign(ctx context.Context, campaignID string) (int, int, error) {
	var counts struct {
		Total    int `db:"total"`
		Positive int `db:"positive"`
	}
	query := a.db.Rebind(`SELECT COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN is_positive THEN 1 ELSE 0 END), 0) AS positive
		FROM email_activities
		WHERE campaign_id = ? AND classified_at IS NOT NULL`)
	if err := a.db.GetContext(ctx, &counts, query, campaignID); err != nil {
		return 0, 0, err
	}
	return counts.Total, counts.Positive, nil
}

func (a *ActivityAdapter) ListStaleCampaigns(ctx context.Context, connectionID string) ([]string, error) {
	var ids []string
	query := a.db.Rebind(`SELECT DISTINCT e.campaign_id
		FROM email_activities e
		LEFT JOIN campaign_aggregates c ON c.campaign_id = e.campaign_id
		WHERE e.connection_id = ?
		  AND e.campaign_id IS NOT NULL
		  AND e.campaign_id <> ''
		  AND e.classified_at IS NOT NULL
		  AND (c.campaign_id IS NULL OR c.recomputed_at < e.classified_at)
		ORDER BY e.campaign_id`)
	if err := a.db.SelectContext(ctx, &ids, query, connectionID); err != nil {
		return nil, err
	}
	return ids, nil
}
