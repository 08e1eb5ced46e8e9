package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"outreach_worker/core/domain"
)

// =============================================================================
// CallAdapter
// =============================================================================

type CallAdapter struct {
	db *sqlx.DB
}

func NewCallAdapter(db *sqlx.DB) *CallAdapter {
	return &CallAdapter{db: db}
}

var callUpsert = UpsertSpec{
	Table: "call_records",
	Columns: []string{
		"external_id", "connection_id", "direction", "contact_name", "company", "phone",
		"duration_seconds", "call_date", "call_datetime", "raw_outcome", "transcript", "scores",
		"category", "is_connection", "is_meeting", "is_voicemail", "is_bad_data",
		"composite_score", "synced_at",
	},
	Conflict: []string{"external_id"},
}

type callEntity struct {
	ExternalID      string          `db:"external_id"`
	ConnectionID    string          `db:"connection_id"`
	Direction       sql.NullString  `db:"direction"`
	ContactName     sql.NullString  `db:"contact_name"`
	Company         sql.NullString  `db:"company"`
	Phone           sql.NullString  `db:"phone"`
	DurationSeconds sql.NullInt64   `db:"duration_seconds"`
	CallDate        sql.NullTime    `db:"call_date"`
	CallDateTime    sql.NullTime    `db:"call_datetime"`
	RawOutcome      sql.NullString  `db:"raw_outcome"`
	Transcript      sql.NullString  `db:"transcript"`
	Scores          sql.NullString  `db:"scores"`
	Category        string          `db:"category"`
	IsConnection    bool            `db:"is_connection"`
	IsMeeting       bool            `db:"is_meeting"`
	IsVoicemail     bool            `db:"is_voicemail"`
	IsBadData       bool            `db:"is_bad_data"`
	CompositeScore  sql.NullFloat64 `db:"composite_score"`
	SyncedAt        time.Time       `db:"synced_at"`
}

func (e *callEntity) toDomain() (*domain.CallRecord, error) {
	rec := &domain.CallRecord{
		ExternalID:      e.ExternalID,
		ConnectionID:    e.ConnectionID,
		Direction:       domain.CallDirection(e.Direction.String),
		ContactName:     e.ContactName.String,
		Company:         e.Company.String,
		Phone:           e.Phone.String,
		DurationSeconds: intPtr(e.DurationSeconds),
		CallDate:        timePtr(e.CallDate),
		CallDateTime:    timePtr(e.CallDateTime),
		RawOutcome:      e.RawOutcome.String,
		Transcript:      e.Transcript.String,
		Disposition: domain.Disposition{
			Category:     e.Category,
			IsConnection: e.IsConnection,
			IsMeeting:    e.IsMeeting,
			IsVoicemail:  e.IsVoicemail,
			IsBadData:    e.IsBadData,
		},
		CompositeScore: floatPtr(e.CompositeScore),
		SyncedAt:       e.SyncedAt.UTC(),
	}
	if e.Scores.Valid && e.Scores.String != "" {
		if err := json.Unmarshal([]byte(e.Scores.String), &rec.Scores); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func callRow(r *domain.CallRecord) ([]any, error) {
	var scores sql.NullString
	if len(r.Scores) > 0 {
		b, err := json.Marshal(r.Scores)
		if err != nil {
			return nil, err
		}
		scores = sql.NullString{String: string(b), Valid: true}
	}
	category := r.Category
	if category == "" {
		category = "unknown"
	}
	return []any{
		r.ExternalID, r.ConnectionID, nullString(string(r.Direction)), nullString(r.ContactName),
		nullString(r.Company), nullString(r.Phone), nullInt(r.DurationSeconds),
		nullTime(r.CallDate), nullTime(r.CallDateTime), nullString(r.RawOutcome),
		nullString(r.Transcript), scores,
		category, r.IsConnection, r.IsMeeting, r.IsVoicemail, r.IsBadData,
		nullFloat(r.CompositeScore), r.SyncedAt.UTC(),
	}, nil
}

func (a *CallAdapter) UpsertBatch(ctx context.Context, records []*domain.CallRecord) (int, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		row, err := callRow(r)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	return Upsert(ctx, a.db, callUpsert, rows)
}

func (a *CallAdapter) GetByExternalID(ctx context.Context, externalID string) (*domain.CallRecord, error) {
	var entity callEntity
	query := a.db.Rebind(`SELECT * FROM call_records WHERE external_id = ?`)
	if err := a.db.GetContext(ctx, &entity, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain()
}

func (a *CallAdapter) CountByConnection(ctx context.Context, connectionID string) (int, error) {
	var n int
	query := a.db.Rebind(`SELECT COUNT(*) FROM call_records WHERE connection_id = ?`)
	if err := a.db.GetContext(ctx, &n, query, connectionID); err != nil {
		return 0, err
	}
	return n, nil
}
