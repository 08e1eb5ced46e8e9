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
// ProgressAdapter - sync progress per connection and job
// =============================================================================

type ProgressAdapter struct {
	db *sqlx.DB
}

func NewProgressAdapter(db *sqlx.DB) *ProgressAdapter {
	return &ProgressAdapter{db: db}
}

// =============================================================================
// Entity
// =============================================================================

type progressEntity struct {
	ConnectionID string         `db:"connection_id"`
	Job          string         `db:"job"`
	Cursor       int            `db:"cursor_offset"`
	TotalKnown   sql.NullInt64  `db:"total_known"`
	Status       string         `db:"status"`
	RunID        sql.NullString `db:"run_id"`
	StartedAt    sql.NullTime   `db:"started_at"`
	HeartbeatAt  sql.NullTime   `db:"heartbeat_at"`
	LastError    sql.NullString `db:"last_error"`

	LastSuccessAt sql.NullTime `db:"last_success_at"`
	LastFetched   int          `db:"last_fetched"`
	LastUpserted  int          `db:"last_upserted"`
	LastErrors    int          `db:"last_errors"`

	UpdatedAt time.Time `db:"updated_at"`
}

func (e *progressEntity) toDomain() *domain.SyncProgress {
	return &domain.SyncProgress{
		ConnectionID:  e.ConnectionID,
		Job:           domain.JobKind(e.Job),
		Cursor:        e.Cursor,
		TotalKnown:    intPtr(e.TotalKnown),
		Status:        domain.SyncStatus(e.Status),
		RunID:         e.RunID.String,
		StartedAt:     timePtr(e.StartedAt),
		HeartbeatAt:   timePtr(e.HeartbeatAt),
		LastError:     e.LastError.String,
		LastSuccessAt: timePtr(e.LastSuccessAt),
		LastFetched:   e.LastFetched,
		LastUpserted:  e.LastUpserted,
		LastErrors:    e.LastErrors,
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
}

var progressUpsert = UpsertSpec{
	Table: "sync_progress",
	Columns: []string{
		"connection_id", "job", "cursor_offset", "total_known", "status", "run_id",
		"started_at", "heartbeat_at", "last_error", "last_success_at",
		"last_fetched", "last_upserted", "last_errors", "updated_at",
	},
	Conflict: []string{"connection_id", "job"},
}

// =============================================================================
// CRUD
// =============================================================================

func (a *ProgressAdapter) Get(ctx context.Context, connectionID string, job domain.JobKind) (*domain.SyncProgress, error) {
	var entity progressEntity
	query := a.db.Rebind(`SELECT * FROM sync_progress WHERE connection_id = ? AND job = ?`)
	if err := a.db.GetContext(ctx, &entity, query, connectionID, string(job)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *ProgressAdapter) Save(ctx context.Context, p *domain.SyncProgress) error {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := Upsert(ctx, a.db, progressUpsert, [][]any{{
		p.ConnectionID, string(p.Job), p.Cursor, nullInt(p.TotalKnown), string(p.Status),
		nullString(p.RunID), nullTime(p.StartedAt), nullTime(p.HeartbeatAt),
		nullString(p.LastError), nullTime(p.LastSuccessAt),
		p.LastFetched, p.LastUpserted, p.LastErrors, updated.UTC(),
	}})
	return err
}

func (a *ProgressAdapter) ListByStatus(ctx context.Context, status domain.SyncStatus) ([]*domain.SyncProgress, error) {
	var entities []progressEntity
	query := a.db.Rebind(`
		SELECT * FROM sync_progress
		WHERE status = ?
		ORDER BY connection_id, job
	`)
	if err := a.db.SelectContext(ctx, &entities, query, string(status)); err != nil {
		return nil, err
	}

	list := make([]*domain.SyncProgress, len(entities))
	for i := range entities {
		list[i] = entities[i].toDomain()
	}
	return list, nil
}
