package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// =============================================================================
// Generic batch upsert
// =============================================================================

// maxParams stays under the bind-parameter limits of PostgreSQL and SQLite.
const maxParams = 30000

// UpsertSpec describes an insert-or-overwrite keyed by the conflict columns.
type UpsertSpec struct {
	Table    string
	Columns  []string
	Conflict []string
	// Update lists the columns overwritten on conflict. Nil means every
	// column that is not part of the key.
	Update []string
}

func (s UpsertSpec) updateColumns() []string {
	if s.Update != nil {
		return s.Update
	}
	key := make(map[string]bool, len(s.Conflict))
	for _, c := range s.Conflict {
		key[c] = true
	}
	cols := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !key[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// BuildUpsert returns the statement for n rows with "?" placeholders.
func BuildUpsert(spec UpsertSpec, n int) (string, error) {
	if spec.Table == "" || len(spec.Columns) == 0 || len(spec.Conflict) == 0 || n <= 0 {
		return "", ErrInvalidInput
	}

	quote := func(names []string) []string {
		q := make([]string, len(names))
		for i, name := range names {
			q[i] = pq.QuoteIdentifier(name)
		}
		return q
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(spec.Columns)), ", ") + ")"
	rows := make([]string, n)
	for i := range rows {
		rows[i] = row
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) ",
		pq.QuoteIdentifier(spec.Table),
		strings.Join(quote(spec.Columns), ", "),
		strings.Join(rows, ", "),
		strings.Join(quote(spec.Conflict), ", "),
	)

	update := spec.updateColumns()
	if len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String(), nil
	}
	sets := make([]string, len(update))
	for i, col := range quote(update) {
		sets[i] = col + " = excluded." + col
	}
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	return b.String(), nil
}

// Upsert writes rows in one transaction and returns the affected row count.
// Each row holds one value per spec column, in column order.
func Upsert(ctx context.Context, db *sqlx.DB, spec UpsertSpec, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for _, r := range rows {
		if len(r) != len(spec.Columns) {
			return 0, fmt.Errorf("%w: row has %d values for %d columns", ErrInvalidInput, len(r), len(spec.Columns))
		}
	}

	chunk := max(1, maxParams/len(spec.Columns))
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	affected := 0
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		query, err := BuildUpsert(spec, end-start)
		if err != nil {
			return 0, err
		}
		args := make([]any, 0, (end-start)*len(spec.Columns))
		for _, r := range rows[start:end] {
			args = append(args, r...)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return 0, fmt.Errorf("upsert %s: %w", spec.Table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(end - start)
		}
		affected += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}
