package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-records/internal/models"
)

// UserRefRow is one row of another store that points into the identity store.
type UserRefRow struct {
	Table  string         `db:"source"`
	RowID  int64          `db:"row_id"`
	Email  string         `db:"email"`
	UserID models.UserRef `db:"user_id"`
}

// ensured is the row shape returned by upsert-by-natural-key statements.
type ensured struct {
	ID      int64 `db:"id"`
	Created bool  `db:"created"`
}

// ensureStatement wraps an INSERT ... ON CONFLICT DO NOTHING RETURNING id so
// the existing row's id is returned when the insert is skipped. lookup is the
// SELECT over the same natural key, reusing the insert's placeholders.
func ensureStatement(insert, lookup string) string {
	return `WITH ins AS (` + insert + ` RETURNING id)
        SELECT id, TRUE AS created FROM ins
        UNION ALL
        SELECT id, FALSE AS created FROM (` + lookup + `) existing
        LIMIT 1`
}

func ensure(ctx context.Context, q sqlx.QueryerContext, op, query string, args ...interface{}) (int64, bool, error) {
	var row ensured
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return row.ID, row.Created, nil
}

// Counts maps a table name to its row count.
type Counts map[string]int64

func countTables(ctx context.Context, q sqlx.QueryerContext, tables []string) (Counts, error) {
	counts := make(Counts, len(tables))
	for _, table := range tables {
		var n int64
		// table names come from the fixed lists below, never from input
		if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM `+table); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
