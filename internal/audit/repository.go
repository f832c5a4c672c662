package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository provides PostgreSQL backed timeline reads.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// TimelineWindow returns one window of audit entries, newest first. Zero
// filter values are passed as SQL NULLs and skip their predicate.
func (r *PgRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT actor_id, action, entity, entity_id, meta, occurred_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		  AND ($3::bigint IS NULL OR actor_id = $3)
		  AND ($4::text IS NULL OR entity = $4)
		  AND ($5::text IS NULL OR action = $5)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $6 LIMIT $7`,
		optionalTime(filters.From),
		optionalTime(filters.To),
		optionalID(filters.ActorID),
		optionalText(filters.Entity),
		optionalText(filters.Action),
		offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta, &row.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalID(id int64) pgtype.Int8 {
	if id <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
