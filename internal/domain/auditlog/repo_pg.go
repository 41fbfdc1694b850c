package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

// NewSearcherPG returns the read surface over the same table.
func NewSearcherPG(pool *pgxpool.Pool) Searcher {
	return &repoPG{pool: pool}
}

// Append inserts with a server-generated id so concurrent appends never
// depend on a prior read.
func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var details []byte
	if e.SanitizedDetails != nil {
		var err error
		details, err = json.Marshal(e.SanitizedDetails)
		if err != nil {
			return fmt.Errorf("marshal sanitized details: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_entry (id, user_id, action, resource_type, resource_id,
			occurred_at, duration_ms, http_status, sanitized_details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		e.Timestamp, e.DurationMs, e.HTTPStatus, details)
	return err
}

// Search returns matching entries newest first, plus the total match count.
func (r *repoPG) Search(ctx context.Context, f Filter) ([]*Entry, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != "" {
		where += " AND user_id = " + arg(f.UserID)
	}
	if f.Action != "" {
		where += " AND action = " + arg(f.Action)
	}
	if f.ResourceType != "" {
		where += " AND resource_type = " + arg(f.ResourceType)
	}
	if !f.From.IsZero() {
		where += " AND occurred_at >= " + arg(f.From)
	}
	if !f.To.IsZero() {
		where += " AND occurred_at <= " + arg(f.To)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_entry "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, action, resource_type, resource_id,
		occurred_at, duration_ms, http_status, sanitized_details
		FROM audit_entry ` + where + ` ORDER BY occurred_at DESC
		LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Timestamp, &e.DurationMs, &e.HTTPStatus, &details); err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.SanitizedDetails); err != nil {
				return nil, 0, fmt.Errorf("unmarshal sanitized details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
