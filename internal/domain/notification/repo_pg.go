package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a notification does not exist, is not owned
// by the caller, or has expired. The three cases are indistinguishable on
// purpose.
var ErrNotFound = errors.New("notification not found")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const cols = `id, recipient_user_id, title, message, type, data, read, read_at,
	priority, expires_at, created_at`

// visible restricts reads to records that have not expired. Expiry is
// logical deletion: the sweep purges rows later, but they must already be
// invisible the moment expires_at passes.
const visible = `(expires_at IS NULL OR expires_at > NOW())`

func scanOne(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.RecipientUserID, &n.Title, &n.Message, &n.Type,
		&n.Data, &n.Read, &n.ReadAt, &n.Priority, &n.ExpiresAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &n, err
}

func scanAll(rows pgx.Rows) ([]*Notification, error) {
	defer rows.Close()
	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientUserID, &n.Title, &n.Message, &n.Type,
			&n.Data, &n.Read, &n.ReadAt, &n.Priority, &n.ExpiresAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification (id, recipient_user_id, title, message, type, data,
			read, priority, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.RecipientUserID, n.Title, n.Message, n.Type, n.Data,
		n.Read, n.Priority, n.ExpiresAt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return scanOne(r.pool.QueryRow(ctx,
		`SELECT `+cols+` FROM notification WHERE id = $1 AND `+visible, id))
}

func (r *repoPG) ListByRecipient(ctx context.Context, userID string, limit, offset int) ([]*Notification, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE recipient_user_id = $1 AND `+visible,
		userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+cols+` FROM notification
		WHERE recipient_user_id = $1 AND `+visible+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := scanAll(rows)
	return list, total, err
}

func (r *repoPG) ListUnread(ctx context.Context, userID string) ([]*Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+cols+` FROM notification
		WHERE recipient_user_id = $1 AND read = FALSE AND `+visible+`
		ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (r *repoPG) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE recipient_user_id = $1 AND read = FALSE AND `+visible,
		userID).Scan(&count)
	return count, err
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification SET read = TRUE, read_at = NOW()
		WHERE id = $1 AND recipient_user_id = $2 AND `+visible,
		id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification SET read = TRUE, read_at = NOW()
		WHERE recipient_user_id = $1 AND read = FALSE AND `+visible,
		userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notification WHERE id = $1 AND recipient_user_id = $2`,
		id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notification WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
