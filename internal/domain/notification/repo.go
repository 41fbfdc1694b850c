package notification

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists notification records. Every read operation excludes
// records whose expires_at lies in the past, whether or not the sweep has
// physically purged them.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	ListByRecipient(ctx context.Context, userID string, limit, offset int) ([]*Notification, int, error)
	ListUnread(ctx context.Context, userID string) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead flips read/read_at for a notification owned by userID.
	MarkRead(ctx context.Context, id uuid.UUID, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	// Delete removes a notification owned by userID.
	Delete(ctx context.Context, id uuid.UUID, userID string) error
	// DeleteExpired physically purges logically deleted records.
	DeleteExpired(ctx context.Context) (int, error)
}
