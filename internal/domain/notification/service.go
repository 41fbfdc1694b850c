package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/platform/directory"
	"github.com/medisync/gateway/internal/platform/metrics"
)

// Pusher delivers an already-persisted notification to live connections.
// Implementations absorb per-connection failures; a push that reaches nobody
// is not an error, because the durable record makes delivery at-least-once
// via the next fetch.
type Pusher interface {
	PushToUser(userID string, n *Notification)
	PushToRole(role string, n *Notification)
	PushToAll(n *Notification)
}

// NopPusher discards pushes. Used when the realtime layer is disabled and in
// tests that only exercise persistence.
type NopPusher struct{}

func (NopPusher) PushToUser(string, *Notification) {}
func (NopPusher) PushToRole(string, *Notification) {}
func (NopPusher) PushToAll(*Notification)          {}

// Dispatcher is the single entry point for producing notifications. Every
// dispatch persists first and pushes second: if the write fails the dispatch
// fails and nothing is pushed; if the push degrades the dispatch still
// succeeds.
type Dispatcher struct {
	repo    Repository
	dir     directory.Directory
	pusher  Pusher
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(repo Repository, dir directory.Directory, pusher Pusher, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		dir:     dir,
		pusher:  pusher,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		metrics: m,
	}
}

// SendToUser persists one notification for userID, then pushes it to the
// user's live connections.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, draft Draft) (*Notification, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}
	n := draft.build(userID)

	if err := d.repo.Create(ctx, n); err != nil {
		// Fail closed: no record means no push.
		return nil, fmt.Errorf("persist notification for %s: %w", userID, err)
	}
	d.metrics.DispatchesTotal.WithLabelValues("user").Inc()

	d.pusher.PushToUser(userID, n)
	return n, nil
}

// SendToRole persists one notification per active member of the role, then
// pushes once to the role's room. Membership comes from the directory, not
// from live connections, so offline members still receive a durable record.
func (d *Dispatcher) SendToRole(ctx context.Context, role string, draft Draft) ([]*Notification, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}

	members, err := d.dir.UsersByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("resolve role %s: %w", role, err)
	}

	created, err := d.persistAll(ctx, members, draft)
	if err != nil {
		return created, err
	}
	d.metrics.DispatchesTotal.WithLabelValues("role").Inc()

	if len(created) > 0 {
		d.pusher.PushToRole(role, roomCopy(created[0]))
	}
	return created, nil
}

// SendToAll persists one notification per active user, then pushes a single
// broadcast.
func (d *Dispatcher) SendToAll(ctx context.Context, draft Draft) ([]*Notification, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}

	users, err := d.dir.ActiveUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve active users: %w", err)
	}

	created, err := d.persistAll(ctx, users, draft)
	if err != nil {
		return created, err
	}
	d.metrics.DispatchesTotal.WithLabelValues("broadcast").Inc()

	if len(created) > 0 {
		d.pusher.PushToAll(roomCopy(created[0]))
	}
	return created, nil
}

// roomCopy strips the per-recipient fields from a notification pushed to a
// shared room, so no member sees another member's record identity. Each
// member's own record is what a fetch returns.
func roomCopy(n *Notification) *Notification {
	cp := *n
	cp.ID = uuid.Nil
	cp.RecipientUserID = ""
	return &cp
}

// persistAll writes one record per recipient. The first write failure aborts
// the dispatch; records already written stay (re-dispatch may duplicate,
// which at-least-once permits, while fail-open would silently lose records).
func (d *Dispatcher) persistAll(ctx context.Context, recipients []string, draft Draft) ([]*Notification, error) {
	created := make([]*Notification, 0, len(recipients))
	for _, userID := range recipients {
		n := draft.build(userID)
		if err := d.repo.Create(ctx, n); err != nil {
			return created, fmt.Errorf("persist notification for %s: %w", userID, err)
		}
		created = append(created, n)
	}
	return created, nil
}

func (d Draft) build(userID string) *Notification {
	return &Notification{
		RecipientUserID: userID,
		Title:           d.Title,
		Message:         d.Message,
		Type:            d.Type,
		Data:            d.Data,
		Priority:        d.Priority,
		ExpiresAt:       d.ExpiresAt,
		CreatedAt:       time.Now().UTC(),
	}
}

// RunSweeper purges expired notifications on the given interval until ctx is
// cancelled. Expired records are already invisible to reads; the sweep only
// reclaims storage.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := d.repo.DeleteExpired(ctx)
			if err != nil {
				d.logger.Error().Err(err).Msg("notification sweep failed")
				continue
			}
			if purged > 0 {
				d.metrics.NotificationsSwept.Add(float64(purged))
				d.logger.Debug().Int("purged", purged).Msg("swept expired notifications")
			}
		}
	}
}
