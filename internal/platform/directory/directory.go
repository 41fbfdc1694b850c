// Package directory is a read-only adapter over the identity service's user
// store. The gateway consults it for role membership (so offline members of
// a role still get a durable notification record) and for recorded consent
// versions. It never writes.
package directory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory exposes the identity-store reads the gateway depends on.
type Directory interface {
	// UsersByRole returns the ids of all active users holding the role.
	UsersByRole(ctx context.Context, role string) ([]string, error)
	// ActiveUserIDs returns the ids of every active user.
	ActiveUserIDs(ctx context.Context) ([]string, error)
	// ConsentVersion returns the compliance-agreement version the user has
	// accepted, or "" when none is recorded.
	ConsentVersion(ctx context.Context, userID string) (string, error)
}

type pgDirectory struct {
	pool *pgxpool.Pool
}

// NewPG returns a Directory backed by the identity service's portal_user
// table.
func NewPG(pool *pgxpool.Pool) Directory {
	return &pgDirectory{pool: pool}
}

func (d *pgDirectory) UsersByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id FROM portal_user WHERE role = $1 AND is_active = TRUE`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *pgDirectory) ActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT id FROM portal_user WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *pgDirectory) ConsentVersion(ctx context.Context, userID string) (string, error) {
	var version *string
	err := d.pool.QueryRow(ctx,
		`SELECT consent_version FROM portal_user WHERE id = $1`, userID).Scan(&version)
	if err != nil {
		return "", err
	}
	if version == nil {
		return "", nil
	}
	return *version, nil
}
