package auditlog

import (
	"context"
	"time"
)

// Repository is the append-only audit store the sink writes through. There
// is deliberately no update or delete surface; the trail is immutable.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
}

// Filter narrows an audit search. Zero values mean "any".
type Filter struct {
	UserID       string
	Action       Action
	ResourceType string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// Searcher is the compliance-officer read surface over the trail.
type Searcher interface {
	Search(ctx context.Context, f Filter) ([]*Entry, int, error)
}
