// Package session owns the per-principal SessionState used by the idle
// timeout gate: the last time each authenticated user performed an admitted
// unit of work.
package session

import (
	"context"
	"sync"
	"time"
)

// Store tracks last-activity timestamps for authenticated principals.
type Store interface {
	// LastActivity returns the recorded timestamp and whether one exists.
	LastActivity(ctx context.Context, userID string) (time.Time, bool, error)
	// Touch records activity at the given instant.
	Touch(ctx context.Context, userID string, at time.Time) error
	// Clear invalidates the session.
	Clear(ctx context.Context, userID string) error
}

// MemoryStore is the default single-instance Store.
type MemoryStore struct {
	mu       sync.RWMutex
	activity map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{activity: make(map[string]time.Time)}
}

func (s *MemoryStore) LastActivity(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.activity[userID]
	return at, ok, nil
}

func (s *MemoryStore) Touch(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[userID] = at
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activity, userID)
	return nil
}
