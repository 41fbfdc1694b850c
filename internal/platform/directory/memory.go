package directory

import (
	"context"
	"sync"
)

// User is a single identity-store record as seen by the in-memory directory.
type User struct {
	ID             string
	Role           string
	Active         bool
	ConsentVersion string
}

// Memory is an in-memory Directory for tests and development.
type Memory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]User)}
}

// Put adds or replaces a user record.
func (m *Memory) Put(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) UsersByRole(_ context.Context, role string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, u := range m.users {
		if u.Active && u.Role == role {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (m *Memory) ActiveUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, u := range m.users {
		if u.Active {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (m *Memory) ConsentVersion(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return "", nil
	}
	return u.ConsentVersion, nil
}
