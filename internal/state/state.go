// Package state persists the scheduler's cycle state and the session
// manager's login state between invocations.
package state

import (
	"context"
	"sync"

	"go-portal-harvester/internal/models"
)

// Store loads and saves harvest bookkeeping. Load methods return nil, nil
// when nothing was saved yet.
type Store interface {
	LoadCycle(ctx context.Context) (*models.CycleState, error)
	SaveCycle(ctx context.Context, s *models.CycleState) error
	LoadSession(ctx context.Context) (*models.SessionState, error)
	SaveSession(ctx context.Context, s *models.SessionState) error
}

// MemoryStore keeps state in process. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	cycle   *models.CycleState
	session *models.SessionState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadCycle(ctx context.Context) (*models.CycleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cycle == nil {
		return nil, nil
	}
	c := *m.cycle
	return &c, nil
}

func (m *MemoryStore) SaveCycle(ctx context.Context, s *models.CycleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.cycle = &c
	return nil
}

func (m *MemoryStore) LoadSession(ctx context.Context) (*models.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	return copySession(m.session), nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *models.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = copySession(s)
	return nil
}

func copySession(s *models.SessionState) *models.SessionState {
	c := *s
	c.Cookies = append([]models.Cookie(nil), s.Cookies...)
	return &c
}
