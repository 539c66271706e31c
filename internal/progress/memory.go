package progress

import (
	"context"
	"fmt"
	"sync"

	"github.com/lockin-app/lockin/internal/models"
)

// MemoryStore keeps progress rows and the session log in process memory. It
// carries the same atomicity contract as the Postgres store and backs tests
// and the dev store kind.
type MemoryStore struct {
	mu       sync.Mutex
	rows     map[string]*models.UserProgress
	sessions map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:     make(map[string]*models.UserProgress),
		sessions: make(map[string]struct{}),
	}
}

func (m *MemoryStore) Progress(ctx context.Context, userID string) (*models.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneProgress(m.rowLocked(userID)), nil
}

func (m *MemoryStore) Update(ctx context.Context, userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(userID, fn)
}

func (m *MemoryStore) RecordSession(ctx context.Context, s models.FocusSession, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	key := sessionKey(s)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.sessions[key]; dup {
		return nil, ErrDuplicateSession
	}
	p, err := m.updateLocked(s.UserID, fn)
	if err != nil {
		return nil, err
	}
	m.sessions[key] = struct{}{}
	return p, nil
}

// updateLocked mutates a copy so a failed fn leaves the row untouched.
func (m *MemoryStore) updateLocked(userID string, fn func(p *models.UserProgress) error) (*models.UserProgress, error) {
	next := cloneProgress(m.rowLocked(userID))
	if err := fn(next); err != nil {
		return nil, err
	}
	m.rows[userID] = next
	return cloneProgress(next), nil
}

func (m *MemoryStore) rowLocked(userID string) *models.UserProgress {
	row, ok := m.rows[userID]
	if !ok {
		row = models.NewUserProgress(userID)
		m.rows[userID] = row
	}
	return row
}

func sessionKey(s models.FocusSession) string {
	return fmt.Sprintf("%s|%d|%d", s.UserID, s.StartedAt.UTC().Unix(), s.EndedAt.UTC().Unix())
}

func cloneProgress(p *models.UserProgress) *models.UserProgress {
	cp := *p
	cp.StreakHistory = append([]string(nil), p.StreakHistory...)
	return &cp
}
