package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map. It is intended
// for tests and single-process development setups.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create persists a new session in the created state.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	if cp.Status == "" {
		cp.Status = StatusCreated
	}
	s.sessions[cp.ID] = &cp
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	cp := *sess
	return &cp, nil
}

// Activate transitions a created session to active and stamps its start time.
func (s *MemoryStore) Activate(_ context.Context, id string, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Status != StatusCreated {
		return false, nil
	}

	sess.Status = StatusActive
	t := startedAt
	sess.StartedAt = &t
	sess.UpdatedAt = startedAt
	return true, nil
}

// FindActive returns every active session with a non-null start time.
func (s *MemoryStore) FindActive(_ context.Context) ([]ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ActiveSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Status != StatusActive || sess.StartedAt == nil {
			continue
		}
		result = append(result, ActiveSession{
			ID:               sess.ID,
			AccountID:        sess.AccountID,
			StartedAt:        *sess.StartedAt,
			DurationMinutes:  sess.DurationMinutes,
			EstimatedMinutes: sess.EstimatedMinutes,
		})
	}
	return result, nil
}

// UpdateDuration writes a duration checkpoint. Non-active records are
// left untouched.
func (s *MemoryStore) UpdateDuration(_ context.Context, id string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Status != StatusActive {
		return nil
	}
	sess.DurationMinutes = minutes
	return nil
}

// Complete marks an active session completed and appends note to its notes.
func (s *MemoryStore) Complete(_ context.Context, id string, minutes int, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Status != StatusActive {
		return nil
	}

	sess.Status = StatusCompleted
	sess.DurationMinutes = minutes
	if note != "" {
		if sess.Notes == "" {
			sess.Notes = note
		} else {
			sess.Notes = sess.Notes + "\n" + note
		}
	}
	return nil
}

// ListByAccount returns the most recent sessions owned by an account.
func (s *MemoryStore) ListByAccount(_ context.Context, accountID string, limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Session
	for _, sess := range s.sessions {
		if sess.AccountID == accountID {
			cp := *sess
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return strings.Compare(result[i].ID, result[j].ID) < 0
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close releases resources.
func (*MemoryStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
