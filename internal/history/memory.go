package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in memory. Useful for tests and for one-shot
// runs where persistence is unwanted.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store. maxTurns caps the
// retained turns per session, 0 keeps everything.
func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
	}
}

// CreateSession implements Store.
func (s *MemoryStore) CreateSession(_ context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session := Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		Turns:     []Turn{},
	}
	s.sessions[session.ID] = &session
	return session, nil
}

// ListSessions implements Store.
func (s *MemoryStore) ListSessions(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, Session{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
			TurnCount: len(sess.Turns),
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Turns implements Store.
func (s *MemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	turns := make([]Turn, len(session.Turns))
	copy(turns, session.Turns)
	return turns, nil
}

// AppendTurns implements Store.
func (s *MemoryStore) AppendTurns(_ context.Context, sessionID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	now := time.Now()
	for _, turn := range turns {
		if turn.Timestamp.IsZero() {
			turn.Timestamp = now
		}
		session.Turns = append(session.Turns, turn)
	}
	if s.maxTurns > 0 && len(session.Turns) > s.maxTurns {
		session.Turns = session.Turns[len(session.Turns)-s.maxTurns:]
	}
	session.UpdatedAt = now
	return nil
}

// DeleteSession implements Store.
func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }
