package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fileArchive is the on-disk layout of a FileStore.
type fileArchive struct {
	Sessions []Session `json:"sessions"`
}

// FileStore keeps all sessions in a single JSON file. Writes are atomic
// (temp file plus rename) and a corrupted file is set aside rather than
// wiping the process out.
type FileStore struct {
	path     string
	maxTurns int
	log      *zap.Logger

	mu      sync.Mutex
	archive fileArchive
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or creates) the store at path. maxTurns caps the
// retained turns per session, 0 keeps everything.
func NewFileStore(path string, maxTurns int, log *zap.Logger) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		maxTurns: maxTurns,
		log:      log.Named("history"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.archive = fileArchive{Sessions: []Session{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	if err := json.Unmarshal(data, &s.archive); err != nil {
		// Corrupted file. Set it aside and start fresh.
		backupPath := s.path + ".backup"
		s.log.Warn("history file corrupted, starting fresh",
			zap.String("backup", backupPath), zap.Error(err))
		if renameErr := os.Rename(s.path, backupPath); renameErr != nil {
			return fmt.Errorf("failed to back up corrupted history file: %w", renameErr)
		}
		s.archive = fileArchive{Sessions: []Session{}}
	}
	return nil
}

// save must be called with the lock held.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// find must be called with the lock held.
func (s *FileStore) find(sessionID string) *Session {
	for i := range s.archive.Sessions {
		if s.archive.Sessions[i].ID == sessionID {
			return &s.archive.Sessions[i]
		}
	}
	return nil
}

// CreateSession implements Store.
func (s *FileStore) CreateSession(_ context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session := Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		Turns:     []Turn{},
	}
	s.archive.Sessions = append(s.archive.Sessions, session)
	if err := s.save(); err != nil {
		s.archive.Sessions = s.archive.Sessions[:len(s.archive.Sessions)-1]
		return Session{}, err
	}
	return session, nil
}

// ListSessions implements Store. Turns are omitted; most recently updated
// first.
func (s *FileStore) ListSessions(_ context.Context) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]Session, 0, len(s.archive.Sessions))
	for _, sess := range s.archive.Sessions {
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
func (s *FileStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.find(sessionID)
	if session == nil {
		return nil, ErrSessionNotFound
	}
	turns := make([]Turn, len(session.Turns))
	copy(turns, session.Turns)
	return turns, nil
}

// AppendTurns implements Store.
func (s *FileStore) AppendTurns(_ context.Context, sessionID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.find(sessionID)
	if session == nil {
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
	return s.save()
}

// DeleteSession implements Store.
func (s *FileStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.archive.Sessions {
		if s.archive.Sessions[i].ID == sessionID {
			s.archive.Sessions = append(s.archive.Sessions[:i], s.archive.Sessions[i+1:]...)
			return s.save()
		}
	}
	return ErrSessionNotFound
}

// Ping implements Store.
func (s *FileStore) Ping(_ context.Context) error { return nil }
