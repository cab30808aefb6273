package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be tested against a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateSessions = `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	sqlCreateTurns = `
		CREATE TABLE IF NOT EXISTS turns (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			search_performed BOOLEAN NOT NULL DEFAULT FALSE,
			search_query TEXT NOT NULL DEFAULT ''
		)`
	sqlCreateTurnsIndex = `
		CREATE INDEX IF NOT EXISTS turns_session_idx ON turns (session_id, id)`

	sqlInsertSession = `
		INSERT INTO sessions (id, created_at, updated_at) VALUES ($1, $2, $2)`
	sqlListSessions = `
		SELECT s.id, s.created_at, s.updated_at, count(t.id)
		FROM sessions s LEFT JOIN turns t ON t.session_id = s.id
		GROUP BY s.id, s.created_at, s.updated_at
		ORDER BY s.updated_at DESC`
	sqlSessionExists = `
		SELECT 1 FROM sessions WHERE id = $1`
	sqlSelectTurns = `
		SELECT role, content, created_at, search_performed, search_query
		FROM turns WHERE session_id = $1 ORDER BY id`
	sqlTouchSession = `
		UPDATE sessions SET updated_at = $2 WHERE id = $1`
	sqlInsertTurn = `
		INSERT INTO turns (session_id, role, content, created_at, search_performed, search_query)
		VALUES ($1, $2, $3, $4, $5, $6)`
	sqlPruneTurns = `
		DELETE FROM turns WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM turns WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		)`
	sqlDeleteSession = `
		DELETE FROM sessions WHERE id = $1`
)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	pool     DBPool
	maxTurns int
	log      *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// ConnectPool dials dsn and verifies connectivity.
func ConnectPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps pool. maxTurns caps the retained turns per
// session, 0 keeps everything.
func NewPostgresStore(pool DBPool, maxTurns int, log *zap.Logger) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		maxTurns: maxTurns,
		log:      log.Named("history"),
	}
}

// Migrate creates the schema when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateSessions, sqlCreateTurns, sqlCreateTurnsIndex} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// CreateSession implements Store.
func (s *PostgresStore) CreateSession(ctx context.Context) (Session, error) {
	now := time.Now().UTC()
	session := Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		Turns:     []Turn{},
	}
	if _, err := s.pool.Exec(ctx, sqlInsertSession, session.ID, now); err != nil {
		return Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

// ListSessions implements Store.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, sqlListSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var count int64
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt, &count); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.TurnCount = int(count)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}

// Turns implements Store.
func (s *PostgresStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	var one int
	if err := s.pool.QueryRow(ctx, sqlSessionExists, sessionID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlSelectTurns, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var turn Turn
		var searchPerformed bool
		var searchQuery string
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.Timestamp, &searchPerformed, &searchQuery); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if searchPerformed || searchQuery != "" {
			turn.Meta = &TurnMeta{SearchPerformed: searchPerformed, SearchQuery: searchQuery}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return turns, nil
}

// AppendTurns implements Store.
func (s *PostgresStore) AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("failed to roll back transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, sqlTouchSession, sessionID, now)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	for _, turn := range turns {
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = now
		}
		searchPerformed := false
		searchQuery := ""
		if turn.Meta != nil {
			searchPerformed = turn.Meta.SearchPerformed
			searchQuery = turn.Meta.SearchQuery
		}
		if _, err := tx.Exec(ctx, sqlInsertTurn,
			sessionID, turn.Role, turn.Content, ts.UTC(), searchPerformed, searchQuery); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if s.maxTurns > 0 {
		if _, err := tx.Exec(ctx, sqlPruneTurns, sessionID, s.maxTurns); err != nil {
			return fmt.Errorf("failed to prune turns: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteSession implements Store.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteSession, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
