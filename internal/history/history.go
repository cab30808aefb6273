// Package history persists per-session conversation turns.
//
// The Store interface is a narrow read/append boundary; any engine that can
// keep an ordered list of turns per session satisfies it. Three
// implementations ship: a JSON file store, an in-memory store and a
// PostgreSQL store.
package history

import (
	"context"
	"errors"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrSessionNotFound reports an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Turn is a single entry in a session's conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Meta      *TurnMeta `json:"meta,omitempty"`
}

// TurnMeta records how an assistant turn was produced.
type TurnMeta struct {
	SearchPerformed bool   `json:"search_performed"`
	SearchQuery     string `json:"search_query,omitempty"`
}

// Session is one conversation thread.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     []Turn    `json:"turns"`

	// TurnCount is filled by ListSessions, which omits the turns
	// themselves.
	TurnCount int `json:"-"`
}

// Store persists sessions and their turns. Implementations must be safe for
// concurrent use; callers serialize writes to a single session themselves
// when ordering matters.
type Store interface {
	CreateSession(ctx context.Context) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error
	DeleteSession(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}

// Recent returns the last n turns; n <= 0 keeps all of them.
func Recent(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// UserTurn builds a user turn stamped now.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantTurn builds an assistant turn stamped now.
func AssistantTurn(content string, meta *TurnMeta) Turn {
	return Turn{Role: RoleAssistant, Content: content, Timestamp: time.Now(), Meta: meta}
}
