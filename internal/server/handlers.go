package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"answerd/internal/history"
)

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Answer       string `json:"answer"`
	SessionID    string `json:"session_id"`
	UsedResearch bool   `json:"used_research"`
	SearchQuery  string `json:"search_query,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	TurnCount int    `json:"turn_count"`
}

func errorBody(msg string) gin.H { return gin.H{"error": msg} }

// handleChat runs the workflow against the session's history and persists
// both turns. An empty session ID gets a fresh session.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		c.JSON(http.StatusBadRequest, errorBody("question cannot be empty"))
		return
	}

	ctx := c.Request.Context()
	sessionID := req.SessionID
	if sessionID == "" {
		session, err := s.store.CreateSession(ctx)
		if err != nil {
			s.log.Error("failed to create session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorBody("failed to create session"))
			return
		}
		sessionID = session.ID
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	turns, err := s.store.Turns(ctx, sessionID)
	if err != nil {
		if errors.Is(err, history.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, errorBody("session not found"))
			return
		}
		s.log.Error("failed to read history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("failed to read history"))
		return
	}

	outcome, err := s.runner.Run(ctx, question, history.Recent(turns, s.contextTurns))
	if err != nil {
		// The only run error is an unavailable model on the initial step.
		s.log.Error("run failed", zap.String("session", sessionID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorBody("language model is unavailable"))
		return
	}

	if err := s.store.AppendTurns(ctx, sessionID,
		history.UserTurn(question), outcome.AnswerTurn()); err != nil {
		// The answer exists; losing the history write should not eat it.
		s.log.Error("failed to persist turns", zap.String("session", sessionID), zap.Error(err))
	}

	c.JSON(http.StatusOK, chatResponse{
		Answer:       outcome.FinalAnswer,
		SessionID:    sessionID,
		UsedResearch: outcome.UsedResearch,
		SearchQuery:  outcome.SearchQuery,
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	session, err := s.store.CreateSession(c.Request.Context())
	if err != nil {
		s.log.Error("failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("failed to create session"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": session.ID})
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context())
	if err != nil {
		s.log.Error("failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("failed to list sessions"))
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			SessionID: sess.ID,
			CreatedAt: sess.CreatedAt.Format(timeLayout),
			UpdatedAt: sess.UpdatedAt.Format(timeLayout),
			TurnCount: sess.TurnCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleSessionHistory(c *gin.Context) {
	turns, err := s.store.Turns(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, errorBody("session not found"))
			return
		}
		s.log.Error("failed to read history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("failed to read history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")

	// Hold the session lock so an in-flight chat finishes its append before
	// the session goes away, then drop the lock entry with the session.
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()
	defer s.sessionLocks.Delete(id)

	if err := s.store.DeleteSession(c.Request.Context(), id); err != nil {
		if errors.Is(err, history.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, errorBody("session not found"))
			return
		}
		s.log.Error("failed to delete session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("failed to delete session"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{"status": "ok"}
	code := http.StatusOK

	if err := s.health.HealthCheck(ctx); err != nil {
		status["status"] = "degraded"
		status["model"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := s.store.Ping(ctx); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
