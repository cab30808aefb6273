// Package server exposes the answering workflow over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"answerd/internal/config"
	"answerd/internal/history"
	"answerd/internal/workflow"
)

// Runner executes one answering run. *workflow.Workflow satisfies it.
type Runner interface {
	Run(ctx context.Context, question string, hist []history.Turn) (workflow.Outcome, error)
}

var _ Runner = (*workflow.Workflow)(nil)

// HealthChecker probes the generation backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP collaborator around the workflow: it reads a session's
// history before a run and persists both turns after.
type Server struct {
	cfg          config.ServerConfig
	contextTurns int
	engine       *gin.Engine
	runner       Runner
	store        history.Store
	health       HealthChecker
	log          *zap.Logger

	// sessionLocks serializes read-run-append per session so concurrent
	// posts to one session cannot interleave their history writes.
	sessionLocks sync.Map
}

// New wires the routes. contextTurns caps how many recent turns are
// replayed into the model prompt.
func New(cfg config.ServerConfig, contextTurns int, runner Runner, store history.Store, health HealthChecker, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:          cfg,
		contextTurns: contextTurns,
		runner:       runner,
		store:        store,
		health:       health,
		log:          log.Named("server"),
	}

	engine := gin.New()
	engine.Use(s.requestLogger(), gin.Recovery())

	api := engine.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/sessions/:id/history", s.handleSessionHistory)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	engine.GET("/healthz", s.handleHealth)

	s.engine = engine
	return s
}

// Handler returns the underlying HTTP handler. Tests drive it directly.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down within the configured
// grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("listening", zap.String("addr", s.cfg.ListenAddr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down", zap.Duration("grace", s.cfg.ShutdownGrace))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) sessionLock(sessionID string) *sync.Mutex {
	lock, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
