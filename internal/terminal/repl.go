package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"answerd/internal/history"
	"answerd/internal/workflow"
)

// REPL is the interactive chat loop. Each turn reads the session's recent
// history, runs the workflow and appends both turns to the store.
type REPL struct {
	Model        workflow.ModelClient
	Research     workflow.Researcher
	Override     *workflow.Override
	Store        history.Store
	Render       *Renderer
	Input        *Reader
	ModelName    string
	ContextTurns int
	// Stream prints the initial answer as it generates. When research is
	// skipped for a turn the streamed text is the final answer.
	Stream bool
	Log    *zap.Logger
}

// Run loops until /quit, EOF or context cancellation.
func (r *REPL) Run(ctx context.Context) error {
	session, err := r.Store.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.Render.Welcome(r.ModelName)
	for {
		if ctx.Err() != nil {
			r.Render.Goodbye()
			return nil
		}

		r.Render.Prompt()
		line, err := r.Input.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.Render.Error(err)
			}
			r.Render.Goodbye()
			return nil
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			r.Render.Goodbye()
			return nil
		case "/new":
			session, err = r.Store.CreateSession(ctx)
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			r.Render.Status("started a new session")
		case "/history":
			r.showHistory(ctx, session.ID)
		default:
			if strings.HasPrefix(line, "/") {
				r.Render.Warn(fmt.Sprintf("unknown command %s", line))
				continue
			}
			r.answer(ctx, session.ID, line)
		}
	}
}

func (r *REPL) answer(ctx context.Context, sessionID, question string) {
	turns, err := r.Store.Turns(ctx, sessionID)
	if err != nil {
		r.Render.Error(err)
		return
	}

	streaming := false
	var opts []workflow.Option
	if r.Stream {
		streaming = true
		opts = append(opts, workflow.WithInitialStream(r.Render.Chunk))
	}
	w := workflow.New(r.Model, r.Research, r.Override, r.Log, opts...)

	outcome, err := w.Run(ctx, question, history.Recent(turns, r.ContextTurns))
	if err != nil {
		if streaming {
			r.Render.Chunk("\n")
		}
		r.Render.Error(err)
		return
	}

	switch {
	case streaming && !outcome.UsedResearch:
		// The final answer is already on screen.
		r.Render.Chunk("\n")
	case outcome.UsedResearch:
		if streaming {
			r.Render.Chunk("\n")
		}
		r.Render.Status(fmt.Sprintf("refined with web research: %s", outcome.SearchQuery))
		r.Render.Answer(outcome.FinalAnswer)
	default:
		r.Render.Answer(outcome.FinalAnswer)
	}

	if err := r.Store.AppendTurns(ctx, sessionID,
		history.UserTurn(question), outcome.AnswerTurn()); err != nil {
		r.Render.Warn(fmt.Sprintf("failed to save history: %v", err))
	}
}

func (r *REPL) showHistory(ctx context.Context, sessionID string) {
	turns, err := r.Store.Turns(ctx, sessionID)
	if err != nil {
		r.Render.Error(err)
		return
	}
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			turn.Timestamp.Format("15:04"), turn.Role, turn.Content))
	}
	r.Render.Transcript(lines)
}
