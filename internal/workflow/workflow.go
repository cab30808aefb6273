// Package workflow answers a question through a fixed four-step pipeline:
// initial answer, research decision, optional web research, refinement.
//
// The pipeline is an explicit state machine with one conditional edge.
// Each step is a named method advancing a ConversationState; Run drives
// them in order. Only a failure in the very first step aborts a run — every
// later failure degrades the answer but still produces one.
package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"answerd/internal/history"
	"answerd/internal/ollama"
)

// ErrModelUnavailable reports that the generation backend failed on the
// initial answer step. It is the only error a run can return.
var ErrModelUnavailable = errors.New("model unavailable")

// ModelClient generates text from the local model.
type ModelClient interface {
	Chat(ctx context.Context, messages []ollama.Message) (string, error)
	ChatJSON(ctx context.Context, messages []ollama.Message) (string, error)
	ChatStream(ctx context.Context, messages []ollama.Message, onChunk func(string)) (string, error)
}

// Researcher turns a search query into a prompt-ready text digest. It never
// fails; unusable searches come back as marker text.
type Researcher interface {
	Digest(ctx context.Context, query string) string
}

// Outcome is the result of one run.
type Outcome struct {
	FinalAnswer  string
	UsedResearch bool
	SearchQuery  string // empty when UsedResearch is false
}

// AnswerTurn is the history entry the caller should append for this answer.
func (o Outcome) AnswerTurn() history.Turn {
	var meta *history.TurnMeta
	if o.UsedResearch {
		meta = &history.TurnMeta{SearchPerformed: true, SearchQuery: o.SearchQuery}
	}
	return history.AssistantTurn(o.FinalAnswer, meta)
}

// Workflow runs the pipeline. It owns no resources and keeps no state
// between runs, so a single instance serves concurrent questions.
type Workflow struct {
	model    ModelClient
	research Researcher
	override *Override
	log      *zap.Logger

	streamInitial func(chunk string)
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithInitialStream streams the initial answer's chunks to fn as the model
// generates them. When research is skipped the streamed text is the final
// answer verbatim.
func WithInitialStream(fn func(chunk string)) Option {
	return func(w *Workflow) { w.streamInitial = fn }
}

// New assembles a Workflow from a model client, a researcher and the
// override table.
func New(model ModelClient, research Researcher, override *Override, log *zap.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		model:    model,
		research: research,
		override: override,
		log:      log.Named("workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run answers question given the session's prior turns. The returned
// Outcome always carries a non-empty FinalAnswer; the only possible error
// is ErrModelUnavailable from the initial step.
func (w *Workflow) Run(ctx context.Context, question string, hist []history.Turn) (Outcome, error) {
	state := &ConversationState{
		Question: question,
		History:  hist,
	}

	if err := w.initialAnswer(ctx, state); err != nil {
		return Outcome{}, err
	}
	w.decideResearch(ctx, state)
	if state.ShouldResearch {
		w.conductResearch(ctx, state)
	}
	w.refineAnswer(ctx, state)

	outcome := Outcome{
		FinalAnswer:  state.FinalAnswer,
		UsedResearch: state.ShouldResearch,
		SearchQuery:  state.SearchQuery,
	}
	state.History = append(state.History, outcome.AnswerTurn())
	return outcome, nil
}
