package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"answerd/internal/llmutil"
)

// researchDecision is the JSON shape the decision step asks the model for.
type researchDecision struct {
	ShouldResearch bool   `json:"should_research"`
	SearchQuery    string `json:"search_query"`
}

// initialAnswer asks the model to answer directly from its own knowledge.
// This is the only step whose failure aborts the run.
func (w *Workflow) initialAnswer(ctx context.Context, state *ConversationState) error {
	messages := initialMessages(state.History, state.Question)

	var answer string
	var err error
	if w.streamInitial != nil {
		answer, err = w.model.ChatStream(ctx, messages, w.streamInitial)
	} else {
		answer, err = w.model.Chat(ctx, messages)
	}
	if err != nil {
		w.log.Error("initial answer failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	state.InitialAnswer = strings.TrimSpace(answer)
	w.log.Debug("initial answer produced", zap.Int("chars", len(state.InitialAnswer)))
	return nil
}

// decideResearch asks the model whether a web search is needed, then layers
// the deterministic override on top. A malformed decision fails open: force
// research with the question itself as the query, because skipping research
// silently risks a stale answer.
func (w *Workflow) decideResearch(ctx context.Context, state *ConversationState) {
	raw, err := w.model.ChatJSON(ctx, decisionMessages(state.Question, state.InitialAnswer))
	if err != nil {
		w.log.Warn("decision call failed, forcing research", zap.Error(err))
		state.ShouldResearch = true
		state.SearchQuery = state.Question
	} else {
		decision, parseErr := llmutil.ParseJSONResponse[researchDecision](raw)
		if parseErr != nil {
			w.log.Warn("decision did not parse, forcing research", zap.Error(parseErr))
			state.ShouldResearch = true
			state.SearchQuery = state.Question
		} else {
			state.ShouldResearch = decision.ShouldResearch
			state.SearchQuery = strings.TrimSpace(decision.SearchQuery)
			if state.ShouldResearch && state.SearchQuery == "" {
				state.SearchQuery = state.Question
			}
		}
	}

	if w.override.Match(state.Question) {
		if !state.ShouldResearch || state.SearchQuery == "" {
			state.SearchQuery = w.override.DeriveQuery(state.Question)
		}
		if !state.ShouldResearch {
			w.log.Info("override forcing research",
				zap.String("question", state.Question),
				zap.String("query", state.SearchQuery))
			state.ShouldResearch = true
		}
	}

	if !state.ShouldResearch {
		state.SearchQuery = ""
	}
	w.log.Debug("research decision",
		zap.Bool("should_research", state.ShouldResearch),
		zap.String("query", state.SearchQuery))
}

// conductResearch runs the web search. Research is best-effort: the digest
// is marker text on failure or empty results, never an error.
func (w *Workflow) conductResearch(ctx context.Context, state *ConversationState) {
	state.SearchResults = w.research.Digest(ctx, state.SearchQuery)
}

// refineAnswer produces the final answer. Without research the initial
// answer passes through untouched, with no extra model call. With research
// the model synthesizes the initial answer and the digest; if that call
// fails the initial answer is returned with a degradation note.
func (w *Workflow) refineAnswer(ctx context.Context, state *ConversationState) {
	if !state.ShouldResearch {
		state.FinalAnswer = state.InitialAnswer
		return
	}

	refined, err := w.model.Chat(ctx, refinementMessages(state.Question, state.InitialAnswer, state.SearchResults))
	if err != nil {
		w.log.Warn("refinement failed, falling back to initial answer", zap.Error(err))
		state.FinalAnswer = state.InitialAnswer + degradationNote
		return
	}
	state.FinalAnswer = strings.TrimSpace(refined)
	w.log.Debug("answer refined", zap.Int("chars", len(state.FinalAnswer)))
}
