package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"answerd/internal/config"
	"answerd/internal/history"
	"answerd/internal/ollama"
	"answerd/internal/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reply struct {
	text string
	err  error
}

// scriptedModel replays canned replies: chat entries feed Chat/ChatStream
// calls in order, json entries feed ChatJSON calls.
type scriptedModel struct {
	chat []reply
	json []reply

	chatCalls    int
	jsonCalls    int
	lastMessages []ollama.Message
}

func (m *scriptedModel) next(script []reply, calls *int) (string, error) {
	if *calls >= len(script) {
		return "", errors.New("no scripted reply available")
	}
	r := script[*calls]
	*calls++
	return r.text, r.err
}

func (m *scriptedModel) Chat(_ context.Context, messages []ollama.Message) (string, error) {
	m.lastMessages = messages
	return m.next(m.chat, &m.chatCalls)
}

func (m *scriptedModel) ChatJSON(_ context.Context, messages []ollama.Message) (string, error) {
	m.lastMessages = messages
	return m.next(m.json, &m.jsonCalls)
}

func (m *scriptedModel) ChatStream(_ context.Context, messages []ollama.Message, onChunk func(string)) (string, error) {
	m.lastMessages = messages
	text, err := m.next(m.chat, &m.chatCalls)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(text, " ") {
		onChunk(word)
	}
	return text, nil
}

type fakeResearcher struct {
	digest  string
	queries []string
}

func (f *fakeResearcher) Digest(_ context.Context, query string) string {
	f.queries = append(f.queries, query)
	return f.digest
}

func defaultOverride(t *testing.T) *Override {
	t.Helper()
	return NewOverride(config.ResearchConfig{
		ForceTerms: []string{
			"chief minister", "president", "prime minister", "governor",
			"current leader", "latest leader", "who is", "today", "current", "latest",
		},
		RoleTerms: []string{"chief minister", "president", "prime minister", "governor"},
	})
}

func newTestWorkflow(t *testing.T, model ModelClient, research Researcher, opts ...Option) *Workflow {
	t.Helper()
	return New(model, research, defaultOverride(t), zap.NewNop(), opts...)
}

func TestRunNoResearchPassesInitialThrough(t *testing.T) {
	model := &scriptedModel{
		chat: []reply{{text: "The capital of France is Paris."}},
		json: []reply{{text: `{"should_research": false, "search_query": ""}`}},
	}
	research := &fakeResearcher{}
	w := newTestWorkflow(t, model, research)

	outcome, err := w.Run(context.Background(), "What is the capital of France?", nil)
	require.NoError(t, err)

	assert.Equal(t, "The capital of France is Paris.", outcome.FinalAnswer)
	assert.False(t, outcome.UsedResearch)
	assert.Empty(t, outcome.SearchQuery)
	// Pass-through: exactly one plain chat call, no search.
	assert.Equal(t, 1, model.chatCalls)
	assert.Empty(t, research.queries)
}

func TestRunWithResearchRefines(t *testing.T) {
	model := &scriptedModel{
		chat: []reply{
			{text: "I believe the answer is X."},
			{text: "According to the search results, the answer is Y."},
		},
		json: []reply{{text: `{"should_research": true, "search_query": "price of bitcoin now"}`}},
	}
	research := &fakeResearcher{digest: "# Web Search Results\n\nBitcoin trades at Y."}
	w := newTestWorkflow(t, model, research)

	outcome, err := w.Run(context.Background(), "What is the bitcoin price?", nil)
	require.NoError(t, err)

	assert.Equal(t, "According to the search results, the answer is Y.", outcome.FinalAnswer)
	assert.True(t, outcome.UsedResearch)
	assert.Equal(t, "price of bitcoin now", outcome.SearchQuery)
	require.Equal(t, []string{"price of bitcoin now"}, research.queries)
	// The refinement prompt carries the digest.
	assert.Contains(t, model.lastMessages[0].Content, "Bitcoin trades at Y.")
}

func TestOverrideForcesResearchOverModelDecision(t *testing.T) {
	model := &scriptedModel{
		chat: []reply{
			{text: "The chief minister is someone I remember from training."},
			{text: "Per current reporting, the chief minister is N. Chandrababu Naidu."},
		},
		json: []reply{{text: `{"should_research": false, "search_query": ""}`}},
	}
	research := &fakeResearcher{digest: "## Source 1: News\ncurrent CM is N. Chandrababu Naidu"}
	w := newTestWorkflow(t, model, research)

	outcome, err := w.Run(context.Background(), "Who is the current chief minister of Andhra Pradesh?", nil)
	require.NoError(t, err)

	assert.True(t, outcome.UsedResearch)
	assert.Equal(t, "current chief minister of andhra pradesh", outcome.SearchQuery)
	require.Len(t, research.queries, 1)
	assert.Contains(t, outcome.FinalAnswer, "Naidu")
}

func TestDecisionParseFailureFailsOpen(t *testing.T) {
	question := "Tell me about the weather patterns"
	model := &scriptedModel{
		chat: []reply{
			{text: "Weather varies."},
			{text: "Refined weather answer."},
		},
		json: []reply{{text: "I think you should probably search for this one!"}},
	}
	research := &fakeResearcher{digest: "some digest"}
	w := newTestWorkflow(t, model, research)

	outcome, err := w.Run(context.Background(), question, nil)
	require.NoError(t, err)

	assert.True(t, outcome.UsedResearch)
	assert.Equal(t, question, outcome.SearchQuery)
	require.Equal(t, []string{question}, research.queries)
}

func TestDecisionCallFailureFailsOpen(t *testing.T) {
	question := "Explain something stable"
	model := &scriptedModel{
		chat: []reply{
			{text: "A stable explanation."},
			{text: "Refined anyway."},
		},
		json: []reply{{err: errors.New("connection reset")}},
	}
	research := &fakeResearcher{digest: "digest"}
	w := newTestWorkflow(t, model, research)

	outcome, err := w.Run(context.Background(), question, nil)
	require.NoError(t, err)
	assert.True(t, outcome.UsedResearch)
	assert.Equal(t, question, outcome.SearchQuery)
}

func TestNoResultsStillProducesAnswer(t *testing.T) {
	model := &scriptedModel{
		chat: []reply{
			{text: "My best guess."},
			{text: "I could not verify current information, but my best guess stands."},
		},
		json: []reply{{text: `{"should_research": true, "search_query": "obscure query"}`}},
	}
	research := &fakeResearcher{digest: search.NoResults}
	w := newTestWorkflow(t, model, research)

	outcome, err := w.Run(context.Background(), "Something obscure?", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, outcome.FinalAnswer)
	assert.True(t, outcome.UsedResearch)
	// The marker reaches the refinement prompt as an explicit signal.
	assert.Contains(t, model.lastMessages[0].Content, search.NoResults)
}

func TestRefinementFailureFallsBackToInitial(t *testing.T) {
	model := &scriptedModel{
		chat: []reply{
			{text: "Initial answer."},
			{err: errors.New("model crashed mid-run")},
		},
		json: []reply{{text: `{"should_research": true, "search_query": "q"}`}},
	}
	research := &fakeResearcher{digest: "digest"}
	w := newTestWorkflow(t, model, research)

	outcome, err := w.Run(context.Background(), "Anything?", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(outcome.FinalAnswer, "Initial answer."))
	assert.Contains(t, outcome.FinalAnswer, "research could not be incorporated")
}

func TestInitialFailureAbortsRun(t *testing.T) {
	model := &scriptedModel{
		chat: []reply{{err: errors.New("connection refused")}},
	}
	w := newTestWorkflow(t, model, &fakeResearcher{})

	outcome, err := w.Run(context.Background(), "Anything?", nil)
	require.ErrorIs(t, err, ErrModelUnavailable)
	assert.Empty(t, outcome.FinalAnswer)
}

func TestRunReplaysHistoryIntoInitialPrompt(t *testing.T) {
	model := &scriptedModel{
		chat: []reply{{text: "As I said, it is Paris."}},
		json: []reply{{text: `{"should_research": false, "search_query": ""}`}},
	}
	w := newTestWorkflow(t, model, &fakeResearcher{})

	hist := []history.Turn{
		history.UserTurn("What is the capital of France?"),
		history.AssistantTurn("Paris.", nil),
	}
	_, err := w.Run(context.Background(), "Are you sure?", hist)
	require.NoError(t, err)

	// The decision prompt was the last call; inspect it for the question and
	// trust message ordering was exercised by the initial call not erroring.
	assert.Contains(t, model.lastMessages[0].Content, "Are you sure?")
	assert.Equal(t, 1, model.chatCalls)
}

func TestWithInitialStreamStreamsAnswer(t *testing.T) {
	var streamed strings.Builder
	model := &scriptedModel{
		chat: []reply{{text: "The capital of France is Paris."}},
		json: []reply{{text: `{"should_research": false, "search_query": ""}`}},
	}
	w := newTestWorkflow(t, model, &fakeResearcher{},
		WithInitialStream(func(chunk string) { streamed.WriteString(chunk) }))

	outcome, err := w.Run(context.Background(), "What is the capital of France?", nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.FinalAnswer, strings.TrimSpace(streamed.String()))
}

func TestOutcomeAnswerTurnCarriesMeta(t *testing.T) {
	withResearch := Outcome{FinalAnswer: "a", UsedResearch: true, SearchQuery: "q"}
	turn := withResearch.AnswerTurn()
	assert.Equal(t, history.RoleAssistant, turn.Role)
	require.NotNil(t, turn.Meta)
	assert.True(t, turn.Meta.SearchPerformed)
	assert.Equal(t, "q", turn.Meta.SearchQuery)

	without := Outcome{FinalAnswer: "a"}
	assert.Nil(t, without.AnswerTurn().Meta)
}
