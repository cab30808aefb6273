package workflow

import "answerd/internal/history"

// ConversationState is the unit of work threaded through the pipeline. One
// state exists per run and is owned exclusively by it; steps mutate their
// own fields exactly once.
type ConversationState struct {
	// History holds the prior turns of the session, oldest first. The run
	// appends exactly one entry for the final answer and never truncates.
	History []history.Turn

	// Question is the current user question, immutable within a run.
	Question string

	// InitialAnswer is the model's direct answer, set by the first step.
	InitialAnswer string

	// ShouldResearch and SearchQuery are set by the decision step.
	// SearchQuery is non-empty exactly when ShouldResearch is true.
	ShouldResearch bool
	SearchQuery    string

	// SearchResults is the research digest. Empty means no search was
	// attempted; the "no results found" marker is a distinct value.
	SearchResults string

	// FinalAnswer is set by the refinement step: the initial answer copied
	// through when research was skipped, a synthesis otherwise.
	FinalAnswer string
}
