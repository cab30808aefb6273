package workflow

import (
	"fmt"

	"answerd/internal/history"
	"answerd/internal/ollama"
	"answerd/internal/search"
)

const initialSystemPrompt = "You are a helpful assistant. Answer the user's question concisely and directly, using the conversation so far for context."

const decisionPromptFormat = `You are a research decision system. The user asked:

"%s"

An assistant answered from its fixed training knowledge:

"%s"

Decide whether a web search is needed to give an accurate, current answer. A search IS needed when the question concerns time-sensitive information, current events, current office-holders (chief ministers, presidents, prime ministers), prices, or anything that changes faster than training data. A search is NOT needed for stable facts, explanations, math, or coding help.

Respond ONLY with valid JSON in this exact format:
{"should_research": true/false, "search_query": "concise search query, empty string if no research needed"}

No other text.`

const refinementPromptFormat = `Here is the original question: %s

I initially considered this answer: %s

Here are up-to-date web search results that MUST be used to formulate the final answer:

%s

Based on the provided search results, and preferring them over prior knowledge wherever they conflict, give the most accurate and current answer to the original question. Be concise and answer directly. If the search results state a current fact that contradicts the initial answer, use the search results. Do not mention knowledge cutoffs.`

const refinementNoResultsFormat = `Here is the original question: %s

I initially considered this answer: %s

A web search was attempted but found no usable information (%s). Give the best answer you can from the initial answer and your own knowledge, and say explicitly that current information could not be verified rather than presenting uncertain facts as current.`

// degradationNote is appended to the initial answer when the refinement
// call fails after research ran.
const degradationNote = "\n\n(Note: additional research could not be incorporated.)"

// initialMessages replays the session history ahead of the question so the
// model sees the conversation context.
func initialMessages(hist []history.Turn, question string) []ollama.Message {
	messages := make([]ollama.Message, 0, len(hist)+2)
	messages = append(messages, ollama.Message{Role: ollama.RoleSystem, Content: initialSystemPrompt})
	for _, turn := range hist {
		role := ollama.RoleUser
		if turn.Role == history.RoleAssistant {
			role = ollama.RoleAssistant
		}
		messages = append(messages, ollama.Message{Role: role, Content: turn.Content})
	}
	return append(messages, ollama.Message{Role: ollama.RoleUser, Content: question})
}

func decisionMessages(question, initialAnswer string) []ollama.Message {
	return []ollama.Message{
		{Role: ollama.RoleUser, Content: fmt.Sprintf(decisionPromptFormat, question, initialAnswer)},
	}
}

func refinementMessages(question, initialAnswer, searchResults string) []ollama.Message {
	var content string
	switch searchResults {
	case search.Unavailable, search.NoResults:
		content = fmt.Sprintf(refinementNoResultsFormat, question, initialAnswer, searchResults)
	default:
		content = fmt.Sprintf(refinementPromptFormat, question, initialAnswer, searchResults)
	}
	return []ollama.Message{{Role: ollama.RoleUser, Content: content}}
}
