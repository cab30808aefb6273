// Package llmutil parses structured payloads out of raw model output.
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Built with \x60 for backticks since Go raw strings cannot contain them.
var jsonFenceRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*([{\\[].*[}\\]])\\s*\x60\x60\x60")

// ParseJSONResponse parses a model response into T. Models routinely wrap
// JSON in markdown fences or surround it with conversational text; both are
// tolerated here so callers only deal with one parse error path.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := extractJSON(response)
	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model response: %w (payload: %s)", err, truncate(payload, 300))
	}
	return &result, nil
}

// extractJSON returns the most plausible JSON payload inside response.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		if m := jsonFenceRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
	}
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// Chatter around the payload; slice out the outermost structure.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		open := strings.Index(response, pair[0])
		close := strings.LastIndex(response, pair[1])
		if open != -1 && close > open {
			return response[open : close+1]
		}
	}
	return response
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
