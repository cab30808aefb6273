package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"answerd/internal/config"
)

// searxngResponse is the JSON response from a SearXNG instance.
type searxngResponse struct {
	Query           string `json:"query"`
	NumberOfResults int    `json:"number_of_results"`
	Results         []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Engine  string  `json:"engine"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// SearXNG searches a self-hosted SearXNG instance over its JSON API.
type SearXNG struct {
	baseURL    string
	userAgent  string
	maxResults int
	httpClient *http.Client
}

// NewSearXNG creates a SearXNG provider from configuration.
func NewSearXNG(cfg config.SearchConfig) *SearXNG {
	return &SearXNG{
		baseURL:    cfg.SearXNGURL,
		userAgent:  cfg.UserAgent,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name implements Provider.
func (s *SearXNG) Name() string { return "searxng" }

// Search returns the top results for query, highest score first.
func (s *SearXNG) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("searxng returned 403; JSON API may not be enabled, check settings.yml for 'formats: [html, json]'")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("searxng returned status %d: %s", resp.StatusCode, string(body))
	}

	var searchResp searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	sort.SliceStable(searchResp.Results, func(i, j int) bool {
		return searchResp.Results[i].Score > searchResp.Results[j].Score
	})

	n := len(searchResp.Results)
	if n > s.maxResults {
		n = s.maxResults
	}
	results := make([]Result, 0, n)
	for _, r := range searchResp.Results[:n] {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

// HealthCheck verifies that the instance is reachable and its JSON API is
// enabled.
func (s *SearXNG) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/search?q=test&format=json", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searxng is unreachable at %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("searxng API access forbidden; enable the JSON format in settings.yml")
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("searxng returned server error %d", resp.StatusCode)
	}
	return nil
}
