// Package search turns a query into a text digest of web results.
//
// Providers return raw results; the Digester formats them for a model
// prompt and converts every failure mode into an explicit marker string, so
// callers never branch on search errors.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Markers stored in place of a digest. Both are distinct from the empty
// string, which means a search was never attempted.
const (
	// Unavailable replaces the digest when the provider failed.
	Unavailable = "search unavailable"
	// NoResults replaces the digest when the provider returned nothing.
	NoResults = "no results found"
)

// Result is a single search hit.
type Result struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// Provider performs a web search. Implementations cap and order their own
// results.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// Digester wraps a Provider and renders its results into prompt-ready text.
type Digester struct {
	provider Provider
	fetcher  *PageFetcher // nil disables page enrichment
	log      *zap.Logger
}

// NewDigester creates a Digester over provider. A nil fetcher skips page
// content enrichment and digests snippets only.
func NewDigester(provider Provider, fetcher *PageFetcher, log *zap.Logger) *Digester {
	return &Digester{
		provider: provider,
		fetcher:  fetcher,
		log:      log.Named("search"),
	}
}

// Digest searches for query and returns formatted results, or one of the
// marker strings. It never returns an error; research is best-effort.
func (d *Digester) Digest(ctx context.Context, query string) string {
	results, err := d.provider.Search(ctx, query)
	if err != nil {
		d.log.Warn("search failed",
			zap.String("provider", d.provider.Name()),
			zap.String("query", query),
			zap.Error(err))
		return Unavailable
	}
	if len(results) == 0 {
		d.log.Info("search returned no results", zap.String("query", query))
		return NoResults
	}

	d.log.Debug("search complete",
		zap.String("provider", d.provider.Name()),
		zap.Int("results", len(results)))

	bodies := d.bodies(ctx, results)

	var sb strings.Builder
	sb.WriteString("# Web Search Results\n\n")
	sb.WriteString("The following information was retrieved from the web:\n\n")
	sourceNum := 1
	for i, result := range results {
		body := bodies[i]
		if body == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("## Source %d: %s\n", sourceNum, result.Title))
		sb.WriteString(fmt.Sprintf("URL: %s\n\n", result.URL))
		sb.WriteString(body)
		sb.WriteString("\n\n---\n\n")
		sourceNum++
	}
	if sourceNum == 1 {
		return NoResults
	}
	return sb.String()
}

// bodies returns the digest body for each result: the fetched page text
// when enrichment is on and succeeded, the snippet otherwise.
func (d *Digester) bodies(ctx context.Context, results []Result) []string {
	bodies := make([]string, len(results))
	for i, r := range results {
		bodies[i] = strings.TrimSpace(r.Content)
	}
	if d.fetcher == nil {
		return bodies
	}

	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}
	pages := d.fetcher.FetchAll(ctx, urls)

	byURL := make(map[string]Page, len(pages))
	for _, p := range pages {
		byURL[p.URL] = p
	}
	for i, r := range results {
		p, ok := byURL[r.URL]
		if !ok || p.Err != nil || p.Text == "" {
			if p.Err != nil {
				d.log.Debug("page fetch failed", zap.String("url", r.URL), zap.Error(p.Err))
			}
			continue
		}
		bodies[i] = p.Text
	}
	return bodies
}
