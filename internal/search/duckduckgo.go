package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"answerd/internal/config"
)

// ddgRateLimit enforces one query per second globally; the lite endpoint
// throttles aggressively.
var ddgRateLimit struct {
	mu   sync.Mutex
	last time.Time
}

const ddgEndpoint = "https://lite.duckduckgo.com/lite/"

var (
	ddgLinkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	ddgLinkPatternAlt = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([^<]+(?:<[^>]+>[^<]*</[^>]+>)*[^<]*)</td>`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
)

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// DuckDuckGo scrapes the DuckDuckGo lite HTML interface. It needs no
// self-hosted instance, which makes it the fallback provider.
type DuckDuckGo struct {
	endpoint   string
	maxResults int
	retryDelay time.Duration
	httpClient *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo provider from configuration.
func NewDuckDuckGo(cfg config.SearchConfig) *DuckDuckGo {
	return &DuckDuckGo{
		endpoint:   ddgEndpoint,
		maxResults: cfg.MaxResults,
		retryDelay: time.Second,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name implements Provider.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search scrapes the lite results page for query.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if err := d.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	formData := url.Values{}
	formData.Set("q", query)

	resp, err := d.post(ctx, formData)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()

		// Back off and retry once. A second 429 is an error; research is
		// best-effort and the caller degrades it to a marker.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.retryDelay):
		}
		resp, err = d.post(ctx, formData)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return d.parseResults(string(body)), nil
}

func (d *DuckDuckGo) post(ctx context.Context, formData url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return d.httpClient.Do(req)
}

func (d *DuckDuckGo) waitRateLimit(ctx context.Context) error {
	ddgRateLimit.mu.Lock()
	if wait := time.Until(ddgRateLimit.last.Add(time.Second)); wait > 0 {
		ddgRateLimit.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		ddgRateLimit.mu.Lock()
	}
	ddgRateLimit.last = time.Now()
	ddgRateLimit.mu.Unlock()
	return nil
}

// parseResults extracts results from the lite page, which pairs result-link
// anchors with result-snippet cells.
func (d *DuckDuckGo) parseResults(page string) []Result {
	matches := ddgLinkPattern.FindAllStringSubmatch(page, -1)
	if len(matches) == 0 {
		matches = ddgLinkPatternAlt.FindAllStringSubmatch(page, -1)
	}
	snippets := ddgSnippetPattern.FindAllStringSubmatch(page, -1)

	var results []Result
	for i, match := range matches {
		if len(match) < 3 {
			continue
		}
		urlStr := strings.TrimSpace(match[1])
		title := stripHTML(match[2])
		if urlStr == "" || title == "" {
			continue
		}
		snippet := ""
		if i < len(snippets) && len(snippets[i]) > 1 {
			snippet = stripHTML(snippets[i][1])
		}
		results = append(results, Result{Title: title, URL: urlStr, Content: snippet})
		if len(results) >= d.maxResults {
			return results
		}
	}
	if len(results) == 0 {
		results = d.fallbackParse(page)
	}
	return results
}

// fallbackParse scans for any external links when the page layout changed.
func (d *DuckDuckGo) fallbackParse(page string) []Result {
	linkPattern := regexp.MustCompile(`<a[^>]+href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)

	var results []Result
	seen := make(map[string]bool)
	for _, match := range linkPattern.FindAllStringSubmatch(page, -1) {
		if len(match) < 3 {
			continue
		}
		urlStr := strings.TrimSpace(match[1])
		title := stripHTML(match[2])

		if strings.Contains(urlStr, "duckduckgo.com") ||
			strings.HasPrefix(urlStr, "/") ||
			strings.HasPrefix(urlStr, "#") ||
			strings.HasPrefix(urlStr, "javascript:") {
			continue
		}
		if len(title) < 5 || seen[urlStr] {
			continue
		}
		seen[urlStr] = true

		results = append(results, Result{Title: title, URL: urlStr})
		if len(results) >= d.maxResults {
			break
		}
	}
	return results
}

// stripHTML removes tags and decodes common entities.
func stripHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(htmlEntities.Replace(s))
}
