package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"answerd/internal/config"
)

const pageWorkers = 5

// Page is the readable text of one fetched result page.
type Page struct {
	URL   string
	Title string
	Text  string
	Err   error
}

// PageFetcher downloads result pages and extracts their readable text, so a
// digest can carry more than engine snippets.
type PageFetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxWords   int
}

// NewPageFetcher creates a PageFetcher from configuration.
func NewPageFetcher(cfg config.SearchConfig) *PageFetcher {
	return &PageFetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxPageBytes,
		maxWords:  cfg.PageWords,
	}
}

// FetchAll fetches urls in parallel with a bounded worker pool and returns
// one Page per URL, in completion order.
func (f *PageFetcher) FetchAll(ctx context.Context, urls []string) []Page {
	if len(urls) == 0 {
		return []Page{}
	}

	jobs := make(chan string, len(urls))
	results := make(chan Page, len(urls))

	workers := pageWorkers
	if len(urls) < workers {
		workers = len(urls)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				results <- f.fetchOne(ctx, u)
			}
		}()
	}

	for _, u := range urls {
		jobs <- u
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var pages []Page
	for page := range results {
		pages = append(pages, page)
	}
	return pages
}

func (f *PageFetcher) fetchOne(ctx context.Context, urlStr string) Page {
	page := Page{URL: urlStr}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		page.Err = fmt.Errorf("failed to create request: %w", err)
		return page
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		page.Err = fmt.Errorf("request failed: %w", err)
		return page
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		page.Err = fmt.Errorf("HTTP %d", resp.StatusCode)
		return page
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" &&
		!strings.Contains(strings.ToLower(contentType), "text/html") &&
		!strings.Contains(strings.ToLower(contentType), "application/xhtml") {
		page.Err = fmt.Errorf("non-HTML content type: %s", contentType)
		return page
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		page.Err = fmt.Errorf("failed to read body: %w", err)
		return page
	}

	title, text, err := extractText(body, f.maxWords)
	if err != nil {
		page.Err = fmt.Errorf("failed to extract text: %w", err)
		return page
	}
	page.Title = title
	page.Text = text
	return page
}

// extractText pulls the title and readable body text out of an HTML
// document, capped at roughly maxWords words.
func extractText(htmlContent []byte, maxWords int) (title, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title = strings.TrimSpace(extractTitle(doc))
	text = strings.Join(strings.Fields(extractBodyText(doc)), " ")
	text = truncateWords(text, maxWords)
	return title, text, nil
}

func extractTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return nodeText(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := extractTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// extractBodyText walks the tree, skipping page chrome and non-content tags.
func extractBodyText(n *html.Node) string {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "nav", "footer", "header", "aside":
			return ""
		}
	}

	var text strings.Builder
	if n.Type == html.TextNode {
		text.WriteString(n.Data)
		text.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(extractBodyText(c))
	}
	return text.String()
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(nodeText(c))
	}
	return text.String()
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
