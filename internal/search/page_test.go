package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answerd/internal/config"
)

func testFetcher(words int) *PageFetcher {
	return NewPageFetcher(config.SearchConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "answerd/test",
		MaxPageBytes: 1 << 20,
		PageWords:    words,
	})
}

func TestFetchOneExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "answerd/test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html>
<head><title>Election results</title><style>body { color: red }</style></head>
<body>
<nav>Home | About</nav>
<script>alert("hi")</script>
<p>The new government was sworn in on June 12, 2024.</p>
<footer>copyright</footer>
</body></html>`))
	}))
	defer srv.Close()

	pages := testFetcher(100).FetchAll(context.Background(), []string{srv.URL})
	require.Len(t, pages, 1)
	page := pages[0]
	require.NoError(t, page.Err)

	assert.Equal(t, "Election results", page.Title)
	assert.Contains(t, page.Text, "sworn in on June 12, 2024")
	assert.NotContains(t, page.Text, "alert")
	assert.NotContains(t, page.Text, "color: red")
	assert.NotContains(t, page.Text, "Home | About")
	assert.NotContains(t, page.Text, "copyright")
}

func TestFetchOneTruncatesWords(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body><p>")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "word%d ", i)
	}
	sb.WriteString("</p></body></html>")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(sb.String()))
	}))
	defer srv.Close()

	pages := testFetcher(50).FetchAll(context.Background(), []string{srv.URL})
	require.Len(t, pages, 1)
	require.NoError(t, pages[0].Err)

	words := strings.Fields(pages[0].Text)
	assert.Len(t, words, 50)
	assert.True(t, strings.HasSuffix(pages[0].Text, "..."))
}

func TestFetchOneRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	pages := testFetcher(100).FetchAll(context.Background(), []string{srv.URL})
	require.Len(t, pages, 1)
	require.Error(t, pages[0].Err)
	assert.Contains(t, pages[0].Err.Error(), "non-HTML")
}

func TestFetchOneHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pages := testFetcher(100).FetchAll(context.Background(), []string{srv.URL})
	require.Len(t, pages, 1)
	require.Error(t, pages[0].Err)
	assert.Contains(t, pages[0].Err.Error(), "HTTP 503")
}

func TestFetchAllManyURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>page%s</title></head><body>content of %s</body></html>", r.URL.Path, r.URL.Path)
	}))
	defer srv.Close()

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/%d", srv.URL, i)
	}

	pages := testFetcher(100).FetchAll(context.Background(), urls)
	require.Len(t, pages, 8)
	for _, p := range pages {
		assert.NoError(t, p.Err)
		assert.NotEmpty(t, p.Text)
	}
}

func TestFetchAllEmpty(t *testing.T) {
	pages := testFetcher(100).FetchAll(context.Background(), nil)
	assert.Empty(t, pages)
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "a b", truncateWords("a b", 5))
	assert.Equal(t, "a b...", truncateWords("a b c d", 2))
	assert.Equal(t, "", truncateWords("", 2))
}
