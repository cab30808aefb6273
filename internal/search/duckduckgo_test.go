package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgLitePage = `
<html><body><table>
<tr><td><a rel="nofollow" class='result-link' href='https://en.wikipedia.org/wiki/Paris'>Paris - Wikipedia</a></td></tr>
<tr><td class='result-snippet'>Paris is the capital and largest city of France.</td></tr>
<tr><td><a rel="nofollow" class='result-link' href='https://example.com/paris'>Visit Paris &amp; more</a></td></tr>
<tr><td class='result-snippet'>Plan your trip to <b>Paris</b> today.</td></tr>
</table></body></html>`

func resetDDGRateLimit() {
	ddgRateLimit.mu.Lock()
	ddgRateLimit.last = time.Time{}
	ddgRateLimit.mu.Unlock()
}

func newDDG(t *testing.T, handler http.Handler) *DuckDuckGo {
	t.Helper()
	resetDDGRateLimit()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &DuckDuckGo{
		endpoint:   srv.URL,
		maxResults: 5,
		retryDelay: time.Millisecond,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestDuckDuckGoSearch(t *testing.T) {
	provider := newDDG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "capital of France", r.PostForm.Get("q"))
		w.Write([]byte(ddgLitePage))
	}))

	results, err := provider.Search(context.Background(), "capital of France")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Paris - Wikipedia", results[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris", results[0].URL)
	assert.Equal(t, "Paris is the capital and largest city of France.", results[0].Content)

	// Entities decoded, nested tags stripped.
	assert.Equal(t, "Visit Paris & more", results[1].Title)
	assert.Equal(t, "Plan your trip to Paris today.", results[1].Content)
}

func TestDuckDuckGoMaxResults(t *testing.T) {
	provider := newDDG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ddgLitePage))
	}))
	provider.maxResults = 1

	results, err := provider.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDuckDuckGoEmptyQuery(t *testing.T) {
	provider := newDDG(t, http.NotFoundHandler())
	_, err := provider.Search(context.Background(), "   ")
	require.Error(t, err)
}

func TestDuckDuckGoRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	provider := newDDG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(ddgLitePage))
	}))

	results, err := provider.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDuckDuckGoGivesUpAfterSecondTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	provider := newDDG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := provider.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(2), calls.Load())
}

func TestDuckDuckGoServerError(t *testing.T) {
	provider := newDDG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))

	_, err := provider.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDuckDuckGoFallbackParse(t *testing.T) {
	page := `
<html><body>
<a href="/internal">Internal nav link</a>
<a href="https://duckduckgo.com/about">About DDG</a>
<a href="https://news.test/article">A real external article</a>
</body></html>`
	provider := newDDG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))

	results, err := provider.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://news.test/article", results[0].URL)
	assert.Equal(t, "A real external article", results[0].Title)
}

func TestDuckDuckGoRateLimitHonorsContext(t *testing.T) {
	resetDDGRateLimit()
	ddgRateLimit.mu.Lock()
	ddgRateLimit.last = time.Now()
	ddgRateLimit.mu.Unlock()

	provider := &DuckDuckGo{
		endpoint:   "http://unused.test",
		maxResults: 5,
		httpClient: &http.Client{Timeout: time.Second},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := provider.Search(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
}
