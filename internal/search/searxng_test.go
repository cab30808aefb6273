package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answerd/internal/config"
)

func newSearXNG(t *testing.T, handler http.Handler) *SearXNG {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSearXNG(config.SearchConfig{
		SearXNGURL: srv.URL,
		UserAgent:  "answerd/test",
		MaxResults: 3,
		Timeout:    5 * time.Second,
	})
}

func TestSearXNGSearch(t *testing.T) {
	provider := newSearXNG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "capital of France", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "answerd/test", r.Header.Get("User-Agent"))

		w.Write([]byte(`{
			"query": "capital of France",
			"number_of_results": 4,
			"results": [
				{"title": "Low", "url": "https://low.test", "content": "low", "score": 0.3},
				{"title": "High", "url": "https://high.test", "content": "high", "score": 9.9},
				{"title": "Mid", "url": "https://mid.test", "content": "mid", "score": 4.2},
				{"title": "Tiny", "url": "https://tiny.test", "content": "tiny", "score": 0.1}
			]
		}`))
	}))

	results, err := provider.Search(context.Background(), "capital of France")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "High", results[0].Title)
	assert.Equal(t, "Mid", results[1].Title)
	assert.Equal(t, "Low", results[2].Title)
}

func TestSearXNGForbidden(t *testing.T) {
	provider := newSearXNG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := provider.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings.yml")
}

func TestSearXNGServerError(t *testing.T) {
	provider := newSearXNG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := provider.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSearXNGEmptyResults(t *testing.T) {
	provider := newSearXNG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query": "q", "number_of_results": 0, "results": []}`))
	}))

	results, err := provider.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearXNGHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		provider := newSearXNG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"results": []}`))
		}))
		assert.NoError(t, provider.HealthCheck(context.Background()))
	})

	t.Run("forbidden", func(t *testing.T) {
		provider := newSearXNG(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		err := provider.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "forbidden")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		provider := NewSearXNG(config.SearchConfig{SearXNGURL: srv.URL, MaxResults: 3, Timeout: time.Second})
		assert.Error(t, provider.HealthCheck(context.Background()))
	})
}
