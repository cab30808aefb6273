package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"answerd/internal/config"
	"answerd/internal/history"
	"answerd/internal/ollama"
	"answerd/internal/search"
	"answerd/internal/workflow"
)

// buildStore opens the configured history backend. The returned cleanup is
// safe to call exactly once.
func buildStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (history.Store, func(), error) {
	switch cfg.History.Backend {
	case "file":
		store, err := history.NewFileStore(cfg.History.FilePath, cfg.History.MaxTurns, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history file: %w", err)
		}
		return store, func() {}, nil
	case "memory":
		return history.NewMemoryStore(cfg.History.MaxTurns), func() {}, nil
	case "postgres":
		pool, err := history.ConnectPool(ctx, cfg.History.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store := history.NewPostgresStore(pool, cfg.History.MaxTurns, log)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// buildDigester assembles the search provider chain from configuration.
func buildDigester(cfg *config.Config, log *zap.Logger) *search.Digester {
	// SearXNG is preferred but needs a reachable self-hosted instance, so it
	// always carries DuckDuckGo behind it.
	var provider search.Provider
	switch cfg.Search.Provider {
	case "duckduckgo":
		provider = search.NewDuckDuckGo(cfg.Search)
	default:
		provider = search.NewFallback(log,
			search.NewSearXNG(cfg.Search),
			search.NewDuckDuckGo(cfg.Search))
	}

	var fetcher *search.PageFetcher
	if cfg.Search.FetchPages {
		fetcher = search.NewPageFetcher(cfg.Search)
	}
	return search.NewDigester(provider, fetcher, log)
}

// buildWorkflow assembles the answering pipeline.
func buildWorkflow(client *ollama.Client, cfg *config.Config, log *zap.Logger, opts ...workflow.Option) *workflow.Workflow {
	return workflow.New(client, buildDigester(cfg, log), workflow.NewOverride(cfg.Research), log, opts...)
}
