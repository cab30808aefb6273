package search

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Fallback tries providers in order, moving to the next only when the
// current one returns an error. An empty result set is a valid answer and
// stops the chain; fallback covers unreachable backends, not thin ones.
type Fallback struct {
	providers []Provider
	log       *zap.Logger
}

// NewFallback chains providers in priority order. At least one provider is
// required.
func NewFallback(log *zap.Logger, providers ...Provider) *Fallback {
	return &Fallback{
		providers: providers,
		log:       log.Named("search"),
	}
}

// Name implements Provider.
func (f *Fallback) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

// Search implements Provider. It returns the first successful provider's
// results, or the last error when every provider failed.
func (f *Fallback) Search(ctx context.Context, query string) ([]Result, error) {
	var lastErr error
	for i, p := range f.providers {
		results, err := p.Search(ctx, query)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if i < len(f.providers)-1 {
			f.log.Warn("provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("next", f.providers[i+1].Name()),
				zap.Error(err))
		}
	}
	if lastErr == nil {
		return nil, errors.New("no search providers configured")
	}
	return nil, lastErr
}
