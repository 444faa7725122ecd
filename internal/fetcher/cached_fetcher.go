package fetcher

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mauriiciiosouzaa/BrotherBot/internal/cache"
	"github.com/mauriiciiosouzaa/BrotherBot/internal/service"
)

// CachedFetcher serves pages from the page cache and fills it on a miss. Cache errors
// never turn a successful fetch into absence.
type CachedFetcher struct {
	next   service.PageFetcher
	cache  service.PageCache
	logger zerolog.Logger
}

// NewCachedFetcher wraps next with a page cache
func NewCachedFetcher(next service.PageFetcher, cache service.PageCache, logger zerolog.Logger) *CachedFetcher {
	return &CachedFetcher{
		next:   next,
		cache:  cache,
		logger: logger.With().Str("component", "cached_fetcher").Logger(),
	}
}

// Fetch returns the cached page text, fetching and caching it on a miss
func (f *CachedFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	text, err := f.cache.Get(ctx, url)
	if err == nil {
		f.logger.Debug().Str("url", url).Msg("page cache hit")
		return text, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		f.logger.Warn().Err(err).Str("url", url).Msg("page cache error")
	}

	text, ok := f.next.Fetch(ctx, url)
	if !ok {
		return "", false
	}

	if err := f.cache.Set(ctx, url, text); err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("failed to cache page")
	}
	return text, true
}
