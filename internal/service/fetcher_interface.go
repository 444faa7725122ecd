package service

import (
	"context"
)

// PageFetcher returns the text of a page, or ok=false when it could not be fetched for any reason
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (text string, ok bool)
}

// Searcher looks a match up by team names when no source URL resolves
type Searcher interface {
	Search(ctx context.Context, home, away string) (text string, ok bool)
}
