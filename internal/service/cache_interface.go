package service

import (
	"context"
)

// PageCache is an interface that abstracts page cache operations
// This allows for easier testing and mocking
type PageCache interface {
	Set(ctx context.Context, url, text string) error
	Get(ctx context.Context, url string) (string, error)
	Ping(ctx context.Context) error
	Close() error
}
