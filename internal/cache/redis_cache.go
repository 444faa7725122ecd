package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCacheMiss is returned by Get when the page is not cached or has expired
var ErrCacheMiss = errors.New("page not found in cache")

// RedisCache caches fetched page text in Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// RedisCacheConfig holds Redis cache configuration
type RedisCacheConfig struct {
	Addr     string // e.g., "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // e.g., 60 * time.Second
}

// cachedPage is the stored value
type cachedPage struct {
	URL       string    `json:"url"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(config RedisCacheConfig, logger zerolog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisCache{
		client: client,
		ttl:    config.TTL,
		logger: logger.With().Str("component", "page_cache").Logger(),
	}
}

func pageKey(url string) string {
	return "page:" + url
}

// Set caches the text of a fetched page
func (c *RedisCache) Set(ctx context.Context, url, text string) error {
	key := pageKey(url)

	data, err := json.Marshal(cachedPage{URL: url, Text: text, FetchedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal page: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}

	c.logger.Debug().
		Str("key", key).
		Int("bytes", len(text)).
		Dur("ttl", c.ttl).
		Msg("cached page")

	return nil
}

// Get returns the cached text of a page, or ErrCacheMiss
func (c *RedisCache) Get(ctx context.Context, url string) (string, error) {
	data, err := c.client.Get(ctx, pageKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	} else if err != nil {
		return "", fmt.Errorf("failed to get from Redis: %w", err)
	}

	var page cachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return "", fmt.Errorf("failed to unmarshal page: %w", err)
	}

	return page.Text, nil
}

// Ping checks Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
