package domain

import (
	"context"
	"time"
)

// CacheEntry is one stored upstream response. Key is the endpoint path plus
// its canonical query string.
type CacheEntry struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// FetchFunc produces a fresh payload for a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// ResponseCache deduplicates identical upstream requests within a freshness
// window. Fetch errors are returned to the caller and never stored.
type ResponseCache interface {
	GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]byte, error)
}

// RateLimiter provides sliding-window rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
