package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyview/internal/cache/memory"
	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResponseCache implements domain.ResponseCache with plain Redis strings whose
// expiry is the cache TTL, so staleness is enforced by Redis itself.
//
// Key schema:
//
//	dome:resp:{path?query} - raw JSON payload, PX = ttl
//
// Redis errors never fail a request: a failed read is treated as a miss and a
// failed write is logged and dropped.
type ResponseCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache creates a ResponseCache backed by the given Client. A
// non-positive ttl selects memory.DefaultTTL so entries always expire.
func NewResponseCache(c *Client, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = memory.DefaultTTL
	}
	return &ResponseCache{
		rdb:    c.Underlying(),
		ttl:    ttl,
		logger: logger,
	}
}

func responseKey(key string) string {
	return "dome:resp:" + key
}

// GetOrFetch returns the stored payload for key if Redis still holds it,
// otherwise it calls fetch and stores the result for the TTL.
func (rc *ResponseCache) GetOrFetch(ctx context.Context, key string, fetch domain.FetchFunc) ([]byte, error) {
	rk := responseKey(key)

	data, err := rc.rdb.Get(ctx, rk).Bytes()
	switch {
	case err == nil:
		return data, nil
	case !errors.Is(err, redis.Nil):
		rc.logger.WarnContext(ctx, "redis: response cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := rc.rdb.Set(ctx, rk, payload, rc.ttl).Err(); err != nil {
		rc.logger.WarnContext(ctx, "redis: response cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return payload, nil
}

// Compile-time interface check.
var _ domain.ResponseCache = (*ResponseCache)(nil)
