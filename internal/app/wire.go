package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyview/internal/cache/memory"
	"github.com/alanyoungcy/polyview/internal/cache/redis"
	"github.com/alanyoungcy/polyview/internal/config"
	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/alanyoungcy/polyview/internal/platform/dome"
	"github.com/alanyoungcy/polyview/internal/service"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// ResponseCache is whichever backend cache.backend selected.
	ResponseCache domain.ResponseCache
	// MemoryCache is set only for the memory backend; the sweeper needs it.
	MemoryCache *memory.ResponseCache
	// RateLimiter is set whenever Redis is connected.
	RateLimiter domain.RateLimiter

	Dome  *dome.Client
	Views *service.MarketViews
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (shared cache backend and/or cooldown limiter) ---
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c
		deps.RateLimiter = redis.NewRateLimiter(c)
	}

	// --- Response cache ---
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		deps.ResponseCache = redis.NewResponseCache(redisClient, cfg.Cache.TTL.Duration, logger)
	default:
		mc := memory.NewResponseCache(cfg.Cache.TTL.Duration,
			memory.WithMaxEntries(cfg.Cache.MaxEntries),
		)
		deps.MemoryCache = mc
		deps.ResponseCache = mc
	}

	// --- Upstream client and services ---
	deps.Dome = dome.NewClient(dome.ClientConfig{
		BaseURL: cfg.Dome.BaseURL,
		Timeout: cfg.Dome.Timeout.Duration,
	}, deps.ResponseCache, logger)
	deps.Views = service.NewMarketViews(deps.Dome, logger)

	return deps, cleanup, nil
}
