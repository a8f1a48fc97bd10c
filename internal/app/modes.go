package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyview/internal/cache/memory"
	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/alanyoungcy/polyview/internal/server"
	"github.com/alanyoungcy/polyview/internal/server/handler"
)

// ServerMode runs the HTTP API and, for the memory backend, the cache sweeper
// until the context is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	if deps.MemoryCache != nil {
		g.Go(func() error {
			return a.runSweeper(ctx, deps.MemoryCache, a.cfg.Cache.SweepInterval.Duration)
		})
	}

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the HTTP server goroutine and its shutdown watcher to
// the given errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var stats handler.CacheStats
	if deps.MemoryCache != nil {
		stats = deps.MemoryCache
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, strings.ToLower(a.cfg.Cache.Backend), stats),
		Markets: handler.NewMarketHandler(deps.Views, a.cfg.Dome.APIKey, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		Cooldown:          a.cfg.Server.Cooldown.Duration,
		TrustProxyHeaders: a.cfg.Server.TrustProxyHeaders,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runSweeper evicts expired cache entries every interval and logs the cache
// counters. It returns when ctx is cancelled.
func (a *App) runSweeper(ctx context.Context, cache *memory.ResponseCache, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := cache.Sweep()
			hits, misses := cache.Stats()
			a.logger.DebugContext(ctx, "cache sweep",
				slog.Int("removed", removed),
				slog.Int("entries", cache.Len()),
				slog.Int64("hits", hits),
				slog.Int64("misses", misses),
			)
		}
	}
}

// queryResult is the JSON document printed by query mode.
type queryResult struct {
	Slug      string               `json:"slug"`
	Price     *decimal.Decimal     `json:"price"`
	Candles   domain.CandleSeries  `json:"candles"`
	Orderbook domain.OrderbookView `json:"orderbook"`
}

// QueryMode fetches the three views for one slug concurrently, prints them as
// JSON, and returns.
func (a *App) QueryMode(ctx context.Context, deps *Dependencies) error {
	slug := a.cfg.Query.Slug
	interval, err := domain.ParseInterval(a.cfg.Query.Interval)
	if err != nil {
		return fmt.Errorf("query mode: %w", err)
	}
	apiKey := a.cfg.Dome.APIKey

	a.logger.InfoContext(ctx, "starting query mode",
		slog.String("slug", slug),
		slog.String("interval", string(interval)),
	)

	res := queryResult{Slug: slug}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		price, err := deps.Views.LatestPrice(gctx, apiKey, slug)
		if err != nil {
			return fmt.Errorf("query mode: price: %w", err)
		}
		res.Price = price
		return nil
	})
	g.Go(func() error {
		series, err := deps.Views.Candles(gctx, apiKey, slug, interval)
		if err != nil {
			return fmt.Errorf("query mode: candles: %w", err)
		}
		res.Candles = series
		return nil
	})
	g.Go(func() error {
		res.Orderbook = deps.Views.Orderbook(gctx, apiKey, slug)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("query mode: encode: %w", err)
	}
	return nil
}
