package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
)

// Upstream is the subset of the Dome client the market-data services need.
// It is declared locally so the services do not depend on the concrete
// platform package.
type Upstream interface {
	Orders(ctx context.Context, apiKey, slug string, limit int) ([]domain.Trade, error)
	Candlesticks(ctx context.Context, apiKey, conditionID string) ([]domain.Candle, error)
	Orderbooks(ctx context.Context, apiKey, tokenID string, start, end time.Time, limit int) ([]domain.OrderbookSnapshot, error)
}

// latestTrade returns the most recent trade for slug, trusting upstream order
// (first element is the latest). ok is false when the market has no trades.
func latestTrade(ctx context.Context, up Upstream, apiKey, slug string) (domain.Trade, bool, error) {
	trades, err := up.Orders(ctx, apiKey, slug, 1)
	if err != nil {
		return domain.Trade{}, false, fmt.Errorf("latest trade %s: %w", slug, err)
	}
	if len(trades) == 0 {
		return domain.Trade{}, false, nil
	}
	return trades[0], true, nil
}

// MarketViews bundles the three caller-facing operations behind one value.
type MarketViews struct {
	*PriceService
	*CandleService
	*OrderbookService
}

// NewMarketViews builds all three services over the same upstream.
func NewMarketViews(up Upstream, logger *slog.Logger) *MarketViews {
	return &MarketViews{
		PriceService:     NewPriceService(up, logger),
		CandleService:    NewCandleService(up, logger),
		OrderbookService: NewOrderbookService(up, logger),
	}
}
