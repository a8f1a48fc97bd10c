package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// PriceService derives a market's current price from its latest trade.
type PriceService struct {
	upstream Upstream
	logger   *slog.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(up Upstream, logger *slog.Logger) *PriceService {
	return &PriceService{
		upstream: up,
		logger:   logger,
	}
}

// LatestPrice returns the price of the most recent trade for slug, or nil if
// the market has never traded. Upstream failures are returned unchanged.
func (s *PriceService) LatestPrice(ctx context.Context, apiKey, slug string) (*decimal.Decimal, error) {
	trade, ok, err := latestTrade(ctx, s.upstream, apiKey, slug)
	if err != nil {
		return nil, fmt.Errorf("price_service: %w", err)
	}
	if !ok {
		return nil, nil
	}
	price := trade.Price
	return &price, nil
}
