package dome

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
)

const (
	ordersPath       = "/polymarket/orders"
	candlesticksPath = "/polymarket/candlesticks/"
	orderbooksPath   = "/polymarket/orderbooks"
)

// Orders returns up to limit of the most recent trades for a market slug, in
// upstream order (latest first).
func (c *Client) Orders(ctx context.Context, apiKey, slug string, limit int) ([]domain.Trade, error) {
	body, err := c.Request(ctx, ordersPath, apiKey,
		P("market_slug", slug),
		P("limit", limit),
	)
	if err != nil {
		return nil, fmt.Errorf("dome: get orders %s: %w", slug, err)
	}

	var resp APIOrdersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dome: decode orders: %w", err)
	}

	trades := make([]domain.Trade, 0, len(resp.Orders))
	for i := range resp.Orders {
		trades = append(trades, resp.Orders[i].ToDomainTrade())
	}
	return trades, nil
}

// Candlesticks returns the upstream candle series for a condition id.
func (c *Client) Candlesticks(ctx context.Context, apiKey, conditionID string) ([]domain.Candle, error) {
	body, err := c.Request(ctx, candlesticksPath+url.PathEscape(conditionID), apiKey)
	if err != nil {
		return nil, fmt.Errorf("dome: get candlesticks %s: %w", conditionID, err)
	}

	var resp APICandlesticksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dome: decode candlesticks: %w", err)
	}
	series, err := resp.FirstSeries()
	if err != nil {
		return nil, fmt.Errorf("dome: decode candlesticks: %w", err)
	}

	candles := make([]domain.Candle, 0, len(series))
	for i := range series {
		candles = append(candles, series[i].ToDomainCandle())
	}
	return candles, nil
}

// Orderbooks returns up to limit snapshots for a token within [start, end].
func (c *Client) Orderbooks(ctx context.Context, apiKey, tokenID string, start, end time.Time, limit int) ([]domain.OrderbookSnapshot, error) {
	body, err := c.Request(ctx, orderbooksPath, apiKey,
		P("token_id", tokenID),
		P("start_time", start.UnixMilli()),
		P("end_time", end.UnixMilli()),
		P("limit", limit),
	)
	if err != nil {
		return nil, fmt.Errorf("dome: get orderbooks %s: %w", tokenID, err)
	}

	var resp APIOrderbooksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dome: decode orderbooks: %w", err)
	}

	snaps := make([]domain.OrderbookSnapshot, 0, len(resp.Snapshots))
	for i := range resp.Snapshots {
		snaps = append(snaps, resp.Snapshots[i].ToDomainSnapshot())
	}
	return snaps, nil
}
