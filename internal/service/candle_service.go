package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/shopspring/decimal"
)

// fallbackCandleTrades is how many recent trades are bucketed when the
// upstream candlestick endpoint cannot be used.
const fallbackCandleTrades = 200

// CandleService builds OHLCV series, preferring the upstream candlestick
// endpoint and falling back to bucketing raw trades.
type CandleService struct {
	upstream Upstream
	logger   *slog.Logger
}

// NewCandleService creates a CandleService.
func NewCandleService(up Upstream, logger *slog.Logger) *CandleService {
	return &CandleService{
		upstream: up,
		logger:   logger,
	}
}

// Candles returns the candle series for slug at the given interval, ascending
// by PeriodStart. A market without trades yields an empty series, not an
// error. Only failures of the trade lookups are returned.
func (s *CandleService) Candles(ctx context.Context, apiKey, slug string, interval domain.Interval) (domain.CandleSeries, error) {
	empty := domain.CandleSeries{Interval: interval, Source: domain.CandleSourceNone, Candles: []domain.Candle{}}

	if interval.Seconds() == 0 {
		return empty, fmt.Errorf("candle_service: %w: %q", domain.ErrInvalidInterval, interval)
	}

	latest, ok, err := latestTrade(ctx, s.upstream, apiKey, slug)
	if err != nil {
		return empty, fmt.Errorf("candle_service: %w", err)
	}
	if !ok {
		return empty, nil
	}

	if candles, ok := s.upstreamCandles(ctx, apiKey, slug, latest.ConditionID); ok {
		return domain.CandleSeries{Interval: interval, Source: domain.CandleSourceUpstream, Candles: candles}, nil
	}

	trades, err := s.upstream.Orders(ctx, apiKey, slug, fallbackCandleTrades)
	if err != nil {
		return empty, fmt.Errorf("candle_service: fallback trades %s: %w", slug, err)
	}
	if len(trades) == 0 {
		return empty, nil
	}

	return domain.CandleSeries{
		Interval: interval,
		Source:   domain.CandleSourceTrades,
		Candles:  BuildCandles(trades, interval),
	}, nil
}

// upstreamCandles tries the dedicated candlestick endpoint. ok is false on
// any failure or an empty result.
func (s *CandleService) upstreamCandles(ctx context.Context, apiKey, slug, conditionID string) ([]domain.Candle, bool) {
	if conditionID == "" {
		s.logger.DebugContext(ctx, "candle_service: latest trade has no condition id, using trades",
			slog.String("slug", slug),
		)
		return nil, false
	}

	candles, err := s.upstream.Candlesticks(ctx, apiKey, conditionID)
	if err != nil {
		s.logger.DebugContext(ctx, "candle_service: candlesticks unavailable, using trades",
			slog.String("slug", slug),
			slog.String("condition_id", conditionID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if len(candles) == 0 {
		s.logger.DebugContext(ctx, "candle_service: candlesticks empty, using trades",
			slog.String("slug", slug),
			slog.String("condition_id", conditionID),
		)
		return nil, false
	}
	return candles, true
}

// BuildCandles buckets trades by floor(ts/width)*width and folds each
// non-empty bucket into one candle. Trades are stable-sorted by timestamp
// first, so trades sharing a timestamp keep their input order when picking
// open and close. Empty buckets are not emitted.
func BuildCandles(trades []domain.Trade, interval domain.Interval) []domain.Candle {
	width := interval.Seconds()
	if width <= 0 || len(trades) == 0 {
		return []domain.Candle{}
	}

	sorted := slices.Clone(trades)
	slices.SortStableFunc(sorted, func(a, b domain.Trade) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	candles := make([]domain.Candle, 0)
	var cur *domain.Candle
	for _, t := range sorted {
		start := bucketStart(t.Timestamp, width)
		if cur == nil || cur.PeriodStart != start {
			candles = append(candles, domain.Candle{
				PeriodStart: start,
				Open:        t.Price,
				High:        t.Price,
				Low:         t.Price,
				Close:       t.Price,
				Volume:      decimal.Zero,
			})
			cur = &candles[len(candles)-1]
		}
		cur.High = decimal.Max(cur.High, t.Price)
		cur.Low = decimal.Min(cur.Low, t.Price)
		cur.Close = t.Price
		cur.Volume = cur.Volume.Add(t.SizeNormalized)
	}
	return candles
}

// bucketStart floors ts to a multiple of width, rounding toward negative
// infinity.
func bucketStart(ts, width int64) int64 {
	q := ts / width
	if ts%width != 0 && ts < 0 {
		q--
	}
	return q * width
}
