package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// snapshotWindow is how far back the snapshot endpoint is queried.
	snapshotWindow = time.Hour
	// fallbackBookTrades is how many recent trades seed the synthetic ladder.
	fallbackBookTrades = 50
	// fallbackBookDepth caps each side of the synthetic ladder.
	fallbackBookDepth = 15
)

// OrderbookService reconstructs a depth-annotated book, preferring the most
// recent upstream snapshot and falling back to aggregating recent trades.
type OrderbookService struct {
	upstream Upstream
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderbookService creates an OrderbookService.
func NewOrderbookService(up Upstream, logger *slog.Logger) *OrderbookService {
	return &OrderbookService{
		upstream: up,
		logger:   logger,
		now:      time.Now,
	}
}

// Orderbook always returns a view. Every failure is logged and collapses to
// domain.EmptyOrderbook().
func (s *OrderbookService) Orderbook(ctx context.Context, apiKey, slug string) (view domain.OrderbookView) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "orderbook_service: panic building book",
				slog.String("slug", slug),
				slog.Any("panic", r),
			)
			view = domain.EmptyOrderbook()
		}
	}()

	view, err := s.build(ctx, apiKey, slug)
	if err != nil {
		s.logger.WarnContext(ctx, "orderbook_service: returning empty book",
			slog.String("slug", slug),
			slog.Bool("upstream", domain.IsUpstreamFailure(err)),
			slog.String("error", err.Error()),
		)
		return domain.EmptyOrderbook()
	}
	return view
}

func (s *OrderbookService) build(ctx context.Context, apiKey, slug string) (domain.OrderbookView, error) {
	latest, ok, err := latestTrade(ctx, s.upstream, apiKey, slug)
	if err != nil {
		return domain.OrderbookView{}, err
	}
	if !ok || latest.TokenID == "" {
		return domain.EmptyOrderbook(), nil
	}

	now := s.now()
	snaps, err := s.upstream.Orderbooks(ctx, apiKey, latest.TokenID, now.Add(-snapshotWindow), now, 1)
	switch {
	case err != nil:
		s.logger.DebugContext(ctx, "orderbook_service: snapshot unavailable, using trades",
			slog.String("slug", slug),
			slog.String("token_id", latest.TokenID),
			slog.String("error", err.Error()),
		)
	case len(snaps) == 0:
		s.logger.DebugContext(ctx, "orderbook_service: no snapshot in window, using trades",
			slog.String("slug", slug),
			slog.String("token_id", latest.TokenID),
		)
	default:
		return FromSnapshot(snaps[0], latest.TokenID), nil
	}

	trades, err := s.upstream.Orders(ctx, apiKey, slug, fallbackBookTrades)
	if err != nil {
		return domain.OrderbookView{}, fmt.Errorf("orderbook_service: fallback trades %s: %w", slug, err)
	}
	if len(trades) == 0 {
		return domain.EmptyOrderbook(), nil
	}
	return FromTrades(trades, now), nil
}

// FromSnapshot turns an upstream snapshot into a view. Levels are re-sorted
// (bids descending, asks ascending; equal prices keep upstream order) before
// the running totals are computed. tokenID is used when the snapshot omits
// its asset id.
func FromSnapshot(snap domain.OrderbookSnapshot, tokenID string) domain.OrderbookView {
	bids := slices.Clone(snap.Bids)
	asks := slices.Clone(snap.Asks)
	slices.SortStableFunc(bids, func(a, b domain.PriceLevel) int { return b.Price.Cmp(a.Price) })
	slices.SortStableFunc(asks, func(a, b domain.PriceLevel) int { return a.Price.Cmp(b.Price) })

	view := domain.EmptyOrderbook()
	view.Source = domain.BookSourceSnapshot
	view.Bids, view.BidTotal = withDepth(bids)
	view.Asks, view.AskTotal = withDepth(asks)
	view.Market = snap.Market
	view.IsNegRisk = snap.NegRisk
	view.IntegrityHash = snap.Hash

	if snap.AssetID != "" {
		tokenID = snap.AssetID
	}
	if tokenID != "" {
		view.TokenID = &tokenID
	}
	if !snap.Timestamp.IsZero() {
		ts := snap.Timestamp.UTC()
		view.AsOf = &ts
	}
	if snap.TickSize != nil && *snap.TickSize != "" {
		view.TickSize = *snap.TickSize
	}
	if snap.MinOrderSize != nil && *snap.MinOrderSize != "" {
		view.MinOrderSize = *snap.MinOrderSize
	}
	return view
}

// FromTrades synthesizes a ladder from recent trades: BUY trades become bids
// and SELL trades asks, sizes are summed per distinct price, and each side is
// cut to the best fallbackBookDepth levels. BidTotal and AskTotal cover the
// whole side before the cut.
func FromTrades(trades []domain.Trade, asOf time.Time) domain.OrderbookView {
	bids := aggregateSide(trades, domain.SideBuy)
	asks := aggregateSide(trades, domain.SideSell)
	slices.SortStableFunc(bids, func(a, b domain.PriceLevel) int { return b.Price.Cmp(a.Price) })
	slices.SortStableFunc(asks, func(a, b domain.PriceLevel) int { return a.Price.Cmp(b.Price) })

	view := domain.EmptyOrderbook()
	view.Source = domain.BookSourceTrades
	view.BidTotal = sumSizes(bids)
	view.AskTotal = sumSizes(asks)
	view.Bids, _ = withDepth(bids[:min(len(bids), fallbackBookDepth)])
	view.Asks, _ = withDepth(asks[:min(len(asks), fallbackBookDepth)])

	if len(trades) > 0 && trades[0].TokenID != "" {
		tokenID := trades[0].TokenID
		view.TokenID = &tokenID
	}
	ts := asOf.UTC()
	view.AsOf = &ts
	return view
}

// aggregateSide sums sizes per distinct price for one side. Prices are keyed
// by their canonical decimal string, so 0.50 and 0.5 collapse together. The
// result preserves first-seen order.
func aggregateSide(trades []domain.Trade, side domain.Side) []domain.PriceLevel {
	index := make(map[string]int)
	levels := make([]domain.PriceLevel, 0)
	for _, t := range trades {
		if t.Side != side {
			continue
		}
		key := t.Price.String()
		if i, ok := index[key]; ok {
			levels[i].Size = levels[i].Size.Add(t.SizeNormalized)
			continue
		}
		index[key] = len(levels)
		levels = append(levels, domain.PriceLevel{Price: t.Price, Size: t.SizeNormalized})
	}
	return levels
}

// withDepth annotates already-ordered levels with running cumulative sizes
// and returns the final total.
func withDepth(levels []domain.PriceLevel) ([]domain.OrderLevel, decimal.Decimal) {
	out := make([]domain.OrderLevel, 0, len(levels))
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size)
		out = append(out, domain.OrderLevel{
			Price:          l.Price,
			Size:           l.Size,
			CumulativeSize: total,
		})
	}
	return out, total
}

func sumSizes(levels []domain.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size)
	}
	return total
}
