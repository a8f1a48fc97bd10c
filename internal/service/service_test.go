package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream serves canned responses and counts calls per endpoint.
type fakeUpstream struct {
	mu sync.Mutex

	trades       []domain.Trade
	ordersErr    error
	candles      []domain.Candle
	candlesErr   error
	snapshots    []domain.OrderbookSnapshot
	snapshotsErr error

	orderLimits   []int
	candleCalls   int
	snapshotCalls int
	lastStart     time.Time
	lastEnd       time.Time
}

func (f *fakeUpstream) Orders(_ context.Context, _, _ string, limit int) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderLimits = append(f.orderLimits, limit)
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.trades[:min(limit, len(f.trades))], nil
}

func (f *fakeUpstream) Candlesticks(_ context.Context, _, _ string) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	return f.candles, f.candlesErr
}

func (f *fakeUpstream) Orderbooks(_ context.Context, _, _ string, start, end time.Time, _ int) ([]domain.OrderbookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	f.lastStart, f.lastEnd = start, end
	return f.snapshots, f.snapshotsErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(ts int64, price, size string, side domain.Side) domain.Trade {
	return domain.Trade{
		Price:          d(price),
		SizeNormalized: d(size),
		Side:           side,
		Timestamp:      ts,
		TokenID:        "tok-yes",
		ConditionID:    "0xcond",
		MarketSlug:     "will-it-rain",
	}
}

var errBoom = &domain.UpstreamError{Path: "/polymarket/candlesticks/0xcond", Status: 500, StatusText: "Internal Server Error"}

// --- price ---

func TestLatestPrice_FirstTrade(t *testing.T) {
	up := &fakeUpstream{trades: []domain.Trade{
		trade(200, "0.61", "10", domain.SideBuy),
		trade(100, "0.55", "5", domain.SideSell),
	}}
	svc := NewPriceService(up, discardLogger())

	price, err := svc.LatestPrice(context.Background(), "key", "will-it-rain")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(d("0.61")))
	assert.Equal(t, []int{1}, up.orderLimits)
}

func TestLatestPrice_PropagatesRateLimit(t *testing.T) {
	up := &fakeUpstream{ordersErr: domain.ErrRateLimited}
	svc := NewPriceService(up, discardLogger())

	price, err := svc.LatestPrice(context.Background(), "key", "slug")
	assert.Nil(t, price)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

// --- scenario A ---

func TestCandles_UpstreamPreferred(t *testing.T) {
	up := &fakeUpstream{
		trades: []domain.Trade{trade(1200, "0.42", "1", domain.SideBuy)},
		candles: []domain.Candle{{
			PeriodStart: 1000,
			Open:        d("0.40"),
			High:        d("0.45"),
			Low:         d("0.38"),
			Close:       d("0.42"),
			Volume:      decimal.Zero,
		}},
	}
	svc := NewCandleService(up, discardLogger())

	series, err := svc.Candles(context.Background(), "key", "will-it-rain", domain.Interval1m)
	require.NoError(t, err)
	assert.Equal(t, domain.CandleSourceUpstream, series.Source)
	require.Len(t, series.Candles, 1)

	c := series.Candles[0]
	assert.Equal(t, int64(1000), c.PeriodStart)
	assert.True(t, c.Open.Equal(d("0.40")))
	assert.True(t, c.High.Equal(d("0.45")))
	assert.True(t, c.Low.Equal(d("0.38")))
	assert.True(t, c.Close.Equal(d("0.42")))

	// No fallback fetch when the upstream series is usable.
	assert.Equal(t, []int{1}, up.orderLimits)
}

// --- scenario B ---

func TestCandles_FallbackToTrades(t *testing.T) {
	up := &fakeUpstream{
		// Newest first, as upstream returns them.
		trades: []domain.Trade{
			trade(70, "0.55", "3", domain.SideBuy),
			trade(40, "0.6", "2", domain.SideSell),
			trade(10, "0.5", "1", domain.SideBuy),
		},
		candlesErr: errBoom,
	}
	svc := NewCandleService(up, discardLogger())

	series, err := svc.Candles(context.Background(), "key", "will-it-rain", domain.Interval1m)
	require.NoError(t, err)
	assert.Equal(t, domain.CandleSourceTrades, series.Source)
	assert.Equal(t, []int{1, fallbackCandleTrades}, up.orderLimits)

	// 10 and 40 land in [0,60); 70 lands in [60,120).
	require.Len(t, series.Candles, 2)
	first := series.Candles[0]
	assert.Equal(t, int64(0), first.PeriodStart)
	assert.True(t, first.Open.Equal(d("0.5")))
	assert.True(t, first.High.Equal(d("0.6")))
	assert.True(t, first.Low.Equal(d("0.5")))
	assert.True(t, first.Close.Equal(d("0.6")))
	assert.True(t, first.Volume.Equal(d("3")))
	assert.Equal(t, int64(60), series.Candles[1].PeriodStart)
}

func TestBuildCandles_SingleBucket(t *testing.T) {
	trades := []domain.Trade{
		trade(10, "0.5", "1", domain.SideBuy),
		trade(40, "0.6", "2", domain.SideBuy),
		trade(55, "0.55", "4", domain.SideSell),
	}
	candles := BuildCandles(trades, domain.Interval1m)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, int64(0), c.PeriodStart)
	assert.True(t, c.Open.Equal(d("0.5")))
	assert.True(t, c.High.Equal(d("0.6")))
	assert.True(t, c.Low.Equal(d("0.5")))
	assert.True(t, c.Close.Equal(d("0.55")))
	assert.True(t, c.Volume.Equal(d("7")))
}

func TestBuildCandles_SameTimestampKeepsInputOrder(t *testing.T) {
	trades := []domain.Trade{
		trade(30, "0.7", "1", domain.SideBuy),
		trade(30, "0.3", "1", domain.SideBuy),
	}
	candles := BuildCandles(trades, domain.Interval1m)
	require.Len(t, candles, 1)
	assert.True(t, candles[0].Open.Equal(d("0.7")))
	assert.True(t, candles[0].Close.Equal(d("0.3")))
}

func TestBuildCandles_BucketBoundaries(t *testing.T) {
	trades := []domain.Trade{
		trade(299, "0.1", "1", domain.SideBuy),
		trade(300, "0.2", "1", domain.SideBuy),
		trade(0, "0.3", "1", domain.SideBuy),
		trade(3599, "0.4", "1", domain.SideBuy),
		trade(3600, "0.5", "1", domain.SideBuy),
	}
	candles := BuildCandles(trades, domain.Interval5m)
	starts := make([]int64, 0, len(candles))
	for _, c := range candles {
		starts = append(starts, c.PeriodStart)
	}
	assert.Equal(t, []int64{0, 300, 3300, 3600}, starts)

	hourly := BuildCandles(trades, domain.Interval1h)
	require.Len(t, hourly, 2)
	assert.Equal(t, int64(0), hourly[0].PeriodStart)
	assert.Equal(t, int64(3600), hourly[1].PeriodStart)
}

func TestBucketStart_Negative(t *testing.T) {
	assert.Equal(t, int64(-60), bucketStart(-1, 60))
	assert.Equal(t, int64(-60), bucketStart(-60, 60))
	assert.Equal(t, int64(0), bucketStart(59, 60))
}

func TestCandles_EmptyUpstreamSeriesFallsBack(t *testing.T) {
	up := &fakeUpstream{
		trades:  []domain.Trade{trade(10, "0.5", "1", domain.SideBuy)},
		candles: []domain.Candle{},
	}
	svc := NewCandleService(up, discardLogger())

	series, err := svc.Candles(context.Background(), "key", "slug", domain.Interval1m)
	require.NoError(t, err)
	assert.Equal(t, domain.CandleSourceTrades, series.Source)
	assert.Len(t, series.Candles, 1)
}

func TestCandles_MissingConditionSkipsUpstream(t *testing.T) {
	tr := trade(10, "0.5", "1", domain.SideBuy)
	tr.ConditionID = ""
	up := &fakeUpstream{trades: []domain.Trade{tr}}
	svc := NewCandleService(up, discardLogger())

	series, err := svc.Candles(context.Background(), "key", "slug", domain.Interval1m)
	require.NoError(t, err)
	assert.Equal(t, domain.CandleSourceTrades, series.Source)
	assert.Zero(t, up.candleCalls)
}

func TestCandles_InvalidInterval(t *testing.T) {
	up := &fakeUpstream{}
	svc := NewCandleService(up, discardLogger())

	_, err := svc.Candles(context.Background(), "key", "slug", domain.Interval("2m"))
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
	assert.Empty(t, up.orderLimits)
}

func TestCandles_LatestTradeErrorPropagates(t *testing.T) {
	up := &fakeUpstream{ordersErr: &domain.TransportError{Path: "/polymarket/orders", Err: errors.New("dial tcp: refused")}}
	svc := NewCandleService(up, discardLogger())

	series, err := svc.Candles(context.Background(), "key", "slug", domain.Interval1m)
	var te *domain.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Empty(t, series.Candles)
	assert.Zero(t, up.candleCalls)
}

// --- scenario C ---

func TestNoTrades_AllViewsEmpty(t *testing.T) {
	up := &fakeUpstream{}
	views := NewMarketViews(up, discardLogger())
	ctx := context.Background()

	price, err := views.LatestPrice(ctx, "key", "brand-new")
	require.NoError(t, err)
	assert.Nil(t, price)

	series, err := views.Candles(ctx, "key", "brand-new", domain.Interval5m)
	require.NoError(t, err)
	assert.Empty(t, series.Candles)
	assert.NotNil(t, series.Candles)
	assert.Equal(t, domain.CandleSourceNone, series.Source)

	book := views.Orderbook(ctx, "key", "brand-new")
	assert.Equal(t, domain.EmptyOrderbook(), book)

	assert.Zero(t, up.candleCalls)
	assert.Zero(t, up.snapshotCalls)
}

// --- scenario D ---

func TestOrderbook_RateLimitedSnapshotFallsBack(t *testing.T) {
	up := &fakeUpstream{
		trades: []domain.Trade{
			trade(100, "0.52", "10", domain.SideBuy),
			trade(99, "0.50", "5", domain.SideBuy),
			trade(98, "0.52", "2.5", domain.SideBuy),
			trade(97, "0.55", "4", domain.SideSell),
			trade(96, "0.57", "1", domain.SideSell),
		},
		snapshotsErr: domain.ErrRateLimited,
	}
	svc := NewOrderbookService(up, discardLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	book := svc.Orderbook(context.Background(), "key", "will-it-rain")

	assert.Equal(t, domain.BookSourceTrades, book.Source)
	assert.Equal(t, []int{1, fallbackBookTrades}, up.orderLimits)
	assert.Equal(t, now.Add(-time.Hour), up.lastStart)
	assert.Equal(t, now, up.lastEnd)

	require.Len(t, book.Bids, 2)
	assert.True(t, book.Bids[0].Price.Equal(d("0.52")))
	assert.True(t, book.Bids[0].Size.Equal(d("12.5")))
	assert.True(t, book.Bids[0].CumulativeSize.Equal(d("12.5")))
	assert.True(t, book.Bids[1].Price.Equal(d("0.5")))
	assert.True(t, book.Bids[1].CumulativeSize.Equal(d("17.5")))

	require.Len(t, book.Asks, 2)
	assert.True(t, book.Asks[0].Price.Equal(d("0.55")))
	assert.True(t, book.Asks[1].Price.Equal(d("0.57")))
	assert.True(t, book.Asks[1].CumulativeSize.Equal(d("5")))

	assert.Equal(t, domain.DefaultTickSize, book.TickSize)
	assert.Equal(t, domain.DefaultMinOrderSize, book.MinOrderSize)
	assert.False(t, book.IsNegRisk)
	assert.Nil(t, book.IntegrityHash)
	require.NotNil(t, book.AsOf)
	assert.Equal(t, now, *book.AsOf)
	require.NotNil(t, book.TokenID)
	assert.Equal(t, "tok-yes", *book.TokenID)
}

func TestFromTrades_LadderEncodesNumbers(t *testing.T) {
	view := FromTrades([]domain.Trade{trade(100, "0.50", "10", domain.SideBuy)}, time.Unix(100, 0))

	data, err := json.Marshal(view.Bids)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"price":0.5,"size":10,"total":10}]`, string(data))

	var levels []map[string]any
	require.NoError(t, json.Unmarshal(data, &levels))
	require.Len(t, levels, 1)
	assert.IsType(t, float64(0), levels[0]["price"])

	candles := BuildCandles([]domain.Trade{trade(70, "0.5", "2", domain.SideBuy)}, domain.Interval1m)
	data, err = json.Marshal(candles)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"t":"1970-01-01T00:01:00Z","o":0.5,"h":0.5,"l":0.5,"c":0.5,"v":2}]`, string(data))
}

func TestOrderbook_SnapshotPreferred(t *testing.T) {
	market := "0xcond"
	tick := "0.01"
	hash := "abc123"
	ts := time.UnixMilli(1757000000000).UTC()
	up := &fakeUpstream{
		trades: []domain.Trade{trade(100, "0.52", "10", domain.SideBuy)},
		snapshots: []domain.OrderbookSnapshot{{
			AssetID: "tok-yes",
			Market:  &market,
			// Deliberately unsorted.
			Bids: []domain.PriceLevel{
				{Price: d("0.48"), Size: d("100")},
				{Price: d("0.50"), Size: d("20")},
				{Price: d("0.49"), Size: d("30")},
			},
			Asks: []domain.PriceLevel{
				{Price: d("0.53"), Size: d("7")},
				{Price: d("0.51"), Size: d("3")},
			},
			Timestamp: ts,
			TickSize:  &tick,
			NegRisk:   true,
			Hash:      &hash,
		}},
	}
	svc := NewOrderbookService(up, discardLogger())

	book := svc.Orderbook(context.Background(), "key", "will-it-rain")

	assert.Equal(t, domain.BookSourceSnapshot, book.Source)
	assert.Equal(t, []int{1}, up.orderLimits)

	bidPrices := []string{}
	for _, l := range book.Bids {
		bidPrices = append(bidPrices, l.Price.String())
	}
	assert.Equal(t, []string{"0.5", "0.49", "0.48"}, bidPrices)
	assert.True(t, book.Bids[2].CumulativeSize.Equal(d("150")))
	assert.True(t, book.BidTotal.Equal(d("150")))
	assert.True(t, book.Asks[0].Price.Equal(d("0.51")))
	assert.True(t, book.AskTotal.Equal(d("10")))

	assert.Equal(t, "0.01", book.TickSize)
	assert.Equal(t, domain.DefaultMinOrderSize, book.MinOrderSize)
	assert.True(t, book.IsNegRisk)
	require.NotNil(t, book.IntegrityHash)
	assert.Equal(t, "abc123", *book.IntegrityHash)
	require.NotNil(t, book.AsOf)
	assert.Equal(t, ts, *book.AsOf)
	require.NotNil(t, book.Market)
	assert.Equal(t, "0xcond", *book.Market)
}

func TestOrderbook_EmptySnapshotFallsBack(t *testing.T) {
	up := &fakeUpstream{
		trades:    []domain.Trade{trade(100, "0.52", "10", domain.SideBuy)},
		snapshots: []domain.OrderbookSnapshot{},
	}
	svc := NewOrderbookService(up, discardLogger())

	book := svc.Orderbook(context.Background(), "key", "slug")
	assert.Equal(t, domain.BookSourceTrades, book.Source)
	assert.Len(t, book.Bids, 1)
	assert.Empty(t, book.Asks)
}

func TestOrderbook_FallbackFailureIsEmpty(t *testing.T) {
	up := &fakeUpstream{ordersErr: domain.ErrRateLimited}
	svc := NewOrderbookService(up, discardLogger())

	assert.Equal(t, domain.EmptyOrderbook(), svc.Orderbook(context.Background(), "key", "slug"))
}

func TestFromTrades_TruncatesToBestLevels(t *testing.T) {
	trades := make([]domain.Trade, 0, 40)
	for i := range 20 {
		price := decimal.NewFromInt(int64(i + 1)).Div(decimal.NewFromInt(100))
		trades = append(trades, domain.Trade{Price: price, SizeNormalized: decimal.NewFromInt(1), Side: domain.SideBuy})
		trades = append(trades, domain.Trade{Price: price.Add(d("0.5")), SizeNormalized: decimal.NewFromInt(2), Side: domain.SideSell})
	}

	book := FromTrades(trades, time.Unix(0, 0))

	require.Len(t, book.Bids, fallbackBookDepth)
	require.Len(t, book.Asks, fallbackBookDepth)
	assert.True(t, book.Bids[0].Price.Equal(d("0.2")))
	assert.True(t, book.Bids[fallbackBookDepth-1].Price.Equal(d("0.06")))
	assert.True(t, book.Asks[0].Price.Equal(d("0.51")))
	assert.True(t, book.Asks[fallbackBookDepth-1].Price.Equal(d("0.65")))

	// Side totals cover every level; the ladder only the kept ones.
	assert.True(t, book.BidTotal.Equal(d("20")))
	assert.True(t, book.Bids[fallbackBookDepth-1].CumulativeSize.Equal(d("15")))
	assert.True(t, book.AskTotal.Equal(d("40")))
}

func TestFromTrades_CollapsesEquivalentPrices(t *testing.T) {
	trades := []domain.Trade{
		{Price: d("0.50"), SizeNormalized: d("1"), Side: domain.SideBuy},
		{Price: d("0.5"), SizeNormalized: d("2"), Side: domain.SideBuy},
		{Price: d("0.500"), SizeNormalized: d("3"), Side: domain.SideBuy},
	}
	book := FromTrades(trades, time.Unix(0, 0))
	require.Len(t, book.Bids, 1)
	assert.True(t, book.Bids[0].Size.Equal(d("6")))
}

// --- properties over random trade sets ---

func randomTrades(r *rand.Rand, n int) []domain.Trade {
	trades := make([]domain.Trade, 0, n)
	for range n {
		side := domain.SideBuy
		if r.IntN(2) == 1 {
			side = domain.SideSell
		}
		trades = append(trades, domain.Trade{
			Price:          decimal.NewFromInt(int64(1 + r.IntN(99))).Div(decimal.NewFromInt(100)),
			SizeNormalized: decimal.NewFromInt(int64(1 + r.IntN(500))).Div(decimal.NewFromInt(10)),
			Side:           side,
			Timestamp:      1_757_000_000 + int64(r.IntN(4*3600)),
			TokenID:        "tok",
		})
	}
	return trades
}

func TestBuildCandles_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	intervals := []domain.Interval{domain.Interval1m, domain.Interval5m, domain.Interval1h}

	for iter := range 200 {
		trades := randomTrades(r, 1+r.IntN(200))
		interval := intervals[iter%len(intervals)]
		width := interval.Seconds()
		candles := BuildCandles(trades, interval)
		require.NotEmpty(t, candles)

		volume := decimal.Zero
		for i, c := range candles {
			assert.True(t, c.Low.LessThanOrEqual(decimal.Min(c.Open, c.Close)), "low above body")
			assert.True(t, c.High.GreaterThanOrEqual(decimal.Max(c.Open, c.Close)), "high below body")
			assert.Zero(t, c.PeriodStart%width)
			if i > 0 {
				assert.Greater(t, c.PeriodStart, candles[i-1].PeriodStart)
			}
			volume = volume.Add(c.Volume)
		}

		// Every trade belongs to exactly the candle whose window contains it.
		total := decimal.Zero
		for _, tr := range trades {
			total = total.Add(tr.SizeNormalized)
			found := false
			for _, c := range candles {
				if tr.Timestamp >= c.PeriodStart && tr.Timestamp < c.PeriodStart+width {
					found = true
					assert.True(t, tr.Price.GreaterThanOrEqual(c.Low))
					assert.True(t, tr.Price.LessThanOrEqual(c.High))
				}
			}
			assert.True(t, found, "trade at %d has no bucket", tr.Timestamp)
		}
		assert.True(t, volume.Equal(total))
	}
}

func assertDepthInvariant(t *testing.T, levels []domain.OrderLevel) {
	t.Helper()
	sum := decimal.Zero
	prev := decimal.Zero
	for _, l := range levels {
		sum = sum.Add(l.Size)
		assert.True(t, l.CumulativeSize.GreaterThanOrEqual(prev), "cumulative decreased")
		prev = l.CumulativeSize
	}
	if len(levels) > 0 {
		assert.True(t, levels[len(levels)-1].CumulativeSize.Equal(sum))
	}
}

func TestOrderbook_DepthProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))

	for range 100 {
		trades := randomTrades(r, 1+r.IntN(50))

		fromTrades := FromTrades(trades, time.Now())
		assertDepthInvariant(t, fromTrades.Bids)
		assertDepthInvariant(t, fromTrades.Asks)
		for i := 1; i < len(fromTrades.Bids); i++ {
			assert.True(t, fromTrades.Bids[i].Price.LessThan(fromTrades.Bids[i-1].Price))
		}
		for i := 1; i < len(fromTrades.Asks); i++ {
			assert.True(t, fromTrades.Asks[i].Price.GreaterThan(fromTrades.Asks[i-1].Price))
		}

		snap := domain.OrderbookSnapshot{AssetID: "tok"}
		for _, tr := range trades {
			level := domain.PriceLevel{Price: tr.Price, Size: tr.SizeNormalized}
			if tr.Side == domain.SideBuy {
				snap.Bids = append(snap.Bids, level)
			} else {
				snap.Asks = append(snap.Asks, level)
			}
		}
		fromSnap := FromSnapshot(snap, "tok")
		assertDepthInvariant(t, fromSnap.Bids)
		assertDepthInvariant(t, fromSnap.Asks)
		for i := 1; i < len(fromSnap.Bids); i++ {
			assert.True(t, fromSnap.Bids[i].Price.LessThanOrEqual(fromSnap.Bids[i-1].Price))
		}
	}
}

func TestOrderbook_LadderIsDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(17, 19))
	up := &fakeUpstream{
		trades:       randomTrades(r, 50),
		snapshotsErr: &domain.UpstreamError{Path: "/polymarket/orderbooks", Status: 503, StatusText: "Service Unavailable"},
	}
	svc := NewOrderbookService(up, discardLogger())

	tick := time.Unix(1_757_000_000, 0)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	first := svc.Orderbook(context.Background(), "key", "slug")
	second := svc.Orderbook(context.Background(), "key", "slug")

	assert.Equal(t, domain.BookSourceTrades, first.Source)
	assert.Equal(t, first.Bids, second.Bids)
	assert.Equal(t, first.Asks, second.Asks)
	require.NotNil(t, first.AsOf)
	require.NotNil(t, second.AsOf)
	assert.NotEqual(t, *first.AsOf, *second.AsOf)
}
