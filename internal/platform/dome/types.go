package dome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/shopspring/decimal"
)

// flexDecimal unmarshals from a JSON number, a numeric string, null or "".
// Valid is false for the last two and for an absent field.
type flexDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*f = flexDecimal{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = flexDecimal{Decimal: d, Valid: true}
	return nil
}

// flexInt64 unmarshals from a JSON number or a numeric string. Fractional
// values are truncated.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt64(n)
		return nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flexInt64: %q: %w", s, err)
	}
	*f = flexInt64(int64(x))
	return nil
}

// flexBool unmarshals from a JSON bool or a string ("true"/"false").
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexString unmarshals from a JSON string or number, keeping the literal
// text. Absent and null leave it nil.
type flexString struct {
	Value *string
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Value = &s
		return nil
	}
	lit := string(data)
	f.Value = &lit
	return nil
}

// --------------------------------------------------------------------------
// Orders
// --------------------------------------------------------------------------

// APIOrder is one filled order from GET /polymarket/orders.
type APIOrder struct {
	TokenID          string      `json:"token_id"`
	Side             string      `json:"side"`
	MarketSlug       string      `json:"market_slug"`
	ConditionID      string      `json:"condition_id"`
	Shares           flexDecimal `json:"shares"`
	SharesNormalized flexDecimal `json:"shares_normalized"`
	Price            flexDecimal `json:"price"`
	TxHash           string      `json:"tx_hash"`
	Title            string      `json:"title"`
	Timestamp        flexInt64   `json:"timestamp"`
	OrderHash        string      `json:"order_hash"`
	User             string      `json:"user"`
}

// APIOrdersResponse is the envelope of GET /polymarket/orders.
type APIOrdersResponse struct {
	Orders []APIOrder `json:"orders"`
}

// ToDomainTrade converts an APIOrder into a domain.Trade.
func (o *APIOrder) ToDomainTrade() domain.Trade {
	return domain.Trade{
		Price:          o.Price.Decimal,
		SizeNormalized: o.SharesNormalized.Decimal,
		Side:           domain.Side(strings.ToUpper(strings.TrimSpace(o.Side))),
		Timestamp:      int64(o.Timestamp),
		TokenID:        o.TokenID,
		ConditionID:    o.ConditionID,
		MarketSlug:     o.MarketSlug,
	}
}

// --------------------------------------------------------------------------
// Candlesticks
// --------------------------------------------------------------------------

// APICandlePrice holds a candle's OHLC. The *_dollars variants are preferred
// when present.
type APICandlePrice struct {
	Open         flexDecimal `json:"open"`
	High         flexDecimal `json:"high"`
	Low          flexDecimal `json:"low"`
	Close        flexDecimal `json:"close"`
	OpenDollars  flexDecimal `json:"open_dollars"`
	HighDollars  flexDecimal `json:"high_dollars"`
	LowDollars   flexDecimal `json:"low_dollars"`
	CloseDollars flexDecimal `json:"close_dollars"`
}

// APICandle is one upstream candlestick record.
type APICandle struct {
	EndPeriodTS  flexInt64      `json:"end_period_ts"`
	Price        APICandlePrice `json:"price"`
	Volume       flexDecimal    `json:"volume"`
	OpenInterest flexDecimal    `json:"open_interest"`
}

// ToDomainCandle converts an APICandle into a domain.Candle. The upstream
// period boundary is used unchanged as PeriodStart.
func (c *APICandle) ToDomainCandle() domain.Candle {
	return domain.Candle{
		PeriodStart: int64(c.EndPeriodTS),
		Open:        pick(c.Price.OpenDollars, c.Price.Open),
		High:        pick(c.Price.HighDollars, c.Price.High),
		Low:         pick(c.Price.LowDollars, c.Price.Low),
		Close:       pick(c.Price.CloseDollars, c.Price.Close),
		Volume:      c.Volume.Decimal,
	}
}

func pick(preferred, fallback flexDecimal) decimal.Decimal {
	if preferred.Valid {
		return preferred.Decimal
	}
	return fallback.Decimal
}

// APICandlesticksResponse is the envelope of GET /polymarket/candlesticks.
// Each element of Candlesticks is normally a [candles, tokenMetadata] tuple,
// one per outcome token; a flat list of candle objects is also accepted.
type APICandlesticksResponse struct {
	Candlesticks []json.RawMessage `json:"candlesticks"`
}

// FirstSeries returns the candles of the first outcome token.
func (r *APICandlesticksResponse) FirstSeries() ([]APICandle, error) {
	if len(r.Candlesticks) == 0 {
		return nil, nil
	}

	first := bytes.TrimSpace(r.Candlesticks[0])
	if len(first) > 0 && first[0] == '{' {
		out := make([]APICandle, len(r.Candlesticks))
		for i, raw := range r.Candlesticks {
			if err := json.Unmarshal(raw, &out[i]); err != nil {
				return nil, fmt.Errorf("candle %d: %w", i, err)
			}
		}
		return out, nil
	}

	var tuple []json.RawMessage
	if err := json.Unmarshal(first, &tuple); err != nil {
		return nil, fmt.Errorf("candlestick tuple: %w", err)
	}
	if len(tuple) == 0 {
		return nil, nil
	}
	var candles []APICandle
	if err := json.Unmarshal(tuple[0], &candles); err != nil {
		return nil, fmt.Errorf("candlestick series: %w", err)
	}
	return candles, nil
}

// --------------------------------------------------------------------------
// Orderbook snapshots
// --------------------------------------------------------------------------

// APIPriceLevel is one bid or ask entry of a snapshot.
type APIPriceLevel struct {
	Price flexDecimal `json:"price"`
	Size  flexDecimal `json:"size"`
}

// APISnapshot is one orderbook snapshot from GET /polymarket/orderbooks.
// Timestamp is unix milliseconds.
type APISnapshot struct {
	AssetID      string          `json:"assetId"`
	Market       flexString      `json:"market"`
	Bids         []APIPriceLevel `json:"bids"`
	Asks         []APIPriceLevel `json:"asks"`
	Timestamp    flexInt64       `json:"timestamp"`
	IndexedAt    flexInt64       `json:"indexedAt"`
	TickSize     flexString      `json:"tickSize"`
	MinOrderSize flexString      `json:"minOrderSize"`
	NegRisk      flexBool        `json:"negRisk"`
	Hash         flexString      `json:"hash"`
}

// APIOrderbooksResponse is the envelope of GET /polymarket/orderbooks.
type APIOrderbooksResponse struct {
	Snapshots []APISnapshot `json:"snapshots"`
}

// ToDomainSnapshot converts an APISnapshot into a domain.OrderbookSnapshot.
// Levels keep upstream order.
func (s *APISnapshot) ToDomainSnapshot() domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		AssetID:      s.AssetID,
		Market:       s.Market.Value,
		Bids:         toLevels(s.Bids),
		Asks:         toLevels(s.Asks),
		TickSize:     s.TickSize.Value,
		MinOrderSize: s.MinOrderSize.Value,
		NegRisk:      bool(s.NegRisk),
		Hash:         s.Hash.Value,
	}
	if s.Timestamp > 0 {
		snap.Timestamp = time.UnixMilli(int64(s.Timestamp)).UTC()
	}
	return snap
}

func toLevels(in []APIPriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		out = append(out, domain.PriceLevel{Price: l.Price.Decimal, Size: l.Size.Decimal})
	}
	return out
}
