package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Interval is a candle bucket width.
type Interval string

const (
	Interval1m Interval = "1m"
	Interval5m Interval = "5m"
	Interval1h Interval = "1h"
)

// ParseInterval validates s and returns the matching Interval.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Interval1m, Interval5m, Interval1h:
		return Interval(s), nil
	default:
		return "", fmt.Errorf("%w: %q (valid: 1m, 5m, 1h)", ErrInvalidInterval, s)
	}
}

// Seconds returns the bucket width in seconds, or 0 for an unknown interval.
func (i Interval) Seconds() int64 {
	switch i {
	case Interval1m:
		return 60
	case Interval5m:
		return 300
	case Interval1h:
		return 3600
	default:
		return 0
	}
}

// Candle is one OHLCV bucket. PeriodStart is unix seconds.
type Candle struct {
	PeriodStart int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
}

// MarshalJSON emits the compact chart format {t, o, h, l, c, v}.
func (c Candle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		T string          `json:"t"`
		O decimal.Decimal `json:"o"`
		H decimal.Decimal `json:"h"`
		L decimal.Decimal `json:"l"`
		C decimal.Decimal `json:"c"`
		V decimal.Decimal `json:"v"`
	}{
		T: time.Unix(c.PeriodStart, 0).UTC().Format(time.RFC3339),
		O: c.Open,
		H: c.High,
		L: c.Low,
		C: c.Close,
		V: c.Volume,
	})
}

// CandleSource records which pipeline step produced a series.
type CandleSource string

const (
	CandleSourceNone     CandleSource = "none"
	CandleSourceUpstream CandleSource = "upstream"
	CandleSourceTrades   CandleSource = "trades"
)

// CandleSeries is an ascending sequence of candles plus the path that built it.
type CandleSeries struct {
	Interval Interval     `json:"interval"`
	Source   CandleSource `json:"source"`
	Candles  []Candle     `json:"candles"`
}
