package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Defaults used whenever the book was not read from an upstream snapshot.
const (
	DefaultTickSize     = "0.001"
	DefaultMinOrderSize = "5"
)

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderLevel is a ladder row annotated with depth: CumulativeSize is the size
// available at this price or better.
type OrderLevel struct {
	Price          decimal.Decimal `json:"price"`
	Size           decimal.Decimal `json:"size"`
	CumulativeSize decimal.Decimal `json:"total"`
}

// BookSource records which pipeline step produced an orderbook view.
type BookSource string

const (
	BookSourceNone     BookSource = "none"
	BookSourceSnapshot BookSource = "snapshot"
	BookSourceTrades   BookSource = "trades"
)

// OrderbookView is the depth-annotated book served to the UI. Bids are sorted
// price-descending, asks price-ascending.
type OrderbookView struct {
	Bids          []OrderLevel    `json:"bids"`
	Asks          []OrderLevel    `json:"asks"`
	BidTotal      decimal.Decimal `json:"bidTotal"`
	AskTotal      decimal.Decimal `json:"askTotal"`
	AsOf          *time.Time      `json:"timestamp"`
	TokenID       *string         `json:"tokenId"`
	Market        *string         `json:"market"`
	TickSize      string          `json:"tickSize"`
	MinOrderSize  string          `json:"minOrderSize"`
	IsNegRisk     bool            `json:"negRisk"`
	IntegrityHash *string         `json:"hash"`
	Source        BookSource      `json:"source"`
}

// EmptyOrderbook returns the terminal view used when no book can be built.
func EmptyOrderbook() OrderbookView {
	return OrderbookView{
		Bids:         []OrderLevel{},
		Asks:         []OrderLevel{},
		TickSize:     DefaultTickSize,
		MinOrderSize: DefaultMinOrderSize,
		Source:       BookSourceNone,
	}
}

// OrderbookSnapshot is a point-in-time book as published by the upstream
// snapshot endpoint. Optional fields are nil when absent.
type OrderbookSnapshot struct {
	AssetID      string
	Market       *string
	Bids         []PriceLevel
	Asks         []PriceLevel
	Timestamp    time.Time
	TickSize     *string
	MinOrderSize *string
	NegRisk      bool
	Hash         *string
}
