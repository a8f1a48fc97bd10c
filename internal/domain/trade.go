package domain

import "github.com/shopspring/decimal"

// Side is the taker direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is a single filled order as reported by the upstream orders endpoint.
// Timestamp is unix seconds.
type Trade struct {
	Price          decimal.Decimal
	SizeNormalized decimal.Decimal
	Side           Side
	Timestamp      int64
	TokenID        string
	ConditionID    string
	MarketSlug     string
}
