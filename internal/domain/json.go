package domain

import "github.com/shopspring/decimal"

// Prices, sizes and totals go on the wire as JSON numbers; chart and ladder
// consumers do arithmetic on them directly. decimal.String never uses an
// exponent, so the digits are emitted exactly.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}
