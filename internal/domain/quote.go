package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a single observed price for an asset, either live or the
// historical price for one calendar day.
type PriceQuote struct {
	Price decimal.Decimal
	AsOf  time.Time
}

// Valid reports whether the quote carries a usable price.
func (q PriceQuote) Valid() bool {
	return q.Price.GreaterThan(decimal.Zero)
}
