package pricer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"dcapilot/internal/domain"
)

// StaticPricer serves prices from memory: a flat price, an optional
// per-date table, or both. Used by the static platform and tests.
type StaticPricer struct {
	flat   decimal.Decimal
	byDate map[string]decimal.Decimal
}

// NewStaticPricer creates a source returning the same price for every
// request, live or historical.
func NewStaticPricer(price decimal.Decimal) *StaticPricer {
	return &StaticPricer{flat: price}
}

// NewStaticTable creates a source serving historical prices from a table
// keyed by date in YYYY-MM-DD format. Dates absent from the table report
// no data.
func NewStaticTable(prices map[string]decimal.Decimal) *StaticPricer {
	return &StaticPricer{byDate: prices}
}

// Latest returns the flat price.
func (p *StaticPricer) Latest(_ context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	if p.flat.IsZero() {
		return domain.PriceQuote{}, errors.Wrapf(domain.ErrNoPrice, "no static price configured for %s", pair.String())
	}
	return domain.PriceQuote{Price: p.flat, AsOf: time.Now()}, nil
}

// Historical returns the table entry for the date, falling back to the
// flat price when no table is configured.
func (p *StaticPricer) Historical(_ context.Context, _ domain.Pair, date time.Time) (domain.PriceQuote, bool, error) {
	if p.byDate != nil {
		price, ok := p.byDate[date.Format(time.DateOnly)]
		if !ok {
			return domain.PriceQuote{}, false, nil
		}
		return domain.PriceQuote{Price: price, AsOf: date}, true, nil
	}
	if p.flat.IsZero() {
		return domain.PriceQuote{}, false, nil
	}
	return domain.PriceQuote{Price: p.flat, AsOf: date}, true, nil
}
