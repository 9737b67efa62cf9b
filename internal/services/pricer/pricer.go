// Package pricer provides price sources for live polling and historical
// backtesting.
package pricer

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"dcapilot/internal/domain"
)

// ErrHistoricalUnsupported is returned by sources that cannot serve
// per-day historical prices.
var ErrHistoricalUnsupported = errors.New("historical prices are not supported by this price source")

// PriceSource returns either the latest live price or the historical price
// for a given calendar date.
type PriceSource interface {
	// Latest returns the current market price.
	Latest(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error)

	// Historical returns the price for the given calendar date. The found
	// flag is false when no data exists for that date; missing data at
	// range edges is expected and not an error.
	Historical(ctx context.Context, pair domain.Pair, date time.Time) (domain.PriceQuote, bool, error)
}
