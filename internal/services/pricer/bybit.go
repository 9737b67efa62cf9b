package pricer

import (
	"context"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"dcapilot/internal/domain"
)

// BybitPricer serves live prices from the Bybit V5 API. Historical daily
// prices are not implemented for Bybit; use the Binance platform for
// backtests.
type BybitPricer struct {
	client *bybit.Client
}

// NewBybitPricer creates a Bybit-backed price source.
func NewBybitPricer(client *bybit.Client) *BybitPricer {
	return &BybitPricer{client: client}
}

// Latest fetches the current spot ticker price.
func (p *BybitPricer) Latest(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.PriceQuote{}, errors.Wrapf(err, "failed to fetch ticker for %s", pair.String())
	}
	if len(result.Result.Spot.List) == 0 {
		return domain.PriceQuote{}, errors.Wrapf(domain.ErrNoPrice, "bybit API returned empty prices for %s", pair.String())
	}

	price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
	if err != nil {
		return domain.PriceQuote{}, errors.Wrapf(err, "failed to parse price %q", result.Result.Spot.List[0].LastPrice)
	}

	return domain.PriceQuote{Price: price, AsOf: time.Now()}, nil
}

// Historical is not supported for Bybit.
func (p *BybitPricer) Historical(_ context.Context, pair domain.Pair, _ time.Time) (domain.PriceQuote, bool, error) {
	return domain.PriceQuote{}, false, errors.Wrapf(ErrHistoricalUnsupported, "pair %s", pair.String())
}
