package pricer

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"dcapilot/internal/domain"
	"dcapilot/pkg/retrier"
)

// BinancePricer serves live prices and historical daily candles from the
// Binance public API.
type BinancePricer struct {
	client  *binance.Client
	retrier *retrier.Retrier
}

// NewBinancePricer creates a Binance-backed price source.
func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{
		client: client,
		retrier: retrier.New(
			retrier.WithMaxRetries(3),
			retrier.WithInitialInterval(500*time.Millisecond),
		),
	}
}

// Latest fetches the current market price.
func (p *BinancePricer) Latest(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	prices, err := retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) ([]*binance.SymbolPrice, error) {
		return p.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return domain.PriceQuote{}, errors.Wrapf(err, "failed to fetch price for %s", pair.String())
	}
	if len(prices) == 0 {
		return domain.PriceQuote{}, errors.Wrapf(domain.ErrNoPrice, "binance API returned empty prices for %s", pair.String())
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return domain.PriceQuote{}, errors.Wrapf(err, "failed to parse price %q", prices[0].Price)
	}

	return domain.PriceQuote{Price: price, AsOf: time.Now()}, nil
}

// Historical fetches the daily candle covering the given date and returns
// its high. Using high-of-day instead of close is the established fill
// convention; it biases backtest results optimistically.
func (p *BinancePricer) Historical(ctx context.Context, pair domain.Pair, date time.Time) (domain.PriceQuote, bool, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Millisecond)

	klines, err := retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) ([]*binance.Kline, error) {
		return p.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval("1d").
			StartTime(dayStart.UnixMilli()).
			EndTime(dayEnd.UnixMilli()).
			Limit(1).
			Do(ctx)
	})
	if err != nil {
		return domain.PriceQuote{}, false, errors.Wrapf(err, "failed to fetch daily kline for %s at %s",
			pair.String(), dayStart.Format(time.DateOnly))
	}
	if len(klines) == 0 {
		return domain.PriceQuote{}, false, nil
	}

	high, err := decimal.NewFromString(klines[0].High)
	if err != nil {
		return domain.PriceQuote{}, false, errors.Wrapf(err, "failed to parse high price %q", klines[0].High)
	}

	return domain.PriceQuote{Price: high, AsOf: dayStart}, true, nil
}
