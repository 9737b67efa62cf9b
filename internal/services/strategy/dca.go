package strategy

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"dcapilot/internal/domain"
)

// feeRate is a flat 0.1% taker fee. A deliberate simplification: real
// exchanges vary fees by volume tier.
var feeRate = decimal.NewFromFloat(0.001)

// DCA invests a fixed quote amount at fixed intervals regardless of price.
type DCA struct{}

var _ Strategy = DCA{}

// NewDCA returns the DCA strategy.
func NewDCA() DCA {
	return DCA{}
}

// NextExecution delegates to the schedule calculator.
func (DCA) NextExecution(cfg domain.ScheduleConfig, from time.Time) time.Time {
	return cfg.NextExecutionTime(from)
}

// DueOn delegates to the per-day schedule predicate.
func (DCA) DueOn(cfg domain.ScheduleConfig, date time.Time) bool {
	return cfg.DueOn(date)
}

// BuildTrade buys the configured quote amount at the quoted price.
func (DCA) BuildTrade(sessionID string, cfg domain.ScheduleConfig, quote domain.PriceQuote, at time.Time) (domain.Trade, error) {
	if !quote.Valid() {
		return domain.Trade{}, errors.Wrapf(domain.ErrNoPrice, "invalid quote price %s for %s",
			quote.Price.String(), cfg.Pair.String())
	}

	quantity := cfg.InvestmentAmount.Div(quote.Price)
	fee := cfg.InvestmentAmount.Mul(feeRate)

	return domain.NewTrade(sessionID, cfg.Pair.Symbol(), quote.Price, quantity, cfg.InvestmentAmount, fee, at)
}
