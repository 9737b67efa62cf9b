// Package strategy defines the trading strategy contract and its DCA
// implementation. New strategies are added by implementing the interface,
// not by extending switch statements.
package strategy

import (
	"time"

	"dcapilot/internal/domain"
)

// Strategy decides when a bot executes and what trade a due execution
// produces.
type Strategy interface {
	// NextExecution computes the next due timestamp strictly after from.
	NextExecution(cfg domain.ScheduleConfig, from time.Time) time.Time

	// DueOn reports whether an execution is due on the given calendar
	// date. Backtests evaluate this per replayed day.
	DueOn(cfg domain.ScheduleConfig, date time.Time) bool

	// BuildTrade constructs the trade a due execution produces from the
	// given price quote.
	BuildTrade(sessionID string, cfg domain.ScheduleConfig, quote domain.PriceQuote, at time.Time) (domain.Trade, error)
}
