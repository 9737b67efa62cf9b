// Package backtest replays a DCA schedule against historical daily prices
// through the same execution engine that serves live mode.
package backtest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dcapilot/internal/domain"
	"dcapilot/internal/services/engine"
	"dcapilot/internal/services/pricer"
	"dcapilot/internal/services/strategy"
	"dcapilot/internal/storage"
)

// syntheticBalance funds backtest sessions. The budget constraint, when
// configured, still comes from the schedule's max total investment and is
// independent of this balance.
var syntheticBalance = decimal.NewFromInt(1_000_000)

// Result summarizes one backtest run. DaysChecked counts iterated days,
// TradesExecuted the subset of days where a trade fired; the difference
// makes data gaps visible.
type Result struct {
	SessionID      string
	TradesExecuted int
	DaysChecked    int
}

// Runner drives the execution engine over a historical date range.
type Runner struct {
	store    storage.Store
	source   pricer.PriceSource
	strategy strategy.Strategy
	engine   *engine.Engine
	l        *zap.Logger
}

// NewRunner creates a backtest runner. The engine should carry no journal:
// replayed trades are not live execution intents.
func NewRunner(store storage.Store, source pricer.PriceSource, strat strategy.Strategy, eng *engine.Engine, l *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		source:   source,
		strategy: strat,
		engine:   eng,
		l:        l,
	}
}

// Run replays the schedule one calendar day at a time from start to end
// inclusive. Days without a due execution or without price data are
// skipped; budget exhaustion stops the replay immediately. Later days
// depend on budget state from earlier days, so the loop is strictly
// sequential.
func (r *Runner) Run(ctx context.Context, cfg domain.ScheduleConfig, start, end time.Time) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "invalid schedule config")
	}

	startDay := truncateToDay(start)
	endDay := truncateToDay(end)
	if startDay.After(endDay) {
		return Result{}, errors.Errorf("start date %s is after end date %s",
			startDay.Format(time.DateOnly), endDay.Format(time.DateOnly))
	}

	bot, err := domain.NewBot(cfg, startDay)
	if err != nil {
		return Result{}, err
	}
	if bot.Status != domain.BotActive {
		if err := bot.Start(startDay); err != nil {
			return Result{}, err
		}
	}
	if err := r.store.CreateBot(ctx, bot); err != nil {
		return Result{}, err
	}

	session := domain.NewSession(bot.ID, domain.SessionBacktest, startDay, syntheticBalance)
	if err := r.store.CreateSession(ctx, session); err != nil {
		return Result{}, err
	}

	r.l.Info("starting backtest",
		zap.String("session", session.ID),
		zap.String("pair", cfg.Pair.String()),
		zap.String("from", startDay.Format(time.DateOnly)),
		zap.String("to", endDay.Format(time.DateOnly)))

	result := Result{SessionID: session.ID}

	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		// cancellation is checked once per iterated day to bound
		// worst-case backtest duration.
		select {
		case <-ctx.Done():
			session.Status = domain.SessionStopped
			if err := r.store.UpdateSession(ctx, session); err != nil {
				r.l.Error("failed to mark session stopped", zap.Error(err))
			}
			return result, ctx.Err()
		default:
		}

		result.DaysChecked++

		if !r.strategy.DueOn(cfg, day) {
			continue
		}

		quote, found, err := r.source.Historical(ctx, cfg.Pair, day)
		if err != nil {
			if errors.Is(err, pricer.ErrHistoricalUnsupported) {
				return result, err
			}
			// per-day isolation: one day's failed fetch never aborts
			// the rest of the range.
			r.l.Warn("historical price fetch failed, skipping day",
				zap.String("day", day.Format(time.DateOnly)), zap.Error(err))
			continue
		}
		if !found {
			// expected at range edges before the asset traded.
			r.l.Debug("no historical price for day, skipping",
				zap.String("day", day.Format(time.DateOnly)))
			continue
		}

		if _, err := r.engine.Execute(ctx, bot, session, quote, day); err != nil {
			r.l.Warn("execution failed during backtest, skipping day",
				zap.String("day", day.Format(time.DateOnly)), zap.Error(err))
			continue
		}
		result.TradesExecuted++

		if bot.Status == domain.BotCompleted {
			r.l.Info("budget exhausted, stopping backtest early",
				zap.String("day", day.Format(time.DateOnly)),
				zap.Int("days_checked", result.DaysChecked))
			break
		}
	}

	if session.Status == domain.SessionRunning {
		if err := r.finalize(ctx, session, endDay); err != nil {
			return result, err
		}
	}

	r.l.Info("backtest finished",
		zap.String("session", session.ID),
		zap.Int("days_checked", result.DaysChecked),
		zap.Int("trades_executed", result.TradesExecuted))

	return result, nil
}

func (r *Runner) finalize(ctx context.Context, session *domain.Session, endDay time.Time) error {
	finalBalance := session.InitialBalance
	metric, err := r.store.GetMetric(ctx, session.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load final metric")
	}
	if metric != nil {
		finalBalance = session.InitialBalance.Sub(metric.TotalInvested).Add(metric.TotalValue)
	}

	session.Complete(endDay, finalBalance)
	return errors.Wrap(r.store.UpdateSession(ctx, session), "failed to complete session")
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
