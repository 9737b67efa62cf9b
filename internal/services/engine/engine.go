// Package engine turns a due bot and a price quote into a persisted trade.
// All state changes of one execution commit atomically through the store;
// a failed execution leaves bot and session untouched so the bot stays due
// and is retried on the next tick.
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dcapilot/internal/domain"
	"dcapilot/internal/services/strategy"
	"dcapilot/internal/storage"
	"dcapilot/internal/storage/journal"
)

// Engine executes due bots.
type Engine struct {
	store    storage.Store
	strategy strategy.Strategy
	// journal is nil in backtest mode: replays do not write intents.
	journal *journal.Journal
	l       *zap.Logger
}

// New creates an execution engine. Pass a nil journal for backtests.
func New(store storage.Store, strat strategy.Strategy, jrnl *journal.Journal, l *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		strategy: strat,
		journal:  jrnl,
		l:        l,
	}
}

// Execute performs one execution for the given bot at the given time.
// Preconditions: the bot is Active, the session is Running and the quote
// carries a positive price. On success the bot and session are updated in
// place to their persisted state; on any error they are left unmodified.
//
// The engine does not deduplicate concurrent calls itself: the store's
// version check rejects the loser with domain.ErrConflict, and the caller
// abandons the tick.
func (e *Engine) Execute(ctx context.Context, bot *domain.Bot, session *domain.Session, quote domain.PriceQuote, at time.Time) (domain.Trade, error) {
	if bot.Status != domain.BotActive {
		return domain.Trade{}, errors.Wrapf(domain.ErrBotNotActive, "bot %s is %s", bot.ID, bot.Status)
	}
	if session.Status != domain.SessionRunning {
		return domain.Trade{}, errors.Wrapf(domain.ErrSessionNotRunning, "session %s is %s", session.ID, session.Status)
	}
	if !quote.Valid() {
		return domain.Trade{}, errors.Wrapf(domain.ErrNoPrice, "bot %s got price %s", bot.ID, quote.Price.String())
	}

	trade, err := e.strategy.BuildTrade(session.ID, bot.Config, quote, at)
	if err != nil {
		return domain.Trade{}, errors.Wrap(err, "failed to build trade")
	}

	// the budget check re-reads and sums the full trade list on every
	// execution. O(n) per call, a known scaling limit acceptable at DCA
	// cadence.
	trades, err := e.store.ListTrades(ctx, session.ID)
	if err != nil {
		return domain.Trade{}, errors.Wrapf(err, "failed to list trades of session %s", session.ID)
	}
	trades = append(trades, trade)
	metric := domain.ComputeMetric(session.ID, trades, quote.Price)

	// stage the update on copies; the caller's bot and session only change
	// once the store commit succeeds.
	updatedBot := *bot
	lastRun := at
	next := e.strategy.NextExecution(bot.Config, at)
	updatedBot.LastRun = &lastRun
	updatedBot.NextExecutionTime = &next

	updatedSession := *session
	if metric.BudgetExhausted(bot.Config.MaxTotalInvestment) {
		// terminal until the user manually reactivates the bot.
		updatedBot.Status = domain.BotCompleted
		finalBalance := session.InitialBalance.Sub(metric.TotalInvested).Add(metric.TotalValue)
		updatedSession.Complete(at, finalBalance)
	}

	intent, err := e.prepareIntent(bot, session, trade)
	if err != nil {
		return domain.Trade{}, err
	}

	update := storage.ExecutionUpdate{
		Bot:             &updatedBot,
		Session:         &updatedSession,
		Trade:           trade,
		Metric:          metric,
		ExpectedVersion: bot.Version,
	}
	if err := e.store.ApplyExecution(ctx, update); err != nil {
		e.markIntentFailed(intent, err)
		return domain.Trade{}, errors.Wrapf(err, "failed to persist execution for bot %s", bot.ID)
	}
	e.markIntentDone(intent)

	*bot = updatedBot
	*session = updatedSession

	e.l.Info("executed DCA purchase",
		zap.String("bot", bot.ID),
		zap.String("session", session.ID),
		zap.String("price", trade.Price.String()),
		zap.String("quantity", trade.Quantity.String()),
		zap.String("total_invested", metric.TotalInvested.String()),
		zap.String("status", string(bot.Status)))

	return trade, nil
}

// ReportPendingIntents logs intents left pending by a previous run, so an
// operator can reconcile executions that died between the intent write and
// the store commit.
func (e *Engine) ReportPendingIntents() {
	if e.journal == nil {
		return
	}
	for _, intent := range e.journal.Pending() {
		e.l.Warn("found pending execution intent from a previous run",
			zap.String("intent", intent.ID),
			zap.String("bot", intent.BotID),
			zap.String("session", intent.SessionID),
			zap.Time("time", intent.Time))
	}
}

func (e *Engine) prepareIntent(bot *domain.Bot, session *domain.Session, trade domain.Trade) (*journal.Intent, error) {
	if e.journal == nil {
		return nil, nil
	}
	intent, err := e.journal.Prepare(bot.ID, session.ID, trade.Symbol, trade.Price, trade.Value, trade.Timestamp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to journal execution intent")
	}
	return intent, nil
}

func (e *Engine) markIntentFailed(intent *journal.Intent, cause error) {
	if e.journal == nil || intent == nil {
		return
	}
	if err := e.journal.MarkFailed(intent, cause); err != nil {
		e.l.Error("failed to persist failed intent status",
			zap.Error(err), zap.String("intent", intent.ID))
	}
}

func (e *Engine) markIntentDone(intent *journal.Intent) {
	if e.journal == nil || intent == nil {
		return
	}
	if err := e.journal.MarkDone(intent); err != nil {
		e.l.Error("failed to persist done intent status",
			zap.Error(err), zap.String("intent", intent.ID))
	}
}
