// Package poller drives live execution: a periodic timer scans for due
// bots and fires the execution engine once per due bot. This is the only
// component that calls Execute in live mode.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dcapilot/internal/domain"
	"dcapilot/internal/services/engine"
	"dcapilot/internal/services/pricer"
	"dcapilot/internal/storage"
)

// DefaultInterval is the scan period for due bots.
const DefaultInterval = 60 * time.Second

// drainTimeout bounds how long shutdown waits for in-flight executions.
const drainTimeout = 30 * time.Second

// Poller periodically executes due bots. Each due bot runs in its own
// goroutine so a slow price fetch for one bot never delays the others;
// the inflight set guarantees at most one in-process execution per bot,
// and the store's optimistic version backstops races across processes.
type Poller struct {
	store    storage.Store
	source   pricer.PriceSource
	engine   *engine.Engine
	interval time.Duration
	l        *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a poller. A non-positive interval falls back to the default.
func New(store storage.Store, source pricer.PriceSource, eng *engine.Engine, interval time.Duration, l *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		store:    store,
		source:   source,
		engine:   eng,
		interval: interval,
		l:        l,
		inflight: make(map[string]struct{}),
	}
}

// Run polls until the context is canceled. Shutdown is graceful: no new
// ticks are scheduled and in-flight executions are allowed to finish,
// bounded by drainTimeout.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.l.Info("starting schedule poller", zap.Duration("interval", p.interval))

	// executions run on a context detached from the shutdown signal, so an
	// in-flight tick can complete its price fetch and store commit while
	// Run drains. An abandoned execution would leave the bot due anyway,
	// letting it finish avoids the duplicate-looking retry on restart.
	execCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	for {
		select {
		case <-ctx.Done():
			p.l.Info("stopping schedule poller, draining in-flight executions")
			if err := p.drain(g); err != nil {
				p.l.Error("drain failed during shutdown", zap.Error(err))
			}
			return ctx.Err()
		case now := <-ticker.C:
			p.tick(execCtx, g, now)
		}
	}
}

func (p *Poller) drain(g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(drainTimeout):
		return errors.Errorf("in-flight executions did not finish within %s", drainTimeout)
	}
}

// tick schedules one execution attempt per due bot. It never blocks on
// the executions themselves.
func (p *Poller) tick(ctx context.Context, g *errgroup.Group, now time.Time) {
	due, err := p.store.ListDueBots(ctx, now)
	if err != nil {
		p.l.Error("failed to list due bots", zap.Error(err))
		return
	}

	for _, bot := range due {
		if !p.acquire(bot.ID) {
			// previous execution for this bot is still in flight.
			continue
		}
		bot := bot
		g.Go(func() error {
			defer p.release(bot.ID)
			p.executeBot(ctx, bot, now)
			return nil
		})
	}
}

// executeBot runs one bot once. Failures are logged, never propagated:
// one bot's persistent failure must not stop processing of other bots,
// and the bot simply stays due for the next tick.
func (p *Poller) executeBot(ctx context.Context, bot *domain.Bot, now time.Time) {
	if !bot.Due(now) {
		// the store's due query checks status and elapsed time only; the
		// schedule's start/end date window is enforced here.
		p.l.Debug("bot outside its schedule window, skipping", zap.String("bot", bot.ID))
		return
	}

	session, err := p.liveSession(ctx, bot, now)
	if err != nil {
		p.l.Error("failed to resolve live session", zap.String("bot", bot.ID), zap.Error(err))
		return
	}

	quote, err := p.source.Latest(ctx, bot.Config.Pair)
	if err != nil {
		p.l.Warn("price fetch failed, bot stays due",
			zap.String("bot", bot.ID), zap.Error(err))
		return
	}

	if _, err := p.engine.Execute(ctx, bot, session, quote, now); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			p.l.Debug("lost execution race, abandoning tick", zap.String("bot", bot.ID))
		case errors.Is(err, domain.ErrNoPrice):
			p.l.Warn("no usable price, skipping tick", zap.String("bot", bot.ID))
		default:
			p.l.Error("execution failed", zap.String("bot", bot.ID), zap.Error(err))
		}
	}
}

// liveSession returns the bot's running live session, creating one on the
// bot's first execution.
func (p *Poller) liveSession(ctx context.Context, bot *domain.Bot, now time.Time) (*domain.Session, error) {
	session, err := p.store.RunningSession(ctx, bot.ID, domain.SessionLive)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	// live sessions track net flow: the balance starts at zero, so the
	// final balance at completion is holdings value minus total invested.
	// A funded starting balance only exists in backtests.
	session = domain.NewSession(bot.ID, domain.SessionLive, now, decimal.Zero)
	if err := p.store.CreateSession(ctx, session); err != nil {
		return nil, errors.Wrap(err, "failed to create live session")
	}
	p.l.Info("started live session", zap.String("bot", bot.ID), zap.String("session", session.ID))
	return session, nil
}

func (p *Poller) acquire(botID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[botID]; busy {
		return false
	}
	p.inflight[botID] = struct{}{}
	return true
}

func (p *Poller) release(botID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, botID)
}
