// Package storage defines the persistence interface for bots, sessions,
// trades and performance metrics, implemented by the sqlite and memory
// backends.
package storage

import (
	"context"
	"time"

	"dcapilot/internal/domain"
)

// ExecutionUpdate is the atomic write produced by one engine execution:
// the trade append, the replaced session metric, the session state and the
// bot's advanced schedule, applied in a single transaction.
type ExecutionUpdate struct {
	Bot     *domain.Bot
	Session *domain.Session
	Trade   domain.Trade
	Metric  domain.PerformanceMetric

	// ExpectedVersion is the bot version the engine read before building
	// the update. The store must reject the whole update with
	// domain.ErrConflict if the bot row no longer carries this version.
	ExpectedVersion int64
}

// Store persists bots, sessions, trades and metrics.
type Store interface {
	// CreateBot inserts a new bot.
	CreateBot(ctx context.Context, bot *domain.Bot) error

	// GetBot retrieves a bot by id, or domain.ErrBotNotFound.
	GetBot(ctx context.Context, id string) (*domain.Bot, error)

	// UpdateBot persists user-driven state changes (start/pause/stop).
	// Increments the bot version.
	UpdateBot(ctx context.Context, bot *domain.Bot) error

	// ListBots returns all bots.
	ListBots(ctx context.Context) ([]*domain.Bot, error)

	// ListDueBots returns Active bots whose next execution time has
	// elapsed relative to now.
	ListDueBots(ctx context.Context, now time.Time) ([]*domain.Bot, error)

	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by id, or domain.ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// RunningSession returns the bot's running session in the given mode,
	// or domain.ErrSessionNotFound when none is running.
	RunningSession(ctx context.Context, botID string, mode domain.SessionMode) (*domain.Session, error)

	// UpdateSession persists session state changes outside executions.
	UpdateSession(ctx context.Context, session *domain.Session) error

	// ListTrades returns all trades of a session in append order.
	ListTrades(ctx context.Context, sessionID string) ([]domain.Trade, error)

	// GetMetric returns the latest metric of a session, or nil when the
	// session has no trades yet.
	GetMetric(ctx context.Context, sessionID string) (*domain.PerformanceMetric, error)

	// ApplyExecution applies one execution atomically. Returns
	// domain.ErrConflict when the bot version moved, in which case no
	// part of the update is persisted.
	ApplyExecution(ctx context.Context, update ExecutionUpdate) error

	// Close releases underlying resources.
	Close() error
}
