// Package memory provides an in-memory Store for tests, backtests and the
// static platform. It honors the same optimistic-versioning contract as the
// sqlite backend.
package memory

import (
	"context"
	"sync"
	"time"

	"dcapilot/internal/domain"
	"dcapilot/internal/storage"
)

// Store keeps all state in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	bots     map[string]*domain.Bot
	sessions map[string]*domain.Session
	trades   map[string][]domain.Trade           // keyed by session id
	metrics  map[string]domain.PerformanceMetric // keyed by session id
}

var _ storage.Store = (*Store)(nil)

// New constructs an empty memory-backed store.
func New() *Store {
	return &Store{
		bots:     make(map[string]*domain.Bot),
		sessions: make(map[string]*domain.Session),
		trades:   make(map[string][]domain.Trade),
		metrics:  make(map[string]domain.PerformanceMetric),
	}
}

func cloneBot(b *domain.Bot) *domain.Bot {
	c := *b
	if b.LastRun != nil {
		lastRun := *b.LastRun
		c.LastRun = &lastRun
	}
	if b.NextExecutionTime != nil {
		next := *b.NextExecutionTime
		c.NextExecutionTime = &next
	}
	return &c
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	return &c
}

// CreateBot inserts a new bot.
func (s *Store) CreateBot(_ context.Context, bot *domain.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.ID] = cloneBot(bot)
	return nil
}

// GetBot retrieves a bot by id.
func (s *Store) GetBot(_ context.Context, id string) (*domain.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	return cloneBot(bot), nil
}

// UpdateBot persists user-driven bot changes and bumps the version.
func (s *Store) UpdateBot(_ context.Context, bot *domain.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bots[bot.ID]; !ok {
		return domain.ErrBotNotFound
	}
	updated := cloneBot(bot)
	updated.Version++
	s.bots[bot.ID] = updated
	bot.Version = updated.Version
	return nil
}

// ListBots returns all bots.
func (s *Store) ListBots(_ context.Context) ([]*domain.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bots := make([]*domain.Bot, 0, len(s.bots))
	for _, bot := range s.bots {
		bots = append(bots, cloneBot(bot))
	}
	return bots, nil
}

// ListDueBots returns Active bots with an elapsed next execution time.
func (s *Store) ListDueBots(_ context.Context, now time.Time) ([]*domain.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*domain.Bot
	for _, bot := range s.bots {
		if bot.Due(now) {
			due = append(due, cloneBot(bot))
		}
	}
	return due, nil
}

// CreateSession inserts a new session.
func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// RunningSession returns the bot's running session in the given mode.
func (s *Store) RunningSession(_ context.Context, botID string, mode domain.SessionMode) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.BotID == botID && session.Mode == mode && session.Status == domain.SessionRunning {
			return cloneSession(session), nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

// UpdateSession persists session changes.
func (s *Store) UpdateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// ListTrades returns the session's trades in append order.
func (s *Store) ListTrades(_ context.Context, sessionID string) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trades := s.trades[sessionID]
	out := make([]domain.Trade, len(trades))
	copy(out, trades)
	return out, nil
}

// GetMetric returns the latest session metric, nil when absent.
func (s *Store) GetMetric(_ context.Context, sessionID string) (*domain.PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metric, ok := s.metrics[sessionID]
	if !ok {
		return nil, nil
	}
	return &metric, nil
}

// ApplyExecution applies one execution atomically. The version check and
// all writes happen under one lock, so two racing executions for the same
// bot cannot both succeed.
func (s *Store) ApplyExecution(_ context.Context, update storage.ExecutionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bots[update.Bot.ID]
	if !ok {
		return domain.ErrBotNotFound
	}
	if current.Version != update.ExpectedVersion {
		return domain.ErrConflict
	}

	updatedBot := cloneBot(update.Bot)
	updatedBot.Version = update.ExpectedVersion + 1
	s.bots[updatedBot.ID] = updatedBot
	update.Bot.Version = updatedBot.Version

	s.sessions[update.Session.ID] = cloneSession(update.Session)
	s.trades[update.Trade.SessionID] = append(s.trades[update.Trade.SessionID], update.Trade)
	s.metrics[update.Metric.SessionID] = update.Metric

	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}
