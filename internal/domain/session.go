package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionMode distinguishes live runs from backtest replays.
type SessionMode string

const (
	SessionLive     SessionMode = "live"
	SessionBacktest SessionMode = "backtest"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionStopped   SessionStatus = "stopped"
)

// Session aggregates the trades of one continuous live run or one backtest
// invocation of a bot.
type Session struct {
	ID             string          `json:"id"`
	BotID          string          `json:"bot_id"`
	Mode           SessionMode     `json:"mode"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	FinalBalance   decimal.Decimal `json:"final_balance"`
	Status         SessionStatus   `json:"status"`
}

// NewSession creates a running session for the given bot.
func NewSession(botID string, mode SessionMode, start time.Time, initialBalance decimal.Decimal) *Session {
	return &Session{
		ID:             uuid.New().String(),
		BotID:          botID,
		Mode:           mode,
		StartTime:      start,
		InitialBalance: initialBalance,
		Status:         SessionRunning,
	}
}

// Complete closes the session with its final balance.
func (s *Session) Complete(at time.Time, finalBalance decimal.Decimal) {
	s.Status = SessionCompleted
	s.EndTime = &at
	s.FinalBalance = finalBalance
}
