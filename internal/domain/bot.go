package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BotStatus is the lifecycle state of a DCA bot.
type BotStatus string

const (
	BotInactive  BotStatus = "inactive"
	BotActive    BotStatus = "active"
	BotPaused    BotStatus = "paused"
	BotStopped   BotStatus = "stopped"
	BotCompleted BotStatus = "completed"
)

// Bot is a scheduled DCA instance. The execution engine mutates Status,
// LastRun and NextExecutionTime; deletion is a user action outside the engine.
type Bot struct {
	ID                string         `json:"id"`
	Status            BotStatus      `json:"status"`
	Config            ScheduleConfig `json:"config"`
	LastRun           *time.Time     `json:"last_run,omitempty"`
	NextExecutionTime *time.Time     `json:"next_execution_time,omitempty"`

	// Version is an optimistic-lock counter. Every successful execution
	// increments it; concurrent writers racing on the same version lose.
	Version int64 `json:"version"`
}

// NewBot creates a bot from a validated config. With AutoStart set the bot
// comes up Active with its first due timestamp computed from now.
func NewBot(cfg ScheduleConfig, now time.Time) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule config: %w", err)
	}

	bot := &Bot{
		ID:     uuid.New().String(),
		Status: BotInactive,
		Config: cfg,
	}
	if cfg.AutoStart {
		bot.activate(now)
	}
	return bot, nil
}

// Start activates the bot and computes its next due timestamp. Completed
// bots require this explicit manual reactivation to run again.
func (b *Bot) Start(now time.Time) error {
	if b.Status == BotActive {
		return fmt.Errorf("bot %s is already active", b.ID)
	}
	b.activate(now)
	return nil
}

// Pause suspends scheduling without losing state.
func (b *Bot) Pause() error {
	if b.Status != BotActive {
		return fmt.Errorf("cannot pause bot %s in status %s", b.ID, b.Status)
	}
	b.Status = BotPaused
	return nil
}

// Stop terminates scheduling until the user starts the bot again.
func (b *Bot) Stop() error {
	if b.Status != BotActive && b.Status != BotPaused {
		return fmt.Errorf("cannot stop bot %s in status %s", b.ID, b.Status)
	}
	b.Status = BotStopped
	return nil
}

// Due reports whether the bot should execute at the given time. Only
// Active bots with an elapsed next-execution timestamp are due, and only
// inside the schedule's start/end date window.
func (b *Bot) Due(now time.Time) bool {
	return b.Status == BotActive &&
		b.NextExecutionTime != nil &&
		!b.NextExecutionTime.After(now) &&
		b.Config.InWindow(now)
}

func (b *Bot) activate(now time.Time) {
	b.Status = BotActive
	next := b.Config.NextExecutionTime(now)
	b.NextExecutionTime = &next
}
