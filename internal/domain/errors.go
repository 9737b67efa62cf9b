package domain

import "github.com/pkg/errors"

var (
	// ErrNoPrice means the price source returned no usable price for the
	// requested asset/date. Recoverable: the tick or day is skipped and the
	// bot stays due.
	ErrNoPrice = errors.New("no price available")

	// ErrConflict means a concurrent execution won the optimistic-version
	// race for the same bot. The caller abandons this tick without retrying.
	ErrConflict = errors.New("bot was modified concurrently")

	// ErrBotNotFound is returned by stores for unknown bot ids.
	ErrBotNotFound = errors.New("bot not found")

	// ErrSessionNotFound is returned by stores for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrBotNotActive means execution was requested for a bot that is not
	// in the Active state.
	ErrBotNotActive = errors.New("bot is not active")

	// ErrSessionNotRunning means execution was requested against a
	// completed or stopped session.
	ErrSessionNotRunning = errors.New("session is not running")
)
