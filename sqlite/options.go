package sqlite

import (
	"time"

	"github.com/waterdesk/outbox"
)

const defaultBusyTimeout = 5 * time.Second

// Config defines SQLite store behavior.
type Config struct {
	Clock       outbox.Clock
	BusyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = defaultBusyTimeout
	}

	return c
}

// Option configures the SQLite store.
type Option func(*Config)

// WithClock sets the time source used for failure bookkeeping.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithBusyTimeout sets how long a statement waits on a locked database.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.BusyTimeout = timeout
	}
}
