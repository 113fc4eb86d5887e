package mysql

import "github.com/waterdesk/outbox"

const defaultTable = "outbox"

// Config defines MySQL store behavior.
type Config struct {
	Table        string
	Clock        outbox.Clock
	KeyGenerator outbox.KeyGenerator
	// Binary stores payloads as LONGBLOB when Migrate creates the table.
	Binary bool
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}
	if c.KeyGenerator == nil {
		c.KeyGenerator = randomKey
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the outbox table name. The failures table is "<name>_failures".
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithClock sets the time source used for CreatedAt defaults.
func WithClock(clock outbox.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithKeyGenerator sets the generator for entries inserted without a key.
func WithKeyGenerator(gen outbox.KeyGenerator) Option {
	return func(c *Config) {
		c.KeyGenerator = gen
	}
}

// WithBinaryPayload makes Migrate create a LONGBLOB payload column.
func WithBinaryPayload(enabled bool) Option {
	return func(c *Config) {
		c.Binary = enabled
	}
}
