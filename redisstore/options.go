package redisstore

import "github.com/waterdesk/outbox"

const defaultPrefix = "outbox"

// Config defines Redis store behavior.
type Config struct {
	Prefix       string
	Clock        outbox.Clock
	KeyGenerator outbox.KeyGenerator
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}
	if c.KeyGenerator == nil {
		c.KeyGenerator = randomKey
	}

	return c
}

// Option configures the Redis store.
type Option func(*Config)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
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
