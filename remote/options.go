package remote

import (
	"net/http"

	"github.com/waterdesk/outbox"
)

// Config defines client behavior.
type Config struct {
	HTTPClient *http.Client
	Logger     outbox.Logger
	UserAgent  string
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = outbox.NopLogger{}
	}
	if c.UserAgent == "" {
		c.UserAgent = "outboxctl"
	}

	return c
}

// Option configures the client.
type Option func(*Config)

// WithHTTPClient sets the underlying HTTP client. A cookie jar is added when it has none.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithLogger sets the client logger.
func WithLogger(logger outbox.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Config) {
		c.UserAgent = ua
	}
}
