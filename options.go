package outbox

import (
	"time"

	"github.com/google/uuid"
)

const defaultRequestTimeout = 15 * time.Second

// KeyGenerator creates idempotency keys for new entries.
type KeyGenerator func() (string, error)

// ManagerConfig defines how the Manager stores and delivers entries.
type ManagerConfig struct {
	Clock             Clock
	Logger            Logger
	Metrics           Metrics
	FailureClassifier FailureClassifier
	RequestTimeout    time.Duration
	KeyGenerator      KeyGenerator
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = defaultFailureClassifier
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.KeyGenerator == nil {
		c.KeyGenerator = uuidV7Key
	}

	return c
}

func uuidV7Key() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// Option configures Manager behavior.
type Option func(*ManagerConfig)

// WithClock sets the Manager clock used for CreatedAt.
func WithClock(clock Clock) Option {
	return func(c *ManagerConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the Manager logger.
func WithLogger(logger Logger) Option {
	return func(c *ManagerConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the Manager metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *ManagerConfig) {
		c.Metrics = metrics
	}
}

// WithFailureClassifier overrides how delivery errors are classified.
func WithFailureClassifier(classifier FailureClassifier) Option {
	return func(c *ManagerConfig) {
		c.FailureClassifier = classifier
	}
}

// WithRequestTimeout bounds each delivery attempt.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *ManagerConfig) {
		c.RequestTimeout = timeout
	}
}

// WithKeyGenerator sets the idempotency key generator.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(c *ManagerConfig) {
		c.KeyGenerator = gen
	}
}
