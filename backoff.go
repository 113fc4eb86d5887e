package outbox

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffBase    = time.Second
	defaultBackoffMax     = 5 * time.Minute
	defaultBackoffRetries = 8
)

// Backoff bounds retries after a flush pass ends in a transport failure.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps a single delay, jitter included.
	Max time.Duration
	// MaxRetries stops retrying until the next connectivity event; zero disables retries.
	MaxRetries int
}

// DefaultBackoff returns the backoff used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{Base: defaultBackoffBase, Max: defaultBackoffMax, MaxRetries: defaultBackoffRetries}
}

// Delay returns base*2^attempt plus up to one base of jitter, capped at Max.
// jitter returns a value in [0, n); nil uses math/rand.
func (b Backoff) Delay(attempt int, jitter func(n int64) int64) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if jitter == nil {
		jitter = rand.Int64N
	}

	delay := b.Base
	for i := 0; i < attempt; i++ {
		if (b.Max > 0 && delay >= b.Max) || delay > math.MaxInt64/2 {
			break
		}
		delay *= 2
	}
	delay += time.Duration(jitter(int64(b.Base)))
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}

	return delay
}
