package admin

import (
	"sync/atomic"
	"time"

	"github.com/waterdesk/outbox"
)

// Collector is an in-process outbox.Metrics that keeps running totals.
type Collector struct {
	flushes           atomic.Int64
	delivered         atomic.Int64
	rejected          atomic.Int64
	transportFailures atomic.Int64
	pending           atomic.Int64
	lastFlushNanos    atomic.Int64
	totalFlushNanos   atomic.Int64
}

var _ outbox.Metrics = (*Collector)(nil)

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// ObserveFlushDuration implements outbox.Metrics.
func (c *Collector) ObserveFlushDuration(duration time.Duration) {
	c.flushes.Add(1)
	c.lastFlushNanos.Store(int64(duration))
	c.totalFlushNanos.Add(int64(duration))
}

// AddDelivered implements outbox.Metrics.
func (c *Collector) AddDelivered(count int) {
	c.delivered.Add(int64(count))
}

// AddRejected implements outbox.Metrics.
func (c *Collector) AddRejected(count int) {
	c.rejected.Add(int64(count))
}

// AddTransportFailures implements outbox.Metrics.
func (c *Collector) AddTransportFailures(count int) {
	c.transportFailures.Add(int64(count))
}

// SetPending implements outbox.Metrics.
func (c *Collector) SetPending(count int) {
	c.pending.Store(int64(count))
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Flushes           int64   `json:"flushes"`
	Delivered         int64   `json:"delivered"`
	Rejected          int64   `json:"rejected"`
	TransportFailures int64   `json:"transport_failures"`
	Pending           int64   `json:"pending"`
	LastFlushMillis   float64 `json:"last_flush_ms"`
	AvgFlushMillis    float64 `json:"avg_flush_ms"`
	DeliveryRate      float64 `json:"delivery_rate_percent"`
}

// Stats returns the current counters.
func (c *Collector) Stats() Stats {
	s := Stats{
		Flushes:           c.flushes.Load(),
		Delivered:         c.delivered.Load(),
		Rejected:          c.rejected.Load(),
		TransportFailures: c.transportFailures.Load(),
		Pending:           c.pending.Load(),
		LastFlushMillis:   millis(c.lastFlushNanos.Load()),
	}
	if s.Flushes > 0 {
		s.AvgFlushMillis = millis(c.totalFlushNanos.Load() / s.Flushes)
	}
	if attempts := s.Delivered + s.Rejected; attempts > 0 {
		s.DeliveryRate = float64(s.Delivered) / float64(attempts) * 100
	}

	return s
}

// Reset zeroes every counter except Pending.
func (c *Collector) Reset() {
	c.flushes.Store(0)
	c.delivered.Store(0)
	c.rejected.Store(0)
	c.transportFailures.Store(0)
	c.lastFlushNanos.Store(0)
	c.totalFlushNanos.Store(0)
}

func millis(nanos int64) float64 {
	return float64(nanos) / float64(time.Millisecond)
}
