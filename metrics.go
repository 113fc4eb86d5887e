package outbox

import "time"

// Metrics captures flush-level telemetry.
type Metrics interface {
	// ObserveFlushDuration records the time a flush pass took.
	ObserveFlushDuration(duration time.Duration)
	// AddDelivered increments the count of delivered entries.
	AddDelivered(count int)
	// AddRejected increments the count of rejected delivery attempts.
	AddRejected(count int)
	// AddTransportFailures increments the count of passes ended by a transport failure.
	AddTransportFailures(count int)
	// SetPending updates the current queued entry count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveFlushDuration implements Metrics.
func (NopMetrics) ObserveFlushDuration(time.Duration) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddRejected implements Metrics.
func (NopMetrics) AddRejected(int) {}

// AddTransportFailures implements Metrics.
func (NopMetrics) AddTransportFailures(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
