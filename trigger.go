package outbox

import (
	"context"
	"time"
)

const defaultStartupDelay = time.Second

// TriggerConfig defines when a Trigger flushes.
type TriggerConfig struct {
	StartupDelay time.Duration
	Backoff      Backoff
	Logger       Logger
	// Jitter returns a value in [0, n) for backoff delays; nil uses math/rand.
	Jitter func(n int64) int64
	// AfterPass is called after every pass the Trigger starts.
	AfterPass func(result FlushResult, err error)
}

func (c TriggerConfig) withDefaults() TriggerConfig {
	if c.StartupDelay < 0 {
		c.StartupDelay = 0
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}

	return c
}

// TriggerOption configures a Trigger.
type TriggerOption func(*TriggerConfig)

// WithStartupDelay sets the wait before the startup flush.
func WithStartupDelay(delay time.Duration) TriggerOption {
	return func(c *TriggerConfig) {
		c.StartupDelay = delay
	}
}

// WithBackoff sets the retry policy after transport failures.
func WithBackoff(backoff Backoff) TriggerOption {
	return func(c *TriggerConfig) {
		c.Backoff = backoff
	}
}

// WithTriggerLogger sets the Trigger logger.
func WithTriggerLogger(logger Logger) TriggerOption {
	return func(c *TriggerConfig) {
		c.Logger = logger
	}
}

// WithJitter sets the jitter source for backoff delays.
func WithJitter(jitter func(n int64) int64) TriggerOption {
	return func(c *TriggerConfig) {
		c.Jitter = jitter
	}
}

// WithAfterPass registers a callback invoked after each triggered pass.
func WithAfterPass(fn func(result FlushResult, err error)) TriggerOption {
	return func(c *TriggerConfig) {
		c.AfterPass = fn
	}
}

// Trigger calls Manager.Flush on startup, when connectivity returns, and on
// backoff retries after a transport failure.
type Trigger struct {
	manager *Manager
	conn    Connectivity
	cfg     TriggerConfig
}

// NewTrigger constructs a Trigger. Without WithBackoff it uses DefaultBackoff.
func NewTrigger(manager *Manager, conn Connectivity, opts ...TriggerOption) *Trigger {
	if manager == nil {
		panic("outbox: nil Manager")
	}
	if conn == nil {
		panic("outbox: nil Connectivity")
	}

	cfg := TriggerConfig{StartupDelay: defaultStartupDelay, Backoff: DefaultBackoff()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Trigger{manager: manager, conn: conn, cfg: cfg}
}

// Run reacts to connectivity until ctx is done. It always returns nil on cancellation.
func (t *Trigger) Run(ctx context.Context) error {
	changes := t.conn.Changes()
	// A transition buffered before Run started is already reflected by Online.
	select {
	case <-changes:
	default:
	}
	online := t.conn.Online()

	startup := newStoppedTimer()
	retry := newStoppedTimer()
	defer startup.Stop()
	defer retry.Stop()

	if online {
		startup.Reset(t.cfg.StartupDelay)
	}

	attempt := 0
	schedule := func(result FlushResult, err error) {
		if err != nil || !result.TransportFailed {
			attempt = 0

			return
		}
		if !online || ctx.Err() != nil || attempt >= t.cfg.Backoff.MaxRetries {
			return
		}
		delay := t.cfg.Backoff.Delay(attempt, t.cfg.Jitter)
		attempt++
		t.cfg.Logger.Info("outbox flush retry scheduled", "attempt", attempt, "delay", delay)
		retry.Reset(delay)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-startup.C:
			if t.conn.Online() {
				schedule(t.pass(ctx, false))
			}
		case <-retry.C:
			if online {
				schedule(t.pass(ctx, false))
			}
		case state, ok := <-changes:
			if !ok {
				changes = nil

				continue
			}
			// Changes only emits transitions, so a repeated online state means
			// an offline step was coalesced away while a pass was running.
			if state == online && !online {
				continue
			}
			if state == online {
				t.cfg.Logger.Debug("outbox reconnected during a pass")
			}
			online = state
			stopTimer(retry)
			attempt = 0
			if !online {
				t.cfg.Logger.Debug("outbox went offline")

				continue
			}
			schedule(t.pass(ctx, true))
		}
	}
}

func (t *Trigger) pass(ctx context.Context, sync bool) (FlushResult, error) {
	result, err := t.manager.Flush(ctx)
	if err != nil {
		t.cfg.Logger.Error("outbox triggered flush failed", "err", err)
	}
	if sync {
		t.manager.notifySyncComplete(SyncComplete{Result: result})
	}
	if t.cfg.AfterPass != nil {
		t.cfg.AfterPass(result, err)
	}

	return result, err
}

func newStoppedTimer() *time.Timer {
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)

	return timer
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
