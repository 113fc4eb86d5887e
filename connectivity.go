package outbox

import (
	"context"
	"sync"
	"time"
)

const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 3 * time.Second
)

// Connectivity reports whether the remote endpoint is reachable.
type Connectivity interface {
	// Online returns the current state.
	Online() bool
	// Changes emits the new state on every transition.
	Changes() <-chan bool
}

// ManualConnectivity is a Connectivity driven by SetOnline.
//
// Changes is coalescing: a slow reader only sees the latest state.
type ManualConnectivity struct {
	mu      sync.Mutex
	online  bool
	changes chan bool
}

var _ Connectivity = (*ManualConnectivity)(nil)

// NewManualConnectivity creates a ManualConnectivity with the given initial state.
func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{online: online, changes: make(chan bool, 1)}
}

// Online implements Connectivity.
func (c *ManualConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.online
}

// Changes implements Connectivity.
func (c *ManualConnectivity) Changes() <-chan bool {
	return c.changes
}

// SetOnline updates the state and reports whether it changed.
func (c *ManualConnectivity) SetOnline(online bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.online == online {
		return false
	}
	c.online = online

	select {
	case <-c.changes:
	default:
	}
	c.changes <- online

	return true
}

// ProbeFunc checks reachability; a nil error means online.
type ProbeFunc func(ctx context.Context) error

// Prober derives connectivity from a periodic reachability probe.
//
// Only the state is sampled; flushing still happens on transitions.
type Prober struct {
	*ManualConnectivity

	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration
	logger   Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeInterval sets the time between probes.
func WithProbeInterval(interval time.Duration) ProberOption {
	return func(p *Prober) {
		p.interval = interval
	}
}

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(timeout time.Duration) ProberOption {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithProbeLogger sets the logger for state transitions.
func WithProbeLogger(logger Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

// NewProber creates an offline Prober; call Check or Run to sample the endpoint.
func NewProber(probe ProbeFunc, opts ...ProberOption) *Prober {
	if probe == nil {
		panic("outbox: nil ProbeFunc")
	}

	p := &Prober{
		ManualConnectivity: NewManualConnectivity(false),
		probe:              probe,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = defaultProbeInterval
	}
	if p.timeout <= 0 {
		p.timeout = defaultProbeTimeout
	}
	if p.logger == nil {
		p.logger = NopLogger{}
	}

	return p
}

// Check runs one probe, updates the state and returns it.
func (p *Prober) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.probe(probeCtx)
	cancel()

	online := err == nil
	if p.SetOnline(online) {
		if online {
			p.logger.Info("outbox connectivity restored")
		} else {
			p.logger.Warn("outbox connectivity lost", "err", err)
		}
	}

	return online
}

// Run probes until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
