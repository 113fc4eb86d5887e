package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const flushKey = "flush"

// FlushResult summarises one flush pass.
type FlushResult struct {
	// Delivered counts entries the server accepted and that were removed.
	Delivered int
	// Rejected counts entries the server refused; they remain queued.
	Rejected int
	// Processed is Delivered + Rejected.
	Processed int
	// TransportFailed reports that the pass ended early because a request did not complete.
	TransportFailed bool
	// Err is the transport failure that ended the pass, if any.
	Err error
	// Duration is the wall time of the pass.
	Duration time.Duration
	// Shared reports that the caller joined a pass started by another caller.
	Shared bool
}

// OK reports whether the pass ran to completion without a transport failure.
func (r FlushResult) OK() bool {
	return !r.TransportFailed
}

// SubmitResult reports what happened to a live submission.
type SubmitResult struct {
	// Delivered is true when the live attempt succeeded.
	Delivered bool
	// Queued is true when the live attempt failed at the transport level and the payload was saved.
	Queued bool
	// ID is the outbox ID when Queued is true.
	ID int64
	// Key is the idempotency key used for the attempt.
	Key string
}

// Manager owns the store and drains it against the remote endpoint.
//
// It is safe for concurrent use. Overlapping Flush calls share one pass.
type Manager struct {
	store     Store
	sender    Sender
	cfg       ManagerConfig
	group     singleflight.Group
	flight    flight
	listeners listeners
}

// flight holds the context of the shared flush pass. It is cancelled once every
// caller waiting on the pass has gone.
type flight struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewManager constructs a Manager with defaults and optional settings.
func NewManager(store Store, sender Sender, opts ...Option) *Manager {
	if store == nil {
		panic("outbox: nil Store")
	}
	if sender == nil {
		panic("outbox: nil Sender")
	}

	var cfg ManagerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Manager{
		store:  store,
		sender: sender,
		cfg:    cfg,
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}

	return m.listeners.add(l)
}

// Save queues a payload for later delivery and returns its ID.
func (m *Manager) Save(ctx context.Context, payload json.RawMessage) (int64, error) {
	if err := validatePayload(payload); err != nil {
		return 0, err
	}

	entry, err := m.newEntry(payload)
	if err != nil {
		return 0, err
	}

	return m.insert(ctx, entry)
}

// SaveOrder validates and queues an order.
func (m *Manager) SaveOrder(ctx context.Context, order Order) (int64, error) {
	payload, err := order.Payload()
	if err != nil {
		return 0, err
	}

	return m.Save(ctx, payload)
}

// Submit attempts a live delivery and falls back to the outbox on a transport failure.
// A rejection is returned to the caller and nothing is queued.
func (m *Manager) Submit(ctx context.Context, payload json.RawMessage) (SubmitResult, error) {
	if err := validatePayload(payload); err != nil {
		return SubmitResult{}, err
	}

	entry, err := m.newEntry(payload)
	if err != nil {
		return SubmitResult{}, err
	}

	sendErr := m.send(ctx, entry)
	if sendErr == nil {
		return SubmitResult{Delivered: true, Key: entry.Key}, nil
	}
	if m.cfg.FailureClassifier(ctx, entry, sendErr) == FailureReject {
		return SubmitResult{Key: entry.Key}, sendErr
	}

	m.cfg.Logger.Warn("outbox live submit failed, saving offline", "key", entry.Key, "err", sendErr)
	id, err := m.insert(ctx, entry)
	if err != nil {
		return SubmitResult{Key: entry.Key}, errors.Join(sendErr, err)
	}

	return SubmitResult{Queued: true, ID: id, Key: entry.Key}, nil
}

// ListPending returns queued entries in replay order.
func (m *Manager) ListPending(ctx context.Context) ([]Entry, error) {
	return m.store.ListAll(ctx)
}

// ClearAll removes every queued entry.
func (m *Manager) ClearAll(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		m.cfg.Logger.Error("outbox clear failed", "err", err)

		return err
	}
	m.cfg.Metrics.SetPending(0)

	return nil
}

// PendingCount returns the number of queued entries.
func (m *Manager) PendingCount(ctx context.Context) (int, error) {
	if counter, ok := m.store.(PendingCounter); ok {
		return counter.PendingCount(ctx)
	}

	entries, err := m.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

// Flush delivers queued entries in ascending ID order, one request at a time.
//
// Delivery failures never surface as an error: rejected entries stay queued and
// are counted, a transport failure ends the pass and sets TransportFailed. The
// returned error is non-nil only when the store itself fails.
//
// Concurrent callers share one pass. The pass is not bound to any single
// caller's ctx: it stops only when every waiting caller has gone. A caller whose
// ctx ends early gets TransportFailed with the ctx error while the pass goes on
// for the others.
func (m *Manager) Flush(ctx context.Context) (FlushResult, error) {
	for rejoined := false; ; rejoined = true {
		passCtx, leave := m.joinFlight(ctx)
		ch := m.group.DoChan(flushKey, func() (any, error) {
			return m.flush(passCtx)
		})

		select {
		case res := <-ch:
			leave()
			result, _ := res.Val.(FlushResult)
			result.Shared = res.Shared
			// Joined a pass that its earlier callers abandoned; run a fresh one.
			if !rejoined && ctx.Err() == nil && (errors.Is(result.Err, context.Canceled) || errors.Is(res.Err, context.Canceled)) {
				continue
			}

			return result, res.Err
		case <-ctx.Done():
			leave()

			return FlushResult{TransportFailed: true, Err: ctx.Err()}, nil
		}
	}
}

func (m *Manager) joinFlight(ctx context.Context) (context.Context, func()) {
	m.flight.mu.Lock()
	defer m.flight.mu.Unlock()

	if m.flight.waiters == 0 {
		m.flight.ctx, m.flight.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	m.flight.waiters++
	passCtx, cancel := m.flight.ctx, m.flight.cancel

	return passCtx, func() {
		m.flight.mu.Lock()
		defer m.flight.mu.Unlock()

		m.flight.waiters--
		if m.flight.waiters == 0 {
			cancel()
		}
	}
}

func (m *Manager) flush(ctx context.Context) (result FlushResult, err error) {
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		m.cfg.Metrics.ObserveFlushDuration(result.Duration)
	}()

	entries, err := m.store.ListAll(ctx)
	if err != nil {
		m.cfg.Logger.Error("outbox list failed", "err", err)

		return result, fmt.Errorf("outbox: list pending: %w", err)
	}
	if len(entries) == 0 {
		return result, nil
	}

	m.cfg.Logger.Debug("outbox flush started", "pending", len(entries))
	for _, entry := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.TransportFailed = true
			result.Err = ctxErr

			break
		}

		outcome, deliverErr := m.deliver(ctx, entry)
		if outcome == OutcomeTransportFailed {
			result.TransportFailed = true
			result.Err = deliverErr
			m.cfg.Logger.Warn("outbox flush stopped on transport failure", "id", entry.ID, "err", deliverErr)

			break
		}
		if deliverErr != nil {
			err = deliverErr

			break
		}
		if outcome == OutcomeDelivered {
			result.Delivered++
		} else {
			result.Rejected++
		}
	}
	result.Processed = result.Delivered + result.Rejected

	m.cfg.Metrics.AddDelivered(result.Delivered)
	m.cfg.Metrics.AddRejected(result.Rejected)
	if result.TransportFailed {
		m.cfg.Metrics.AddTransportFailures(1)
	}
	m.recordPending(ctx)

	m.cfg.Logger.Info(
		"outbox flush finished",
		"delivered", result.Delivered,
		"rejected", result.Rejected,
		"transport_failed", result.TransportFailed,
	)

	return result, err
}

// deliver sends one entry. A non-nil error with OutcomeDelivered means the entry
// was accepted but could not be removed from the store.
func (m *Manager) deliver(ctx context.Context, entry Entry) (Outcome, error) {
	sendErr := m.send(ctx, entry)
	if sendErr != nil {
		if m.cfg.FailureClassifier(ctx, entry, sendErr) == FailureTransport {
			return OutcomeTransportFailed, sendErr
		}
		m.recordRejection(ctx, entry, sendErr)

		return OutcomeRejected, nil
	}

	if err := m.store.DeleteByID(ctx, entry.ID); err != nil {
		m.cfg.Logger.Error("outbox delete after delivery failed", "id", entry.ID, "err", err)

		return OutcomeDelivered, fmt.Errorf("outbox: delete delivered entry %d: %w", entry.ID, err)
	}

	m.notifyFlushed(Flushed{ID: entry.ID, Payload: entry.Payload})

	return OutcomeDelivered, nil
}

func (m *Manager) send(ctx context.Context, entry Entry) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			m.cfg.Logger.Error("outbox sender panic", "id", entry.ID, "panic", rec)
			err = fmt.Errorf("%w: %v", ErrManagerPanic, rec)
		}
	}()

	return m.sender.Send(sendCtx, entry)
}

func (m *Manager) recordRejection(ctx context.Context, entry Entry, err error) {
	m.cfg.Logger.Warn("outbox entry rejected", "id", entry.ID, "err", err)

	recorder, ok := m.store.(FailureRecorder)
	if !ok {
		return
	}
	if recErr := recorder.RecordFailure(ctx, entry.ID, err); recErr != nil {
		m.cfg.Logger.Warn("outbox failure bookkeeping failed", "id", entry.ID, "err", recErr)
	}
}

func (m *Manager) recordPending(ctx context.Context) {
	counter, ok := m.store.(PendingCounter)
	if !ok || ctx.Err() != nil {
		return
	}

	count, err := counter.PendingCount(ctx)
	if err != nil {
		m.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}
	m.cfg.Metrics.SetPending(count)
}

func (m *Manager) newEntry(payload json.RawMessage) (Entry, error) {
	key, err := m.cfg.KeyGenerator()
	if err != nil {
		return Entry{}, fmt.Errorf("outbox: generate key failed: %w", err)
	}

	return Entry{
		Key:       key,
		Payload:   payload,
		CreatedAt: m.cfg.Clock.Now(),
	}, nil
}

func (m *Manager) insert(ctx context.Context, entry Entry) (int64, error) {
	id, err := m.store.Insert(ctx, entry)
	if err != nil {
		m.cfg.Logger.Error("outbox save failed", "key", entry.Key, "err", err)

		return 0, err
	}
	m.cfg.Logger.Info("outbox entry saved", "id", id, "key", entry.Key)
	m.recordPending(ctx)

	return id, nil
}

func (m *Manager) notifyFlushed(event Flushed) {
	for _, l := range m.listeners.snapshot() {
		m.safeNotify(func() { l.OnFlushed(event) })
	}
}

func (m *Manager) notifySyncComplete(event SyncComplete) {
	for _, l := range m.listeners.snapshot() {
		m.safeNotify(func() { l.OnSyncComplete(event) })
	}
}

func (m *Manager) safeNotify(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.cfg.Logger.Error("outbox listener panic", "panic", rec)
		}
	}()
	fn()
}

func validatePayload(payload json.RawMessage) error {
	if len(payload) == 0 {
		return ErrPayloadRequired
	}
	if !json.Valid(payload) {
		return ErrInvalidPayload
	}

	return nil
}
