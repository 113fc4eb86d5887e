package outbox

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a non-durable Store kept in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	lastID   int64
	entries  map[int64]Entry
	failures map[int64]Entry
}

var (
	_ Store           = (*MemoryStore)(nil)
	_ PendingCounter  = (*MemoryStore)(nil)
	_ FailureRecorder = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[int64]Entry),
		failures: make(map[int64]Entry),
	}
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, entry Entry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	entry.ID = s.lastID
	entry.Attempts = 0
	entry.LastError = ""
	entry.Payload = append([]byte(nil), entry.Payload...)
	s.entries[entry.ID] = entry

	return entry.ID, nil
}

// ListAll implements Store.
func (s *MemoryStore) ListAll(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for id, entry := range s.entries {
		if failure, ok := s.failures[id]; ok {
			entry.Attempts = failure.Attempts
			entry.LastError = failure.LastError
		}
		entry.Payload = append([]byte(nil), entry.Payload...)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// DeleteByID implements Store.
func (s *MemoryStore) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	delete(s.failures, id)

	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int64]Entry)
	s.failures = make(map[int64]Entry)

	return nil
}

// PendingCount implements PendingCounter.
func (s *MemoryStore) PendingCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries), nil
}

// RecordFailure implements FailureRecorder.
func (s *MemoryStore) RecordFailure(ctx context.Context, id int64, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return nil
	}
	failure := s.failures[id]
	failure.Attempts++
	if err != nil {
		failure.LastError = err.Error()
	}
	s.failures[id] = failure

	return nil
}
