package outbox

import "context"

// Store persists queued entries. Each call is its own unit of work.
type Store interface {
	// Insert appends an entry atomically and returns the assigned ID.
	Insert(ctx context.Context, entry Entry) (int64, error)
	// ListAll returns every entry in ascending ID order.
	ListAll(ctx context.Context) ([]Entry, error)
	// DeleteByID removes one entry; a missing ID is not an error.
	DeleteByID(ctx context.Context, id int64) error
	// Clear removes all entries.
	Clear(ctx context.Context) error
}

// PendingCounter provides a total count of queued entries.
type PendingCounter interface {
	// PendingCount returns the current number of queued entries.
	PendingCount(ctx context.Context) (int, error)
}

// FailureRecorder keeps rejection diagnostics next to an entry without mutating it.
type FailureRecorder interface {
	// RecordFailure increments the attempt count and stores the last error for id.
	RecordFailure(ctx context.Context, id int64, err error) error
}
