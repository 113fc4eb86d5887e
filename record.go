package outbox

import (
	"encoding/json"
	"time"
)

// Entry is one queued order payload.
type Entry struct {
	// ID is assigned by the store on insert; ascending IDs define replay order.
	ID int64 `json:"id"`
	// Key is the idempotency key sent with every delivery attempt.
	Key string `json:"key"`
	// Payload is the order submission body, passed through untouched.
	Payload json.RawMessage `json:"payload"`
	// CreatedAt is the enqueue time.
	CreatedAt time.Time `json:"created_at"`
	// Attempts counts rejected delivery attempts, if the store records them.
	Attempts int `json:"attempts,omitempty"`
	// LastError is the most recent rejection reason, if the store records it.
	LastError string `json:"last_error,omitempty"`
}

// Flushed is delivered to listeners once per successfully sent entry.
type Flushed struct {
	ID      int64
	Payload json.RawMessage
}

// SyncComplete is delivered to listeners after a flush triggered by regained connectivity.
type SyncComplete struct {
	Result FlushResult
}
