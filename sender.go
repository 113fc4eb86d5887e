package outbox

import "context"

// Sender delivers a single entry to the remote endpoint.
//
// A nil error means the server accepted the entry. A *RejectionError means the
// server answered with a non-success status; any other error is a transport failure.
type Sender interface {
	// Send performs one delivery attempt.
	Send(ctx context.Context, entry Entry) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, entry Entry) error

// Send implements Sender.
func (fn SenderFunc) Send(ctx context.Context, entry Entry) error {
	return fn(ctx, entry)
}
