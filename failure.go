package outbox

import "context"

// FailureAction defines how a failed delivery affects the current flush.
type FailureAction int

const (
	// FailureReject keeps the entry queued and moves on to the next one.
	FailureReject FailureAction = iota
	// FailureTransport keeps the entry queued and ends the flush pass.
	FailureTransport
)

// FailureClassifier decides whether a delivery error is a rejection or a transport failure.
type FailureClassifier func(ctx context.Context, entry Entry, err error) FailureAction

func defaultFailureClassifier(_ context.Context, _ Entry, err error) FailureAction {
	if IsRejection(err) {
		return FailureReject
	}

	return FailureTransport
}
