package outbox

// Outcome is the result of one delivery attempt within a flush.
type Outcome int8

const (
	// OutcomeDelivered indicates a 2xx response; the entry was deleted.
	OutcomeDelivered Outcome = 1
	// OutcomeRejected indicates a non-2xx response; the entry stays queued.
	OutcomeRejected Outcome = 0
	// OutcomeTransportFailed indicates the request never completed; the pass ended.
	OutcomeTransportFailed Outcome = -1
)

// String returns a short label for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}
