package outbox

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable indicates the persistence layer could not be opened or used.
	ErrStorageUnavailable = errors.New("outbox storage is unavailable")
	// ErrPayloadRequired is returned when a payload is empty.
	ErrPayloadRequired = errors.New("outbox payload is required")
	// ErrInvalidPayload is returned when a payload is not valid JSON.
	ErrInvalidPayload = errors.New("outbox payload must be valid JSON")
	// ErrInvalidProductID is returned when Order.ProductID is not positive.
	ErrInvalidProductID = errors.New("outbox order product_id must be positive")
	// ErrInvalidQuantity is returned when Order.Quantity is not positive.
	ErrInvalidQuantity = errors.New("outbox order quantity must be positive")
	// ErrInvalidOrderDate is returned when Order.OrderDate is not YYYY-MM-DD.
	ErrInvalidOrderDate = errors.New("outbox order order_date must be YYYY-MM-DD")
	// ErrInvalidBottles is returned when Order.BottlesUsed is negative.
	ErrInvalidBottles = errors.New("outbox order bottles_used must be non-negative")
	// ErrManagerPanic indicates a sender or listener panicked during a flush.
	ErrManagerPanic = errors.New("outbox flush panic")
)

// RejectionError reports a non-2xx response from the remote endpoint.
type RejectionError struct {
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("outbox: remote rejected entry with status %d", e.StatusCode)
	}

	return fmt.Sprintf("outbox: remote rejected entry with status %d: %s", e.StatusCode, e.Message)
}

// IsRejection reports whether err carries a RejectionError.
func IsRejection(err error) bool {
	var rejection *RejectionError

	return errors.As(err, &rejection)
}

// IsTransport reports whether err is a delivery failure other than a rejection.
func IsTransport(err error) bool {
	return err != nil && !IsRejection(err)
}

// StorageError wraps a backend failure so errors.Is(err, ErrStorageUnavailable) holds.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
