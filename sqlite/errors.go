package sqlite

import "errors"

var (
	// ErrPathRequired is returned when the database path is empty.
	ErrPathRequired = errors.New("outbox sqlite: path is required")
	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("outbox sqlite: store is closed")
)
