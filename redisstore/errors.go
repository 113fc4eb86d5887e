package redisstore

import "errors"

var (
	// ErrURLRequired is returned when New is called with an empty URL.
	ErrURLRequired = errors.New("outbox redis: url is required")
	// ErrClientRequired is returned when a nil client is provided.
	ErrClientRequired = errors.New("outbox redis: client is required")
)
