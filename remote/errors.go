package remote

import "errors"

var (
	// ErrBaseURLRequired is returned when New is called without a base URL.
	ErrBaseURLRequired = errors.New("outbox remote: base url is required")
	// ErrInvalidBaseURL is returned when the base URL is not absolute http(s).
	ErrInvalidBaseURL = errors.New("outbox remote: base url must be absolute http or https")
	// ErrUnauthenticated is returned by WhoAmI when there is no session.
	ErrUnauthenticated = errors.New("outbox remote: unauthenticated")
)
