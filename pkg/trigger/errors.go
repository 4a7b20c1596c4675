package trigger

import "errors"

// Common errors returned by triggers.
var (
	// ErrCircuitBreakerOpen is returned when the stop-file watcher keeps
	// failing and gives up.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrInvalidPath is returned when a stop-file directory is unusable.
	ErrInvalidPath = errors.New("invalid stop file path")

	// ErrNoTriggers is returned by Any with no triggers.
	ErrNoTriggers = errors.New("no triggers")
)
