// Package trigger provides the stop triggers of a recording session.
//
// A Trigger blocks until its condition occurs and reports why. Several
// triggers race under Any; the first to fire wins and the others are
// canceled. The recorder treats every trigger the same way, so a stop can
// come from the operator's keyboard, an OS signal, a timer, a file dropped
// by another process, or a programmatic call.
//
// Example usage:
//
//	t := trigger.Any(
//	    trigger.Signals(os.Interrupt, syscall.SIGTERM),
//	    trigger.After(10*time.Minute),
//	)
//	fired, err := t.Wait(ctx)
package trigger

import (
	"context"
	"time"
)

// Fired describes a trigger firing.
type Fired struct {
	// Source is the name of the trigger that fired.
	Source string

	// Reason is a human-readable explanation.
	Reason string

	// At is when the trigger fired.
	At time.Time
}

// Trigger is a one-shot stop condition.
type Trigger interface {
	// Name identifies the trigger in logs.
	Name() string

	// Wait blocks until the trigger fires or ctx is done.
	//
	// Returns:
	//   - Fired on success
	//   - ctx.Err() if ctx ended first
	//   - Error if the trigger cannot operate
	Wait(ctx context.Context) (Fired, error)
}

func fired(source, reason string) Fired {
	return Fired{Source: source, Reason: reason, At: time.Now()}
}
