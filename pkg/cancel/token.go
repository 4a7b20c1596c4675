// Package cancel provides the session-wide cancellation token.
//
// A Token is a set-once latch: the session manager signals it exactly once
// and every acquisition worker observes it, either by polling IsSignaled
// between iterations or by selecting on Done while blocked.
//
// Example usage:
//
//	tok := cancel.New()
//	go func() {
//	    for tok.Sleep(100 * time.Millisecond) {
//	        poll()
//	    }
//	}()
//	tok.Signal()
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Token is a thread-safe, set-once cancellation latch.
//
// The zero value is not usable; create tokens with New.
type Token struct {
	once     sync.Once
	signaled atomic.Bool
	done     chan struct{}
}

// New creates a clear token.
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Signal sets the token. Calls after the first are no-ops.
// Safe to call concurrently with any reader.
func (t *Token) Signal() {
	t.once.Do(func() {
		t.signaled.Store(true)
		close(t.done)
	})
}

// IsSignaled reports whether Signal has been called. It never blocks.
func (t *Token) IsSignaled() bool {
	return t.signaled.Load()
}

// Done returns a channel that is closed once the token is signaled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Sleep suspends the caller for up to d.
//
// Returns false if the token was signaled before or during the wait, true
// if the full duration elapsed. A non-positive d only checks the token.
func (t *Token) Sleep(d time.Duration) bool {
	if t.IsSignaled() {
		return false
	}
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.done:
		return false
	case <-timer.C:
		return !t.IsSignaled()
	}
}

// Context returns a child of parent that is canceled when the token is
// signaled. The returned CancelFunc must be called to release resources.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancelFn()
		case <-ctx.Done():
		}
	}()
	return ctx, cancelFn
}
