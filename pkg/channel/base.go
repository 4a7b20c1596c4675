package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/logger"
)

// base carries what every adapter shares: options, logger, progress
// counters and the close-once latch.
type base struct {
	modality Modality
	opts     Options
	log      logger.Logger

	mu    sync.Mutex
	stats Stats

	closeOnce sync.Once
	closeErr  error
}

func (b *base) init(m Modality, opts Options) {
	opts = opts.withDefaults()
	b.modality = m
	b.opts = opts
	b.log = logger.ForChannel(opts.Logger, string(m))
	b.stats = Stats{Modality: m}
}

// Modality implements Adapter.Modality.
func (b *base) Modality() Modality {
	return b.modality
}

// Outputs implements Adapter.Outputs.
func (b *base) Outputs() []string {
	return []string{b.opts.Path}
}

// Stats implements Adapter.Stats.
func (b *base) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *base) setConnected(v bool) {
	b.mu.Lock()
	b.stats.Connected = v
	b.mu.Unlock()
}

func (b *base) recordSamples(n int, at time.Time) {
	b.mu.Lock()
	b.stats.Samples += uint64(n)
	b.stats.LastSample = at
	b.mu.Unlock()
}

func (b *base) recordTransient(err error) {
	b.mu.Lock()
	b.stats.TransientErrors++
	b.stats.LastError = err.Error()
	b.mu.Unlock()
}

func (b *base) recordDropped() {
	b.mu.Lock()
	b.stats.Dropped++
	b.mu.Unlock()
}

func (b *base) recordError(err error) {
	b.mu.Lock()
	b.stats.LastError = err.Error()
	b.mu.Unlock()
}

// connectContext bounds a connect attempt by the configured timeout.
func (b *base) connectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opts.ConnectTimeout)
}

func (b *base) connectError(target string, err error) error {
	cerr := &ConnectError{Modality: b.modality, Target: target, Err: err}
	b.recordError(cerr)
	return cerr
}

// closeWith runs fn once and remembers its result.
func (b *base) closeWith(fn func() error) error {
	b.closeOnce.Do(func() {
		b.closeErr = fn()
		b.setConnected(false)
	})
	return b.closeErr
}

// errorCounter tracks consecutive transient failures.
type errorCounter struct {
	max         int
	consecutive int
}

// fail records err and returns a link-lost error once the bound is hit.
func (c *errorCounter) fail(err error) error {
	c.consecutive++
	if c.consecutive >= c.max {
		return fmt.Errorf("%w: %d consecutive read errors, last: %v", ErrLinkLost, c.consecutive, err)
	}
	return nil
}

func (c *errorCounter) reset() {
	c.consecutive = 0
}

// poll runs step every interval until the token fires, ctx is done, or
// step returns a non-transient error.
//
// step receives a context canceled on token signal, so a blocking device
// call is interrupted promptly. Transient errors are logged and counted;
// after MaxConsecutiveErrors of them in a row the link is considered lost.
// Cancellation is observed between iterations, bounding shutdown latency
// to one interval plus one step.
func (b *base) poll(ctx context.Context, tok *cancel.Token, interval time.Duration, step func(context.Context) error) error {
	stepCtx, stop := tok.Context(ctx)
	defer stop()

	errs := errorCounter{max: b.opts.MaxConsecutiveErrors}
	for {
		if tok.IsSignaled() || ctx.Err() != nil {
			return nil
		}

		err := step(stepCtx)
		switch {
		case err == nil:
			errs.reset()
		case tok.IsSignaled() || ctx.Err() != nil:
			// Interrupted by shutdown.
			return nil
		case IsTransient(err):
			b.recordTransient(err)
			b.log.Warn("transient read error", "error", err)
			if lost := errs.fail(err); lost != nil {
				b.recordError(lost)
				return lost
			}
		default:
			b.recordError(err)
			return err
		}

		if !sleepCtx(ctx, tok, interval) {
			return nil
		}
	}
}

// sleepCtx suspends for d, returning false early if tok fires or ctx ends.
func sleepCtx(ctx context.Context, tok *cancel.Token, d time.Duration) bool {
	if d <= 0 {
		return !tok.IsSignaled() && ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return !tok.IsSignaled()
	}
}
