// Package detector implements the derived-metric post-processors of a
// session. They follow the channel.Adapter lifecycle, but instead of a
// device each reads an in-process buffer filled by an acquisition channel:
//
//   - StressDetector reads the heart-rate and GSR taps and periodically
//     writes RMSSD and a stress flag.
//   - AttentionDetector reads the latest video frame, estimates head pose
//     and eye openness, and writes per-frame attention and fatigue flags
//     plus a summary on close.
//
// A detector with no data to work on simply writes nothing; it never
// fails a session.
package detector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/logger"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// ErrNoInput is returned by Connect when a detector has no source buffer.
var ErrNoInput = errors.New("detector has no input buffer")

// tracker holds the progress counters every detector reports.
type tracker struct {
	modality channel.Modality
	path     string
	clock    *timebase.Clock
	log      logger.Logger

	mu    sync.Mutex
	stats channel.Stats

	closeOnce sync.Once
	closeErr  error
}

func (t *tracker) init(m channel.Modality, opts channel.Options) {
	if opts.Clock == nil {
		opts.Clock = timebase.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	t.modality = m
	t.path = opts.Path
	t.clock = opts.Clock
	t.log = logger.ForChannel(opts.Logger, string(m))
	t.stats = channel.Stats{Modality: m}
}

// Modality implements channel.Adapter.Modality.
func (t *tracker) Modality() channel.Modality {
	return t.modality
}

// Stats implements channel.Adapter.Stats.
func (t *tracker) Stats() channel.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *tracker) setConnected(v bool) {
	t.mu.Lock()
	t.stats.Connected = v
	t.mu.Unlock()
}

func (t *tracker) recordSample(at time.Time) {
	t.mu.Lock()
	t.stats.Samples++
	t.stats.LastSample = at
	t.mu.Unlock()
}

func (t *tracker) recordTransient(err error) {
	t.mu.Lock()
	t.stats.TransientErrors++
	t.stats.LastError = err.Error()
	t.mu.Unlock()
}

func (t *tracker) recordSkipped() {
	t.mu.Lock()
	t.stats.Dropped++
	t.mu.Unlock()
}

func (t *tracker) closeWith(fn func() error) error {
	t.closeOnce.Do(func() {
		t.closeErr = fn()
		t.setConnected(false)
	})
	return t.closeErr
}

// every calls tick once per interval until tok fires or ctx ends. A tick
// error stops the loop.
func every(ctx context.Context, tok *cancel.Token, interval time.Duration, tick func(context.Context) error) error {
	tickCtx, stop := tok.Context(ctx)
	defer stop()

	timer := time.NewTicker(interval)
	defer timer.Stop()

	for {
		select {
		case <-tok.Done():
			return nil
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if tok.IsSignaled() {
				return nil
			}
			if err := tick(tickCtx); err != nil {
				if tok.IsSignaled() || ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
