package trigger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// lineTrigger fires when a line is read.
type lineTrigger struct {
	r io.Reader
}

// Line returns a trigger that fires on the first line read from r, for
// example the operator pressing Enter. End of input never fires, so a
// detached stdin does not stop the session.
//
// The read itself cannot be interrupted; if ctx ends first the reading
// goroutine lingers until r yields.
func Line(r io.Reader) Trigger {
	return &lineTrigger{r: r}
}

func (t *lineTrigger) Name() string { return "line" }

func (t *lineTrigger) Wait(ctx context.Context) (Fired, error) {
	lines := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(t.r)
		if sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	select {
	case line := <-lines:
		reason := "input line"
		if line != "" {
			reason = fmt.Sprintf("input %q", line)
		}
		return fired(t.Name(), reason), nil
	case <-ctx.Done():
		return Fired{}, ctx.Err()
	}
}

// Interactive reports whether f is a terminal.
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// signalTrigger fires on an OS signal.
type signalTrigger struct {
	sigs []os.Signal
}

// Signals returns a trigger that fires on any of sigs.
func Signals(sigs ...os.Signal) Trigger {
	return &signalTrigger{sigs: sigs}
}

func (t *signalTrigger) Name() string { return "signal" }

func (t *signalTrigger) Wait(ctx context.Context) (Fired, error) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, t.sigs...)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		return fired(t.Name(), "received "+sig.String()), nil
	case <-ctx.Done():
		return Fired{}, ctx.Err()
	}
}

// afterTrigger fires after a fixed duration.
type afterTrigger struct {
	d time.Duration
}

// After returns a trigger that fires once d has elapsed from Wait.
func After(d time.Duration) Trigger {
	return &afterTrigger{d: d}
}

func (t *afterTrigger) Name() string { return "duration" }

func (t *afterTrigger) Wait(ctx context.Context) (Fired, error) {
	timer := time.NewTimer(t.d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return fired(t.Name(), "duration "+t.d.String()+" elapsed"), nil
	case <-ctx.Done():
		return Fired{}, ctx.Err()
	}
}

// ManualTrigger fires when Fire is called, e.g. from a UI control.
type ManualTrigger struct {
	once   sync.Once
	ch     chan struct{}
	mu     sync.Mutex
	reason string
}

// Manual creates a trigger fired programmatically.
func Manual() *ManualTrigger {
	return &ManualTrigger{ch: make(chan struct{})}
}

// Fire fires the trigger. Calls after the first are ignored.
func (t *ManualTrigger) Fire(reason string) {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.ch)
	})
}

// Name implements Trigger.Name.
func (t *ManualTrigger) Name() string { return "manual" }

// Wait implements Trigger.Wait.
func (t *ManualTrigger) Wait(ctx context.Context) (Fired, error) {
	select {
	case <-t.ch:
		t.mu.Lock()
		defer t.mu.Unlock()
		return fired(t.Name(), t.reason), nil
	case <-ctx.Done():
		return Fired{}, ctx.Err()
	}
}
