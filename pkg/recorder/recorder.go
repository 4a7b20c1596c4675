package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/biorecorder/pkg/config"
	"github.com/0xmhha/biorecorder/pkg/logger"
	"github.com/0xmhha/biorecorder/pkg/monitor"
	"github.com/0xmhha/biorecorder/pkg/session"
	"github.com/0xmhha/biorecorder/pkg/trigger"
)

// Recorder runs recording sessions with one configuration and one set of
// device collaborators.
type Recorder struct {
	cfg *config.Config
	dev Devices
	log logger.Logger

	// now is the session time source.
	now func() time.Time
}

// New creates a recorder.
//
// Parameters:
//   - cfg: Validated configuration
//   - dev: Device collaborators
//   - log: Logger instance
//
// Returns a recorder ready to Run.
func New(cfg *config.Config, dev Devices, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Noop()
	}
	return &Recorder{
		cfg: cfg,
		dev: dev,
		log: log,
		now: time.Now,
	}
}

// Run records one session: it starts every enabled channel, reports
// progress, waits for the stop trigger (or for every channel to end on
// its own), stops the session and archives the manifest.
//
// Run fails before recording starts on an invalid subject or a missing
// stop trigger. Once the session has started, Run always returns an
// Outcome; an archive failure is returned alongside it.
func (r *Recorder) Run(ctx context.Context, rc RunConfig) (*Outcome, error) {
	if rc.Stop == nil {
		return nil, ErrNoStopTrigger
	}

	mgr := session.NewManager(session.Config{
		OutputDir:   r.cfg.OutputDir,
		Stagger:     r.cfg.Session.Stagger,
		JoinTimeout: r.cfg.Session.JoinTimeout,
		Now:         r.now,
	}, r.log)

	h, err := mgr.Start(ctx, rc.Subject, r.Specs())
	if err != nil {
		return nil, err
	}
	started := time.Now()
	if rc.OnStart != nil {
		rc.OnStart(h.Session())
	}

	mon := monitor.New(monitor.Config{RefreshInterval: r.cfg.Monitor.RefreshInterval}, h, r.log)
	var forward sync.WaitGroup
	if err := mon.Start(ctx); err != nil {
		r.log.Warn("live monitor unavailable", "error", err)
	} else if rc.OnUpdate != nil {
		forward.Add(1)
		go func() {
			defer forward.Done()
			for u := range mon.Updates() {
				rc.OnUpdate(u)
			}
		}()
	}

	fired := r.wait(ctx, h, rc.Stop)

	if err := h.Stop(r.cfg.Session.JoinTimeout); err != nil {
		r.log.Error("failed to stop session", "error", err)
	}
	if err := mon.Close(); err != nil && !errors.Is(err, monitor.ErrMonitorClosed) {
		r.log.Warn("failed to close live monitor", "error", err)
	}
	forward.Wait()

	out := &Outcome{
		Manifest: h.Manifest(),
		Fired:    fired,
		Elapsed:  time.Since(started),
	}

	if rc.Store != nil {
		if err := rc.Store.Save(out.Manifest); err != nil {
			return out, fmt.Errorf("failed to archive manifest: %w", err)
		}
	}
	return out, nil
}

// wait blocks until the stop trigger fires, every channel has ended, or
// ctx is done. It returns the trigger event, if any.
func (r *Recorder) wait(ctx context.Context, h *session.Handle, stop trigger.Trigger) *trigger.Fired {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		fired trigger.Fired
		err   error
	}
	results := make(chan result, 1)
	go func() {
		f, err := stop.Wait(waitCtx)
		results <- result{fired: f, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			if ctx.Err() == nil {
				r.log.Error("stop trigger failed, stopping session", "trigger", stop.Name(), "error", res.err)
			}
			return nil
		}
		r.log.Info("stop requested", "source", res.fired.Source, "reason", res.fired.Reason)
		return &res.fired
	case <-h.Done():
		r.log.Info("every channel has ended")
		return nil
	case <-ctx.Done():
		r.log.Info("recording canceled", "error", ctx.Err())
		return nil
	}
}
