package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/logger"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// Manager defaults.
const (
	DefaultStagger     = time.Second
	DefaultJoinTimeout = 5 * time.Second
)

// Manager starts recording sessions. It remembers the session ids it has
// handed out so two sessions started within the same second stay distinct.
type Manager struct {
	cfg Config
	log logger.Logger

	mu   sync.Mutex
	used map[string]bool
}

// NewManager creates a session manager.
//
// Parameters:
//   - cfg: Output directory, stagger and join timeout
//   - log: Logger instance
//
// Returns a Manager ready to start sessions.
func NewManager(cfg Config, log logger.Logger) *Manager {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Stagger == 0 {
		cfg.Stagger = DefaultStagger
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Manager{
		cfg:  cfg,
		log:  log,
		used: make(map[string]bool),
	}
}

// Start creates a session for subject and launches its channels.
//
// Channels are launched in spec order, Stagger apart, on a background
// goroutine, so Start returns as soon as the session is RUNNING. A channel
// whose builder fails is recorded as failed; the others still start.
//
// Canceling ctx stops the channels the same way Handle.Stop does, but
// without the join; call Stop for a bounded shutdown.
func (m *Manager) Start(ctx context.Context, subject string, specs []Spec) (*Handle, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, ErrNoChannels
	}

	if err := os.MkdirAll(m.cfg.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	start := m.cfg.Now()
	sess := Session{
		SubjectID: subject,
		SessionID: m.allocate(subject, start),
		RunID:     uuid.NewString(),
		StartedAt: start,
		OutputDir: m.cfg.OutputDir,
	}

	h := &Handle{
		session:  sess,
		clock:    timebase.NewAt(start),
		log:      logger.ForSession(m.log, sess.SessionID, subject),
		cfg:      m.cfg,
		tok:      cancel.New(),
		state:    StateCreated,
		entries:  make([]Entry, len(specs)),
		adapters: make([]channel.Adapter, len(specs)),
		done:     make([]chan struct{}, len(specs)),
		inputs:   make([][]channel.Modality, len(specs)),
		launched: make(chan struct{}),
		allDone:  make(chan struct{}),
	}

	for i, spec := range specs {
		paths := make([]string, len(spec.Files))
		for j, f := range spec.Files {
			paths[j] = OutputPath(sess.OutputDir, f, subject, sess.SessionID)
		}
		h.entries[i] = Entry{Modality: spec.Modality, Paths: paths, Status: StatusNotStarted}
		h.inputs[i] = spec.Inputs
		h.done[i] = make(chan struct{})

		a, err := spec.Build(Target{
			Session: sess,
			Paths:   paths,
			Clock:   h.clock,
			Logger:  logger.ForChannel(h.log, string(spec.Modality)),
		})
		if err != nil {
			h.entries[i].Status = StatusFailed
			h.entries[i].Error = err.Error()
			h.log.Warn("channel build failed", "modality", string(spec.Modality), "error", err)
			continue
		}
		h.adapters[i] = a
	}

	h.state = StateRunning
	h.log.Info("session started",
		"run_id", sess.RunID,
		"output_dir", sess.OutputDir,
		"channels", len(specs))

	go h.launch(ctx)
	go h.watch()
	return h, nil
}

// allocate derives a session id unique within this process and the
// output directory.
func (m *Manager) allocate(subject string, start time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := sessionID(start, func(id string) bool {
		return m.used[id] || filesExist(m.cfg.OutputDir, subject, id)
	})
	m.used[id] = true
	return id
}

// Handle controls one running session.
type Handle struct {
	session Session
	clock   *timebase.Clock
	log     logger.Logger
	cfg     Config
	tok     *cancel.Token

	mu        sync.Mutex
	state     State
	stoppedAt time.Time
	entries   []Entry
	adapters  []channel.Adapter

	done     []chan struct{} // closed when channel i will not run any more
	inputs   [][]channel.Modality
	launched chan struct{}
	allDone  chan struct{}
}

// Session returns the session identity.
func (h *Handle) Session() Session {
	return h.session
}

// Clock returns the shared session clock.
func (h *Handle) Clock() *timebase.Clock {
	return h.clock
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once every channel has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.allDone
}

func (h *Handle) launch(ctx context.Context) {
	defer close(h.launched)

	started := 0
	for i := range h.adapters {
		if h.adapters[i] == nil {
			close(h.done[i])
			continue
		}
		if started > 0 && h.cfg.Stagger > 0 {
			h.tok.Sleep(h.cfg.Stagger)
		}
		if h.tok.IsSignaled() || ctx.Err() != nil {
			// Stopped before this channel's turn; it stays not_started.
			_ = h.adapters[i].Close()
			close(h.done[i])
			continue
		}
		started++
		go h.work(ctx, i)
	}
}

func (h *Handle) watch() {
	<-h.launched
	for _, d := range h.done {
		<-d
	}
	close(h.allDone)
}

// work runs the connect → run → close lifecycle of channel i.
func (h *Handle) work(ctx context.Context, i int) {
	a := h.adapters[i]
	mod := string(a.Modality())
	log := logger.ForChannel(h.log, mod)

	defer close(h.done[i])
	defer func() {
		if r := recover(); r != nil {
			_ = a.Close()
			err := fmt.Errorf("panic: %v", r)
			log.Error("channel panicked", "error", err)
			h.finish(i, StatusFailed, err)
		}
	}()

	h.mu.Lock()
	h.entries[i].Status = StatusConnecting
	h.entries[i].StartedAt = h.clock.Now()
	h.mu.Unlock()

	connectCtx, stop := h.tok.Context(ctx)
	err := a.Connect(connectCtx)
	stop()
	if err != nil {
		_ = a.Close()
		status := StatusConnectFailed
		var cerr *channel.ConnectError
		if !errors.As(err, &cerr) {
			status = StatusFailed
		}
		log.Warn("connect failed", "error", err)
		h.finish(i, status, err)
		return
	}

	h.mu.Lock()
	if h.entries[i].Status == StatusConnecting {
		h.entries[i].Status = StatusRunning
	}
	h.mu.Unlock()
	log.Info("channel running", "paths", a.Outputs())

	runErr := a.Run(ctx, h.tok)
	closeErr := a.Close()

	err = runErr
	if err == nil {
		err = closeErr
	}
	if err != nil {
		log.Error("channel failed", "error", err)
		h.finish(i, StatusFailed, err)
		return
	}
	log.Info("adapter stopped", "samples", a.Stats().Samples)
	h.finish(i, StatusOK, nil)
}

// finish records the final status of channel i unless it was abandoned.
func (h *Handle) finish(i int, status Status, err error) {
	stats := h.adapters[i].Stats()

	h.mu.Lock()
	defer h.mu.Unlock()

	e := &h.entries[i]
	e.Samples = stats.Samples
	e.TransientErrors = stats.TransientErrors
	if e.Status == StatusAbandoned {
		return
	}
	e.Status = status
	e.StoppedAt = h.clock.Now()
	if err != nil {
		e.Error = err.Error()
	}
}

// Stop signals every channel and waits up to joinTimeout for them to
// exit. A non-positive joinTimeout selects the configured default.
//
// The timeout is one deadline shared by all channels, not a fresh grace
// period per channel: the worst-case Stop latency is joinTimeout no matter
// how many channels are still draining.
//
// Channels still running at the deadline are marked abandoned and a
// JoinTimeoutError is logged; Stop itself only fails when the session is
// not RUNNING.
func (h *Handle) Stop(joinTimeout time.Duration) error {
	h.mu.Lock()
	if h.state != StateRunning {
		state := h.state
		h.mu.Unlock()
		return &StateError{Op: "stop", State: state}
	}
	h.state = StateStopping
	h.mu.Unlock()

	if joinTimeout <= 0 {
		joinTimeout = h.cfg.JoinTimeout
	}
	h.log.Info("stopping session", "join_timeout", joinTimeout)
	h.tok.Signal()

	deadline := time.NewTimer(joinTimeout)
	defer deadline.Stop()

	expired := false
	select {
	case <-h.launched:
	case <-deadline.C:
		expired = true
	}

	for i, d := range h.done {
		if !expired {
			select {
			case <-d:
				continue
			case <-deadline.C:
				expired = true
			}
		}
		select {
		case <-d:
		default:
			h.abandon(i, joinTimeout)
		}
	}

	h.mu.Lock()
	h.markStarved()
	h.state = StateStopped
	h.stoppedAt = h.clock.Now()
	h.mu.Unlock()

	h.log.Info("session stopped", "valid_files", len(h.Manifest().Valid()))
	return nil
}

// markStarved downgrades clean derived channels none of whose inputs
// produced data. Callers hold h.mu.
func (h *Handle) markStarved() {
	byModality := make(map[channel.Modality]Entry, len(h.entries))
	for _, e := range h.entries {
		byModality[e.Modality] = e
	}

	for i := range h.entries {
		e := &h.entries[i]
		if e.Status != StatusOK || len(h.inputs[i]) == 0 {
			continue
		}
		fed := false
		for _, in := range h.inputs[i] {
			if producedData(byModality[in]) {
				fed = true
				break
			}
		}
		if fed {
			continue
		}
		e.Status = StatusNoInput
		inputs := joinModalities(h.inputs[i])
		e.Error = "no input produced data: " + inputs
		h.log.Warn("derived channel had no input", "modality", string(e.Modality), "inputs", inputs)
	}
}

// producedData reports whether an input channel can have fed a consumer.
// A zero Entry (input not part of the session) never did.
func producedData(e Entry) bool {
	switch e.Status {
	case "", StatusNotStarted, StatusConnectFailed:
		return false
	case StatusFailed:
		return e.Samples > 0
	}
	return true
}

func joinModalities(ms []channel.Modality) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func (h *Handle) abandon(i int, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := &h.entries[i]
	if e.Status.Final() && e.Status != StatusNotStarted {
		return
	}
	jerr := &JoinTimeoutError{Modality: e.Modality, Timeout: timeout}
	e.Status = StatusAbandoned
	e.Error = jerr.Error()
	e.StoppedAt = h.clock.Now()
	h.log.Warn("join timeout", "modality", string(e.Modality), "error", jerr)
}

// Wait blocks until every channel has exited on its own or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.allDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manifest returns a snapshot of the session and its channels. Live
// channels report their current sample counts.
func (h *Handle) Manifest() *Manifest {
	h.mu.Lock()
	defer h.mu.Unlock()

	m := &Manifest{
		Session:   h.session,
		State:     h.state,
		StoppedAt: h.stoppedAt,
		Channels:  make([]Entry, len(h.entries)),
	}
	for i, e := range h.entries {
		if !e.Status.Final() && h.adapters[i] != nil {
			stats := h.adapters[i].Stats()
			e.Samples = stats.Samples
			e.TransientErrors = stats.TransientErrors
		}
		e.Paths = append([]string(nil), e.Paths...)
		m.Channels[i] = e
	}
	return m
}

// Stats returns live progress of every built channel.
func (h *Handle) Stats() []channel.Stats {
	h.mu.Lock()
	adapters := append([]channel.Adapter(nil), h.adapters...)
	h.mu.Unlock()

	stats := make([]channel.Stats, 0, len(adapters))
	for _, a := range adapters {
		if a != nil {
			stats = append(stats, a.Stats())
		}
	}
	return stats
}
