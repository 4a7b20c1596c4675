package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/logger"
)

// liveMonitor implements the LiveMonitor interface.
type liveMonitor struct {
	config Config
	logger logger.Logger
	source Source

	mu       sync.Mutex
	running  bool
	closed   bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Previous poll, for deltas
	lastAt     time.Time
	lastCounts map[channel.Modality]uint64
	lastTotals DeltaStats
	latest     Update

	// Update channel for consumers
	updates chan Update
}

// New creates a new live monitor.
//
// Parameters:
//   - cfg: Monitor configuration
//   - src: Session to poll
//   - log: Logger instance
//
// Returns a LiveMonitor that has not been started.
func New(cfg Config, src Source, log logger.Logger) LiveMonitor {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Noop()
	}

	log.Debug("live monitor created", "refresh_interval", cfg.RefreshInterval)

	return &liveMonitor{
		config:     cfg,
		logger:     log,
		source:     src,
		updates:    make(chan Update, 10),
		lastCounts: make(map[channel.Modality]uint64),
	}
}

// Start implements LiveMonitor.Start.
//
// An update is published immediately, then once per refresh interval
// until Stop, Close or ctx cancellation.
func (m *liveMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrMonitorRunning
	}
	if m.source == nil {
		m.mu.Unlock()
		return ErrNoSource
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	m.sendUpdate()

	m.wg.Add(1)
	go m.periodicUpdates(ctx, stop)

	m.logger.Debug("live monitor started")
	return nil
}

// Stop implements LiveMonitor.Stop.
func (m *liveMonitor) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if !m.running {
		m.mu.Unlock()
		return ErrMonitorNotRunning
	}
	close(m.stopChan)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Debug("live monitor stopped")
	return nil
}

// Updates implements LiveMonitor.Updates.
func (m *liveMonitor) Updates() <-chan Update {
	return m.updates
}

// Latest implements LiveMonitor.Latest.
func (m *liveMonitor) Latest() Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// periodicUpdates polls the source on every tick.
func (m *liveMonitor) periodicUpdates(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-stop:
			return

		case <-ticker.C:
			m.sendUpdate()
		}
	}
}

// sendUpdate polls the source and publishes the result.
func (m *liveMonitor) sendUpdate() {
	manifest := m.source.Manifest()
	now := m.config.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	update := Update{
		Timestamp: now,
		SessionID: manifest.SessionID,
		State:     manifest.State,
		Channels:  make([]ChannelUpdate, 0, len(manifest.Channels)),
	}
	if !manifest.StartedAt.IsZero() {
		update.Elapsed = now.Sub(manifest.StartedAt)
	}

	var interval float64
	if !m.lastAt.IsZero() {
		interval = now.Sub(m.lastAt).Seconds()
	}

	for _, e := range manifest.Channels {
		cu := ChannelUpdate{
			Modality:        e.Modality,
			Status:          e.Status,
			Samples:         e.Samples,
			TransientErrors: e.TransientErrors,
		}
		if prev := m.lastCounts[e.Modality]; e.Samples > prev {
			cu.NewSamples = e.Samples - prev
		}
		if interval > 0 {
			cu.Rate = float64(cu.NewSamples) / interval
		}
		m.lastCounts[e.Modality] = e.Samples

		update.Cumulative.Samples += e.Samples
		update.Cumulative.TransientErrors += e.TransientErrors
		update.Channels = append(update.Channels, cu)
	}

	update.Delta = DeltaStats{
		Samples:         sub(update.Cumulative.Samples, m.lastTotals.Samples),
		TransientErrors: sub(update.Cumulative.TransientErrors, m.lastTotals.TransientErrors),
	}

	m.lastAt = now
	m.lastTotals = update.Cumulative
	m.latest = update

	// Send update (non-blocking)
	select {
	case m.updates <- update:
	default:
		m.logger.Warn("updates channel full, dropping update")
	}
}

func sub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// Close implements LiveMonitor.Close.
func (m *liveMonitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.running {
		close(m.stopChan)
		m.running = false
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	close(m.updates)
	m.mu.Unlock()

	m.logger.Debug("live monitor closed")
	return nil
}
