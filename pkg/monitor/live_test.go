package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/logger"
	"github.com/0xmhha/biorecorder/pkg/session"
)

// mockSource implements Source for testing.
type mockSource struct {
	mu       sync.Mutex
	manifest session.Manifest
	polls    int
}

func newMockSource() *mockSource {
	return &mockSource{
		manifest: session.Manifest{
			Session: session.Session{
				SubjectID: "S1",
				SessionID: "20240101_120000",
				StartedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			},
			State: session.StateRunning,
			Channels: []session.Entry{
				{Modality: channel.HeartRate, Status: session.StatusRunning},
				{Modality: channel.GSR, Status: session.StatusConnecting},
			},
		},
	}
}

func (s *mockSource) Manifest() *session.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	m := s.manifest
	m.Channels = append([]session.Entry(nil), s.manifest.Channels...)
	return &m
}

func (s *mockSource) set(i int, status session.Status, samples, errs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Channels[i].Status = status
	s.manifest.Channels[i].Samples = samples
	s.manifest.Channels[i].TransientErrors = errs
}

func (s *mockSource) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// stepClock returns a Now func advancing one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func newTestMonitor(src Source) *liveMonitor {
	return New(Config{
		RefreshInterval: time.Hour,
		Now:             stepClock(time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)),
	}, src, logger.Noop()).(*liveMonitor)
}

func TestNew_Defaults(t *testing.T) {
	m := New(Config{}, newMockSource(), nil).(*liveMonitor)

	assert.Equal(t, DefaultRefreshInterval, m.config.RefreshInterval)
	assert.NotNil(t, m.config.Now)
	assert.NotNil(t, m.logger)
}

func TestStart_PublishesInitialUpdate(t *testing.T) {
	src := newMockSource()
	src.set(0, session.StatusRunning, 5, 1)
	m := newTestMonitor(src)
	defer m.Close()

	require.NoError(t, m.Start(context.Background()))

	select {
	case u := <-m.Updates():
		assert.Equal(t, "20240101_120000", u.SessionID)
		assert.Equal(t, session.StateRunning, u.State)
		assert.Equal(t, 10*time.Second, u.Elapsed)
		require.Len(t, u.Channels, 2)
		assert.Equal(t, channel.HeartRate, u.Channels[0].Modality)
		assert.Equal(t, uint64(5), u.Channels[0].Samples)
		assert.Equal(t, uint64(5), u.Channels[0].NewSamples)
		assert.Zero(t, u.Channels[0].Rate, "no rate without a previous poll")
		assert.Equal(t, DeltaStats{Samples: 5, TransientErrors: 1}, u.Cumulative)
		assert.True(t, u.Active())
	case <-time.After(time.Second):
		t.Fatal("no initial update")
	}
}

func TestSendUpdate_DeltasAndRates(t *testing.T) {
	src := newMockSource()
	m := newTestMonitor(src)
	defer m.Close()

	src.set(0, session.StatusRunning, 10, 0)
	m.sendUpdate()
	<-m.Updates()

	src.set(0, session.StatusRunning, 14, 2)
	src.set(1, session.StatusRunning, 3, 0)
	m.sendUpdate()
	u := <-m.Updates()

	assert.Equal(t, uint64(4), u.Channels[0].NewSamples)
	assert.InDelta(t, 4.0, u.Channels[0].Rate, 1e-9)
	assert.Equal(t, uint64(3), u.Channels[1].NewSamples)
	assert.Equal(t, DeltaStats{Samples: 7, TransientErrors: 2}, u.Delta)
	assert.Equal(t, DeltaStats{Samples: 17, TransientErrors: 2}, u.Cumulative)
	assert.Equal(t, u, m.Latest())
}

func TestSendUpdate_InactiveWhenAllFinal(t *testing.T) {
	src := newMockSource()
	src.set(0, session.StatusOK, 3, 0)
	src.set(1, session.StatusConnectFailed, 0, 0)
	m := newTestMonitor(src)
	defer m.Close()

	m.sendUpdate()
	u := <-m.Updates()
	assert.False(t, u.Active())
}

func TestSendUpdate_DropsWhenFull(t *testing.T) {
	m := newTestMonitor(newMockSource())
	defer m.Close()

	for i := 0; i < cap(m.updates)+5; i++ {
		m.sendUpdate()
	}
	assert.Len(t, m.updates, cap(m.updates))
}

func TestPeriodicUpdates(t *testing.T) {
	src := newMockSource()
	m := New(Config{RefreshInterval: 10 * time.Millisecond}, src, logger.Noop())
	defer m.Close()

	require.NoError(t, m.Start(context.Background()))

	for i := 0; i < 3; i++ {
		select {
		case <-m.Updates():
		case <-time.After(time.Second):
			t.Fatalf("update %d not received", i)
		}
	}
	require.NoError(t, m.Stop())

	polls := src.Polls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polls, src.Polls(), "no polling after Stop")
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	src := newMockSource()
	m := New(Config{RefreshInterval: 5 * time.Millisecond}, src, logger.Noop()).(*liveMonitor)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling goroutine did not exit")
	}
}

func TestLifecycleErrors(t *testing.T) {
	m := newTestMonitor(newMockSource())

	assert.ErrorIs(t, m.Stop(), ErrMonitorNotRunning)

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrMonitorRunning)
	require.NoError(t, m.Stop())

	// Restart after stop
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")
	assert.ErrorIs(t, m.Start(context.Background()), ErrMonitorClosed)
	assert.ErrorIs(t, m.Stop(), ErrMonitorClosed)

	// Drain: the channel must be closed.
	for range m.Updates() {
	}
}

func TestStart_NoSource(t *testing.T) {
	m := New(Config{}, nil, logger.Noop())
	defer m.Close()

	assert.ErrorIs(t, m.Start(context.Background()), ErrNoSource)
}
