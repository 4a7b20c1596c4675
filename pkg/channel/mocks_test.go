package channel

import (
	"context"
	"encoding/csv"
	"errors"
	"image"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0xmhha/biorecorder/pkg/device"
)

var errMockRead = errors.New("mock read failure")

// mockBLE implements device.BLEClient for testing.
type mockBLE struct {
	mu         sync.Mutex
	conn       *mockConn
	connectErr error
	block      bool // block until ctx is done
	connects   int
}

func (m *mockBLE) Connect(ctx context.Context, address string) (device.BLEConn, error) {
	m.mu.Lock()
	m.connects++
	block, err, conn := m.block, m.connectErr, m.conn
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *mockBLE) Scan(ctx context.Context) ([]device.Advertisement, error) {
	return nil, nil
}

// readResult is one scripted characteristic read.
type readResult struct {
	payload []byte
	err     error
}

// mockConn implements device.BLEConn for testing.
type mockConn struct {
	mu           sync.Mutex
	chars        map[string]bool
	script       []readResult
	onExhausted  func() // called on every read past the end of the script
	reads        int
	callback     func([]byte)
	subscribeErr error
	disconnected chan struct{}
	dropOnce     sync.Once
	closed       int
}

func newMockConn(chars ...string) *mockConn {
	m := &mockConn{
		chars:        make(map[string]bool),
		disconnected: make(chan struct{}),
	}
	for _, c := range chars {
		m.chars[c] = true
	}
	return m
}

func (m *mockConn) HasCharacteristic(uuid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chars[uuid]
}

func (m *mockConn) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	m.mu.Lock()
	m.reads++
	n := m.reads
	var r *readResult
	if n <= len(m.script) {
		r = &m.script[n-1]
	}
	hook := m.onExhausted
	m.mu.Unlock()

	if r != nil {
		return r.payload, r.err
	}
	if hook != nil {
		hook()
	}
	return nil, errMockRead
}

func (m *mockConn) Subscribe(ctx context.Context, uuid string, fn func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.callback = fn
	return nil
}

// notify delivers a payload as the driver would.
func (m *mockConn) notify(p []byte) {
	m.mu.Lock()
	fn := m.callback
	m.mu.Unlock()
	fn(p)
}

func (m *mockConn) drop() {
	m.dropOnce.Do(func() { close(m.disconnected) })
}

func (m *mockConn) Disconnected() <-chan struct{} {
	return m.disconnected
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockConn) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// mockBoardDriver implements device.BoardDriver for testing.
type mockBoardDriver struct {
	board   *mockBoard
	openErr error
}

func (d *mockBoardDriver) OpenSession(ctx context.Context, cfg device.BoardConfig) (device.Board, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.board, nil
}

// mockBoard implements device.Board for testing.
type mockBoard struct {
	mu       sync.Mutex
	layout   device.ChannelLayout
	batches  [][]device.BoardSample
	polls    int
	started  bool
	stopped  bool
	closed   int
	startErr error
}

func (b *mockBoard) Layout() device.ChannelLayout { return b.layout }

func (b *mockBoard) StartStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return b.startErr
}

func (b *mockBoard) BufferedSamples() ([]device.BoardSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if len(b.batches) == 0 {
		return nil, nil
	}
	next := b.batches[0]
	b.batches = b.batches[1:]
	return next, nil
}

func (b *mockBoard) StopStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	return nil
}

func (b *mockBoard) CloseSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *mockBoard) Polls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.polls
}

// mockFrameSource implements device.FrameSource for testing.
type mockFrameSource struct {
	mu     sync.Mutex
	accept func(device.CaptureConfig) bool
	fps    float64
	opened []device.CaptureConfig
	tried  []device.CaptureConfig
	cam    *mockCamera
}

func (s *mockFrameSource) Open(ctx context.Context, cfg device.CaptureConfig) (device.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tried = append(s.tried, cfg)
	if s.accept != nil && !s.accept(cfg) {
		return nil, errors.New("cannot open")
	}
	s.opened = append(s.opened, cfg)
	if s.cam == nil {
		s.cam = &mockCamera{}
	}
	s.cam.fps = s.fps
	return s.cam, nil
}

func (s *mockFrameSource) Probe(ctx context.Context, indices []int) []device.CameraInfo {
	return nil
}

func (s *mockFrameSource) Opened() []device.CaptureConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]device.CaptureConfig(nil), s.opened...)
}

// mockCamera implements device.Camera for testing. Frames are returned
// immediately; errs scripts failures by read number.
type mockCamera struct {
	mu       sync.Mutex
	fps      float64
	reads    int
	errs     map[int]error
	released int
}

func (c *mockCamera) ReadFrame(ctx context.Context) (*device.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if err, ok := c.errs[c.reads]; ok {
		return nil, err
	}
	return &device.Frame{Seq: uint64(c.reads), Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}, nil
}

func (c *mockCamera) Format() (int, int, float64) {
	return 4, 4, c.fps
}

func (c *mockCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
	return nil
}

func (c *mockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// mockEncoder implements device.VideoEncoder for testing.
type mockEncoder struct {
	mu        sync.Mutex
	createErr error
	fps       float64
	writer    *mockVideoWriter
}

func (e *mockEncoder) Create(path string, width, height int, fps float64) (device.VideoWriter, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return nil, e.createErr
	}
	e.fps = fps
	e.writer = &mockVideoWriter{}
	return e.writer, nil
}

// mockVideoWriter implements device.VideoWriter for testing.
type mockVideoWriter struct {
	mu       sync.Mutex
	frames   []*device.Frame
	writeErr error
	closed   int
}

func (w *mockVideoWriter) WriteFrame(f *device.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.frames = append(w.frames, f)
	return nil
}

func (w *mockVideoWriter) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func (w *mockVideoWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

// readRows returns the data rows of a CSV file, asserting its header.
func readRows(t *testing.T, path string, header []string) [][]string {
	t.Helper()

	f, err := os.Open(path) // nolint:gosec
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, header, records[0])
	return records[1:]
}

