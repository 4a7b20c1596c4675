package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/0xmhha/biorecorder/pkg/device"
)

// Board errors.
var (
	ErrBoardUnavailable = errors.New("board unavailable")
	ErrStreamNotStarted = errors.New("stream not started")
	ErrSessionClosed    = errors.New("board session closed")
)

// BoardDriver opens simulated EEG boards.
type BoardDriver struct {
	// Layout is the channel layout every opened board reports.
	Layout device.ChannelLayout

	// Rate is the sampling rate in Hz.
	Rate float64

	// Unavailable makes OpenSession fail.
	Unavailable bool
}

// NewBoardDriver returns a driver for an 8-channel, 250 Hz headset with a
// 3-axis accelerometer and one auxiliary channel.
func NewBoardDriver() *BoardDriver {
	return &BoardDriver{
		Layout: device.ChannelLayout{EEG: 8, Accel: 3, Other: 1},
		Rate:   250,
	}
}

// OpenSession implements device.BoardDriver.OpenSession.
func (d *BoardDriver) OpenSession(ctx context.Context, cfg device.BoardConfig) (device.Board, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Unavailable {
		return nil, fmt.Errorf("%w: %s on %q", ErrBoardUnavailable, cfg.Board, cfg.SerialPort)
	}
	rate := d.Rate
	if rate <= 0 {
		rate = 250
	}
	return &board{layout: d.Layout, rate: rate}, nil
}

type board struct {
	mu        sync.Mutex
	layout    device.ChannelLayout
	rate      float64
	streaming bool
	closed    bool
	last      time.Time
	n         uint64
}

func (b *board) Layout() device.ChannelLayout {
	return b.layout
}

func (b *board) StartStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrSessionClosed
	}
	b.streaming = true
	b.last = time.Now()
	return nil
}

// BufferedSamples returns one row per sampling period elapsed since the
// previous call, with evenly spaced board timestamps.
func (b *board) BufferedSamples() ([]device.BoardSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrSessionClosed
	}
	if !b.streaming {
		return nil, ErrStreamNotStarted
	}

	period := time.Duration(float64(time.Second) / b.rate)
	now := time.Now()
	count := int(now.Sub(b.last) / period)
	if count <= 0 {
		return nil, nil
	}

	rows := make([]device.BoardSample, count)
	for i := range rows {
		b.last = b.last.Add(period)
		b.n++
		rows[i] = b.sample(b.last)
	}
	return rows, nil
}

func (b *board) sample(at time.Time) device.BoardSample {
	t := float64(b.n) / b.rate
	s := device.BoardSample{
		EEG:       make([]float64, b.layout.EEG),
		Accel:     make([]float64, b.layout.Accel),
		Other:     make([]float64, b.layout.Other),
		Timestamp: float64(at.UnixMicro()) / 1e6,
	}
	for ch := range s.EEG {
		// Alpha plus a little beta, per-channel phase offset, in microvolts.
		phase := float64(ch) * 0.7
		s.EEG[ch] = 20*math.Sin(2*math.Pi*10*t+phase) + 5*math.Sin(2*math.Pi*21*t+phase)
	}
	for ax := range s.Accel {
		s.Accel[ax] = 0.01 * math.Sin(2*math.Pi*0.5*t+float64(ax))
	}
	if len(s.Accel) == 3 {
		s.Accel[2] += 1
	}
	for i := range s.Other {
		s.Other[i] = float64(b.n % 256)
	}
	return s
}

func (b *board) StopStream() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streaming = false
	return nil
}

func (b *board) CloseSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.streaming = false
	return nil
}
