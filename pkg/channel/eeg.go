package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/sink"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// DefaultEEGInterval is the board buffer poll period.
const DefaultEEGInterval = 100 * time.Millisecond

// EEGConfig configures an EEG board channel.
type EEGConfig struct {
	// Board selects the board and its port.
	Board device.BoardConfig

	// Interval is the buffer poll period. Defaults to 100ms.
	Interval time.Duration
}

// EEGHeader builds the CSV header for a board layout:
// EEG_0.., Accel_0.., Other_0.., Timestamp.
func EEGHeader(l device.ChannelLayout) []string {
	header := make([]string, 0, l.EEG+l.Accel+l.Other+1)
	for i := 0; i < l.EEG; i++ {
		header = append(header, "EEG_"+strconv.Itoa(i))
	}
	for i := 0; i < l.Accel; i++ {
		header = append(header, "Accel_"+strconv.Itoa(i))
	}
	for i := 0; i < l.Other; i++ {
		header = append(header, "Other_"+strconv.Itoa(i))
	}
	return append(header, "Timestamp")
}

// EEGAdapter pulls buffered sample batches from an EEG board and writes
// one row per board sample, preserving batch order.
type EEGAdapter struct {
	base
	driver device.BoardDriver
	cfg    EEGConfig

	board  device.Board
	layout device.ChannelLayout
	sink   *sink.CSV
	mono   timebase.Monotonic
}

// NewEEG creates an EEG channel.
//
// Parameters:
//   - driver: Board driver used to open the session
//   - cfg: Board selection and poll period
//   - opts: Output path, session clock, logger and bounds
//
// Returns an unconnected adapter.
func NewEEG(driver device.BoardDriver, cfg EEGConfig, opts Options) *EEGAdapter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultEEGInterval
	}
	a := &EEGAdapter{driver: driver, cfg: cfg}
	a.init(EEG, opts)
	return a
}

func (a *EEGAdapter) target() string {
	if a.cfg.Board.SerialPort == "" {
		return a.cfg.Board.Board
	}
	return a.cfg.Board.Board + "@" + a.cfg.Board.SerialPort
}

// Connect implements Adapter.Connect.
func (a *EEGAdapter) Connect(ctx context.Context) error {
	cctx, cancelFn := a.connectContext(ctx)
	defer cancelFn()

	board, err := a.driver.OpenSession(cctx, a.cfg.Board)
	if err != nil {
		return a.connectError(a.target(), err)
	}
	if err := board.StartStream(); err != nil {
		_ = board.CloseSession()
		return a.connectError(a.target(), fmt.Errorf("start stream: %w", err))
	}

	layout := board.Layout()
	s, err := sink.CreateCSV(a.opts.Path, EEGHeader(layout))
	if err != nil {
		_ = board.StopStream()
		_ = board.CloseSession()
		a.recordError(err)
		return err
	}

	a.board = board
	a.layout = layout
	a.sink = s
	a.setConnected(true)
	a.log.Info("connected",
		"board", a.target(),
		"eeg_channels", layout.EEG,
		"accel_channels", layout.Accel,
		"other_channels", layout.Other,
		"path", a.opts.Path)
	return nil
}

// Run implements Adapter.Run.
func (a *EEGAdapter) Run(ctx context.Context, tok *cancel.Token) error {
	if a.board == nil {
		return ErrNotConnected
	}
	return a.poll(ctx, tok, a.cfg.Interval, a.step)
}

func (a *EEGAdapter) step(_ context.Context) error {
	rows, err := a.board.BufferedSamples()
	if err != nil {
		return transient(EEG, err)
	}
	if len(rows) == 0 {
		return nil
	}

	var (
		written int
		last    time.Time
		skipped error
	)
	for i := range rows {
		record, ts, err := a.record(rows[i])
		if err != nil {
			skipped = err
			continue
		}
		if err := a.sink.Append(record); err != nil {
			return err
		}
		written++
		last = ts
	}
	if err := a.sink.Flush(); err != nil {
		return err
	}
	if written > 0 {
		a.recordSamples(written, last)
	}
	if skipped != nil {
		return transient(EEG, skipped)
	}
	return nil
}

// record formats one board row. The board's own timestamp is preferred;
// rows without one are stamped with session time.
func (a *EEGAdapter) record(s device.BoardSample) ([]string, time.Time, error) {
	if len(s.EEG) != a.layout.EEG || len(s.Accel) != a.layout.Accel || len(s.Other) != a.layout.Other {
		return nil, time.Time{}, fmt.Errorf("row shape %d/%d/%d does not match layout %d/%d/%d",
			len(s.EEG), len(s.Accel), len(s.Other), a.layout.EEG, a.layout.Accel, a.layout.Other)
	}

	ts := a.opts.Clock.Now()
	if s.Timestamp > 0 {
		ts = timebase.FromEpoch(s.Timestamp)
	}
	ts = a.mono.Clamp(ts)

	record := make([]string, 0, len(s.EEG)+len(s.Accel)+len(s.Other)+1)
	for _, group := range [][]float64{s.EEG, s.Accel, s.Other} {
		for _, v := range group {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	return append(record, timebase.Epoch(ts)), ts, nil
}

// Close implements Adapter.Close.
func (a *EEGAdapter) Close() error {
	return a.closeWith(func() error {
		var errs []error
		if a.board != nil {
			errs = append(errs, a.board.StopStream(), a.board.CloseSession())
		}
		if a.sink != nil {
			errs = append(errs, a.sink.Close())
		}
		a.log.Debug("closed")
		return errors.Join(errs...)
	})
}
