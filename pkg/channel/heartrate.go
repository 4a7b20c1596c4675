package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/sink"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// HeartRateHeader is the CSV header of heart-rate files.
var HeartRateHeader = []string{"timestamp", "heart_rate"}

const notificationQueue = 256

// HeartRateConfig configures a BLE heart-rate channel.
type HeartRateConfig struct {
	// Address is the peripheral's BLE address.
	Address string

	// Characteristic is the Heart Rate Measurement UUID.
	// Defaults to device.HeartRateMeasurementUUID.
	Characteristic string

	// Tap, if set, receives every decoded BPM sample.
	Tap *Tap
}

type notification struct {
	payload []byte
	at      time.Time
}

// HeartRateAdapter records BPM from Heart Rate Measurement notifications.
//
// Acquisition is event driven: the driver callback timestamps and queues
// each payload, and Run decodes and persists them in arrival order.
type HeartRateAdapter struct {
	base
	client device.BLEClient
	cfg    HeartRateConfig

	conn  device.BLEConn
	sink  *sink.CSV
	queue chan notification
	mono  timebase.Monotonic
}

// NewHeartRate creates a heart-rate channel.
//
// Parameters:
//   - client: BLE client used to reach the monitor
//   - cfg: Device address and characteristic
//   - opts: Output path, session clock, logger and bounds
//
// Returns an unconnected adapter.
func NewHeartRate(client device.BLEClient, cfg HeartRateConfig, opts Options) *HeartRateAdapter {
	if cfg.Characteristic == "" {
		cfg.Characteristic = device.HeartRateMeasurementUUID
	}
	a := &HeartRateAdapter{
		client: client,
		cfg:    cfg,
		queue:  make(chan notification, notificationQueue),
	}
	a.init(HeartRate, opts)
	return a
}

// Connect implements Adapter.Connect.
func (a *HeartRateAdapter) Connect(ctx context.Context) error {
	cctx, cancelFn := a.connectContext(ctx)
	defer cancelFn()

	conn, err := a.client.Connect(cctx, a.cfg.Address)
	if err != nil {
		return a.connectError(a.cfg.Address, err)
	}
	if !conn.HasCharacteristic(a.cfg.Characteristic) {
		_ = conn.Close()
		return a.connectError(a.cfg.Address, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, a.cfg.Characteristic))
	}

	s, err := sink.CreateCSV(a.opts.Path, HeartRateHeader)
	if err != nil {
		_ = conn.Close()
		a.recordError(err)
		return err
	}

	if err := conn.Subscribe(cctx, a.cfg.Characteristic, a.onNotify); err != nil {
		_ = conn.Close()
		_ = s.Close()
		return a.connectError(a.cfg.Address, fmt.Errorf("subscribe: %w", err))
	}

	a.conn = conn
	a.sink = s
	a.setConnected(true)
	a.log.Info("connected", "address", a.cfg.Address, "path", a.opts.Path)
	return nil
}

// onNotify runs on the driver's goroutine and must not block.
func (a *HeartRateAdapter) onNotify(payload []byte) {
	n := notification{
		payload: append([]byte(nil), payload...),
		at:      a.opts.Clock.Now(),
	}
	select {
	case a.queue <- n:
	default:
		a.recordDropped()
		a.log.Warn("notification queue full, sample dropped")
	}
}

// Run implements Adapter.Run.
func (a *HeartRateAdapter) Run(ctx context.Context, tok *cancel.Token) error {
	if a.conn == nil {
		return ErrNotConnected
	}

	errs := errorCounter{max: a.opts.MaxConsecutiveErrors}
	for {
		select {
		case <-tok.Done():
			return a.drain()
		case <-ctx.Done():
			return a.drain()
		case <-a.conn.Disconnected():
			if tok.IsSignaled() {
				return a.drain()
			}
			if err := a.drain(); err != nil {
				return err
			}
			err := fmt.Errorf("%w: peripheral %s disconnected", ErrLinkLost, a.cfg.Address)
			a.recordError(err)
			return err
		case n := <-a.queue:
			if err := a.handle(n); err != nil {
				if !IsTransient(err) {
					a.recordError(err)
					return err
				}
				a.recordTransient(err)
				a.log.Warn("transient read error", "error", err)
				if lost := errs.fail(err); lost != nil {
					a.recordError(lost)
					return lost
				}
				continue
			}
			errs.reset()
		}
	}
}

// drain persists notifications already received before the stop.
func (a *HeartRateAdapter) drain() error {
	for {
		select {
		case n := <-a.queue:
			if err := a.handle(n); err != nil && !IsTransient(err) {
				return err
			}
		default:
			return nil
		}
	}
}

func (a *HeartRateAdapter) handle(n notification) error {
	bpm, err := biometrics.DecodeHeartRate(n.payload)
	if err != nil {
		return transient(HeartRate, err)
	}

	ts := a.mono.Clamp(n.at)
	if err := a.sink.Write([]string{timebase.ISO(ts), strconv.Itoa(bpm)}); err != nil {
		return err
	}
	a.recordSamples(1, ts)

	if a.cfg.Tap != nil {
		a.cfg.Tap.Push(Sample{Time: ts, Value: float64(bpm)})
	}
	return nil
}

// Close implements Adapter.Close.
func (a *HeartRateAdapter) Close() error {
	return a.closeWith(func() error {
		var errs []error
		if a.conn != nil {
			errs = append(errs, a.conn.Close())
		}
		if a.sink != nil {
			errs = append(errs, a.sink.Close())
		}
		a.log.Debug("closed")
		return errors.Join(errs...)
	})
}
