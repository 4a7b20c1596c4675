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

// GSR file headers.
var (
	GSRHeader         = []string{"timestamp", "gsr_value"}
	GSRExtendedHeader = []string{"timestamp", "datetime", "ADC", "microsiemens", "impulse"}
)

// GSR polling bounds.
const (
	MinGSRInterval     = 100 * time.Millisecond
	MaxGSRInterval     = 250 * time.Millisecond
	DefaultGSRInterval = 250 * time.Millisecond
)

// GSRConfig configures a BLE galvanic skin response channel.
type GSRConfig struct {
	// Address is the sensor's BLE address.
	Address string

	// Characteristic is the readable characteristic carrying ADC values.
	// Defaults to device.DefaultGSRCharacteristicUUID.
	Characteristic string

	// Interval is the poll period, clamped to [100ms, 250ms].
	Interval time.Duration

	// Format selects the payload encoding. Defaults to little-endian.
	Format biometrics.PayloadFormat

	// Extended writes epoch, ISO time, ADC, conductance and impulse
	// columns instead of the raw timestamp/ADC pair.
	Extended bool

	// Conductance converts ADC to µS. Zero value selects the default front end.
	Conductance biometrics.Conductance

	// Impulse detector window and exclusive band in µS. The band is used
	// as given; an empty one (MinDelta >= MaxDelta) never flags an impulse.
	ImpulseWindow int
	MinDelta      float64
	MaxDelta      float64

	// Tap, if set, receives every conductance sample in µS.
	Tap *Tap
}

// GSRAdapter polls a GSR characteristic, converts readings to skin
// conductance and flags phasic impulses.
type GSRAdapter struct {
	base
	client device.BLEClient
	cfg    GSRConfig

	conn    device.BLEConn
	sink    *sink.CSV
	impulse *biometrics.ImpulseDetector
}

// NewGSR creates a GSR channel.
//
// Parameters:
//   - client: BLE client used to reach the sensor
//   - cfg: Device, decoding and impulse settings
//   - opts: Output path, session clock, logger and bounds
//
// Returns an unconnected adapter.
func NewGSR(client device.BLEClient, cfg GSRConfig, opts Options) *GSRAdapter {
	if cfg.Characteristic == "" {
		cfg.Characteristic = device.DefaultGSRCharacteristicUUID
	}
	switch {
	case cfg.Interval <= 0:
		cfg.Interval = DefaultGSRInterval
	case cfg.Interval < MinGSRInterval:
		cfg.Interval = MinGSRInterval
	case cfg.Interval > MaxGSRInterval:
		cfg.Interval = MaxGSRInterval
	}
	if cfg.Format == "" {
		cfg.Format = biometrics.PayloadLE
	}
	if cfg.Conductance == (biometrics.Conductance{}) {
		cfg.Conductance = biometrics.DefaultConductance()
	}
	if cfg.ImpulseWindow <= 0 {
		cfg.ImpulseWindow = 10
	}

	a := &GSRAdapter{
		client:  client,
		cfg:     cfg,
		impulse: biometrics.NewImpulseDetector(cfg.ImpulseWindow, cfg.MinDelta, cfg.MaxDelta),
	}
	a.init(GSR, opts)
	return a
}

// Interval returns the effective poll period.
func (a *GSRAdapter) Interval() time.Duration {
	return a.cfg.Interval
}

// Connect implements Adapter.Connect.
func (a *GSRAdapter) Connect(ctx context.Context) error {
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

	header := GSRHeader
	if a.cfg.Extended {
		header = GSRExtendedHeader
	}
	s, err := sink.CreateCSV(a.opts.Path, header)
	if err != nil {
		_ = conn.Close()
		a.recordError(err)
		return err
	}

	a.conn = conn
	a.sink = s
	a.setConnected(true)
	a.log.Info("connected", "address", a.cfg.Address, "interval", a.cfg.Interval, "path", a.opts.Path)
	return nil
}

// Run implements Adapter.Run.
func (a *GSRAdapter) Run(ctx context.Context, tok *cancel.Token) error {
	if a.conn == nil {
		return ErrNotConnected
	}
	return a.poll(ctx, tok, a.cfg.Interval, a.step)
}

func (a *GSRAdapter) step(ctx context.Context) error {
	select {
	case <-a.conn.Disconnected():
		return fmt.Errorf("%w: sensor %s disconnected", ErrLinkLost, a.cfg.Address)
	default:
	}

	payload, err := a.conn.ReadCharacteristic(ctx, a.cfg.Characteristic)
	if err != nil {
		return transient(GSR, err)
	}
	ts := a.opts.Clock.Now()

	adc, err := biometrics.DecodeADC(payload, a.cfg.Format)
	if err != nil {
		return transient(GSR, err)
	}
	if err := a.cfg.Conductance.Check(adc); err != nil {
		return transient(GSR, err)
	}

	us := a.cfg.Conductance.Microsiemens(adc)
	result := a.impulse.Observe(us)

	var record []string
	if a.cfg.Extended {
		record = []string{
			timebase.Epoch(ts),
			timebase.ISO(ts),
			strconv.Itoa(adc),
			strconv.FormatFloat(us, 'f', 4, 64),
			strconv.FormatBool(result.Impulse),
		}
	} else {
		record = []string{timebase.ISO(ts), strconv.Itoa(adc)}
	}
	if err := a.sink.Write(record); err != nil {
		return err
	}
	a.recordSamples(1, ts)

	if result.Impulse {
		a.log.Debug("impulse detected", "microsiemens", us, "delta", result.Delta)
	}
	if a.cfg.Tap != nil {
		a.cfg.Tap.Push(Sample{Time: ts, Value: us})
	}
	return nil
}

// Close implements Adapter.Close.
func (a *GSRAdapter) Close() error {
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
