package detector

import (
	"context"
	"strconv"
	"time"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/sink"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// StressHeader is the CSV header of stress files.
var StressHeader = []string{"Timestamp", "GSR", "HeartRate", "RMSSD", "StressDetected"}

// Stress detector defaults.
const (
	DefaultStressWindow = 10 * time.Second
	DefaultBufferSize   = 100
)

// StressConfig configures a StressDetector.
type StressConfig struct {
	// HR is the heart-rate tap (BPM). Required.
	HR *channel.Tap

	// GSR is the skin conductance tap (µS). Optional; the GSR column is
	// left empty without it.
	GSR *channel.Tap

	// Window is the evaluation period. Defaults to 10s.
	Window time.Duration

	// Policy classifies RMSSD values. Defaults to a 20 ms threshold.
	Policy biometrics.StressPolicy
}

// StressDetector evaluates heart-rate variability over the buffered HR
// samples once per window and writes the latest readings with RMSSD and
// the stress flag.
type StressDetector struct {
	tracker
	cfg  StressConfig
	sink *sink.CSV
	mono timebase.Monotonic
}

// NewStress creates a stress detector.
func NewStress(cfg StressConfig, opts channel.Options) *StressDetector {
	if cfg.Window <= 0 {
		cfg.Window = DefaultStressWindow
	}
	if cfg.Policy == (biometrics.StressPolicy{}) {
		cfg.Policy = biometrics.DefaultStressPolicy()
	}
	d := &StressDetector{cfg: cfg}
	d.init(channel.Stress, opts)
	return d
}

// Outputs implements channel.Adapter.Outputs.
func (d *StressDetector) Outputs() []string {
	return []string{d.path}
}

// Connect implements channel.Adapter.Connect. It only creates the sink.
func (d *StressDetector) Connect(_ context.Context) error {
	if d.cfg.HR == nil {
		return &channel.ConnectError{Modality: channel.Stress, Target: "hr tap", Err: ErrNoInput}
	}
	s, err := sink.CreateCSV(d.path, StressHeader)
	if err != nil {
		return err
	}
	d.sink = s
	d.setConnected(true)
	d.log.Info("started", "window", d.cfg.Window, "threshold_ms", d.cfg.Policy.ThresholdMS, "path", d.path)
	return nil
}

// Run implements channel.Adapter.Run.
func (d *StressDetector) Run(ctx context.Context, tok *cancel.Token) error {
	if d.sink == nil {
		return channel.ErrNotConnected
	}
	return every(ctx, tok, d.cfg.Window, func(context.Context) error {
		return d.Evaluate()
	})
}

// Evaluate runs one stress evaluation over the current buffer contents.
// Windows with fewer than two heart-rate samples are skipped.
func (d *StressDetector) Evaluate() error {
	hr := d.cfg.HR.Snapshot()
	if len(hr) < 2 {
		d.recordSkipped()
		d.log.Debug("not enough heart rate samples", "samples", len(hr))
		return nil
	}

	bpm := make([]float64, len(hr))
	for i, s := range hr {
		bpm[i] = s.Value
	}
	rmssd, ok := biometrics.RMSSD(bpm)
	if !ok {
		d.recordSkipped()
		return nil
	}
	stressed := d.cfg.Policy.Stressed(rmssd)

	gsr := ""
	if d.cfg.GSR != nil {
		if last, ok := d.cfg.GSR.Last(); ok {
			gsr = strconv.FormatFloat(last.Value, 'f', 4, 64)
		}
	}

	latest := hr[len(hr)-1]
	ts := d.mono.Clamp(latest.Time)
	err := d.sink.Write([]string{
		timebase.ISO(ts),
		gsr,
		strconv.FormatFloat(latest.Value, 'f', -1, 64),
		strconv.FormatFloat(rmssd, 'f', 2, 64),
		strconv.FormatBool(stressed),
	})
	if err != nil {
		return err
	}
	d.recordSample(ts)

	if stressed {
		d.log.Info("stress detected", "rmssd_ms", rmssd, "bpm", latest.Value)
	} else {
		d.log.Debug("window evaluated", "rmssd_ms", rmssd, "bpm", latest.Value)
	}
	return nil
}

// Close implements channel.Adapter.Close.
func (d *StressDetector) Close() error {
	return d.closeWith(func() error {
		if d.sink == nil {
			return nil
		}
		return d.sink.Close()
	})
}
