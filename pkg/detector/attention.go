package detector

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/ring"
	"github.com/0xmhha/biorecorder/pkg/sink"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// Attention file headers.
var (
	AttentionHeader        = []string{"timestamp", "datetime", "yaw", "pitch", "roll", "ear", "attention", "fatigue"}
	AttentionSummaryHeader = []string{"total_time_s", "total_frames", "attention_frames", "fatigue_frames", "attention_pct", "fatigue_pct"}
)

// DefaultAttentionInterval is the frame sampling period.
const DefaultAttentionInterval = 200 * time.Millisecond

// AttentionConfig configures an AttentionDetector.
type AttentionConfig struct {
	// Frames is the slot the video channel publishes into. Required.
	Frames *ring.Latest[*device.Frame]

	// Estimator extracts head pose and eye landmarks. Required.
	Estimator device.PoseEstimator

	// Interval is the sampling period. Defaults to 200ms.
	Interval time.Duration

	// Policy holds the attention and fatigue thresholds.
	Policy biometrics.AttentionPolicy

	// SummaryPath is where the summary is written on Close.
	SummaryPath string
}

// Summary aggregates an attention run.
type Summary struct {
	TotalTime       time.Duration
	TotalFrames     int
	AttentionFrames int
	FatigueFrames   int
}

// AttentionPct returns the share of frames with attention, in percent.
func (s Summary) AttentionPct() float64 {
	return pct(s.AttentionFrames, s.TotalFrames)
}

// FatiguePct returns the share of frames with fatigue, in percent.
func (s Summary) FatiguePct() float64 {
	return pct(s.FatigueFrames, s.TotalFrames)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Record returns the summary CSV row.
func (s Summary) Record() []string {
	return []string{
		strconv.FormatFloat(s.TotalTime.Seconds(), 'f', 3, 64),
		strconv.Itoa(s.TotalFrames),
		strconv.Itoa(s.AttentionFrames),
		strconv.Itoa(s.FatigueFrames),
		strconv.FormatFloat(s.AttentionPct(), 'f', 2, 64),
		strconv.FormatFloat(s.FatiguePct(), 'f', 2, 64),
	}
}

// AttentionDetector samples the newest video frame on its own cadence and
// classifies attention and fatigue from head pose and eye aspect ratio.
// Frames without a detected face are skipped and not counted.
type AttentionDetector struct {
	tracker
	cfg AttentionConfig

	sink    *sink.CSV
	mono    timebase.Monotonic
	lastSeq uint64
	first   time.Time
	last    time.Time
	summary Summary
}

// NewAttention creates an attention/fatigue detector.
//
// Parameters:
//   - cfg: Frame slot, pose estimator, cadence and thresholds
//   - opts: Output path, session clock and logger
//
// Returns an unconnected detector.
func NewAttention(cfg AttentionConfig, opts channel.Options) *AttentionDetector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultAttentionInterval
	}
	if cfg.Policy == (biometrics.AttentionPolicy{}) {
		cfg.Policy = biometrics.DefaultAttentionPolicy()
	}
	d := &AttentionDetector{cfg: cfg}
	d.init(channel.Attention, opts)
	return d
}

// Outputs implements channel.Adapter.Outputs.
func (d *AttentionDetector) Outputs() []string {
	if d.cfg.SummaryPath == "" {
		return []string{d.path}
	}
	return []string{d.path, d.cfg.SummaryPath}
}

// Connect implements channel.Adapter.Connect.
func (d *AttentionDetector) Connect(_ context.Context) error {
	if d.cfg.Frames == nil || d.cfg.Estimator == nil {
		return &channel.ConnectError{Modality: channel.Attention, Target: "video frames", Err: ErrNoInput}
	}
	s, err := sink.CreateCSV(d.path, AttentionHeader)
	if err != nil {
		return err
	}
	d.sink = s
	d.setConnected(true)
	d.log.Info("started", "interval", d.cfg.Interval, "path", d.path)
	return nil
}

// Run implements channel.Adapter.Run.
func (d *AttentionDetector) Run(ctx context.Context, tok *cancel.Token) error {
	if d.sink == nil {
		return channel.ErrNotConnected
	}
	return every(ctx, tok, d.cfg.Interval, d.Sample)
}

// Sample evaluates the newest frame not yet seen. It is a no-op when no
// new frame has been published.
func (d *AttentionDetector) Sample(ctx context.Context) error {
	frame, seq, ok := d.cfg.Frames.LoadAfter(d.lastSeq)
	if !ok {
		return nil
	}
	d.lastSeq = seq

	obs, found, err := d.cfg.Estimator.Estimate(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.recordTransient(err)
		d.log.Warn("pose estimation failed", "frame", frame.Seq, "error", err)
		return nil
	}
	if !found {
		d.recordSkipped()
		return nil
	}

	ear := biometrics.MeanEAR(obs.LeftEye, obs.RightEye)
	attention, fatigue := d.cfg.Policy.Evaluate(obs.Pose, ear)

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = d.clock.Now()
	}
	ts = d.mono.Clamp(ts)

	err = d.sink.Write([]string{
		timebase.Epoch(ts),
		timebase.ISO(ts),
		strconv.FormatFloat(obs.Pose.Yaw, 'f', 2, 64),
		strconv.FormatFloat(obs.Pose.Pitch, 'f', 2, 64),
		strconv.FormatFloat(obs.Pose.Roll, 'f', 2, 64),
		strconv.FormatFloat(ear, 'f', 4, 64),
		strconv.FormatBool(attention),
		strconv.FormatBool(fatigue),
	})
	if err != nil {
		return err
	}

	if d.summary.TotalFrames == 0 {
		d.first = ts
	}
	d.last = ts
	d.summary.TotalFrames++
	if attention {
		d.summary.AttentionFrames++
	}
	if fatigue {
		d.summary.FatigueFrames++
	}
	d.recordSample(ts)
	return nil
}

// Summary returns the aggregate over the frames evaluated so far.
func (d *AttentionDetector) Summary() Summary {
	s := d.summary
	if s.TotalFrames > 0 {
		s.TotalTime = d.last.Sub(d.first)
	}
	return s
}

// Close implements channel.Adapter.Close. It writes the summary file
// when a sink was opened.
func (d *AttentionDetector) Close() error {
	return d.closeWith(func() error {
		if d.sink == nil {
			return nil
		}
		var errs []error
		errs = append(errs, d.sink.Close())

		if d.cfg.SummaryPath != "" {
			summary := d.Summary()
			s, err := sink.CreateCSV(d.cfg.SummaryPath, AttentionSummaryHeader)
			if err != nil {
				errs = append(errs, err)
			} else {
				errs = append(errs, s.Write(summary.Record()), s.Close())
			}
			d.log.Info("summary written",
				"frames", summary.TotalFrames,
				"attention_pct", summary.AttentionPct(),
				"fatigue_pct", summary.FatiguePct())
		}
		return errors.Join(errs...)
	})
}
