package recorder

import (
	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/detector"
	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/ring"
	"github.com/0xmhha/biorecorder/pkg/session"
)

// Output file naming per channel.
var (
	eegFiles       = []session.File{{Prefix: "eeg", Ext: "csv"}}
	hrFiles        = []session.File{{Prefix: "hr", Ext: "csv"}}
	gsrFiles       = []session.File{{Prefix: "gsr", Ext: "csv"}}
	videoFiles     = []session.File{{Prefix: "video", Ext: "avi"}}
	stressFiles    = []session.File{{Prefix: "stress", Ext: "csv"}}
	attentionFiles = []session.File{{Prefix: "attention", Ext: "csv"}, {Prefix: "attention_summary", Ext: "csv"}}
)

// buffers are the in-process links between acquisition channels and
// detectors for one session.
type buffers struct {
	hr     *channel.Tap
	gsr    *channel.Tap
	frames *ring.Latest[*device.Frame]
}

// Specs returns the channel specs of one session, acquisition channels
// first in start order (EEG, HR, GSR, video), then the detectors.
//
// Each call creates fresh buffers, so specs must not be shared between
// sessions. The stress detector is included only with heart rate, and
// the attention detector only with video.
func (r *Recorder) Specs() []session.Spec {
	cfg := r.cfg
	var buf buffers
	if cfg.Stress.Enabled && cfg.HeartRate.Enabled {
		buf.hr = channel.NewTap(cfg.Stress.BufferSize)
		if cfg.GSR.Enabled {
			buf.gsr = channel.NewTap(cfg.Stress.BufferSize)
		}
	}
	if cfg.Attention.Enabled && cfg.Video.Enabled {
		buf.frames = &ring.Latest[*device.Frame]{}
	}

	var specs []session.Spec
	if cfg.EEG.Enabled {
		specs = append(specs, session.Spec{Modality: channel.EEG, Files: eegFiles, Build: r.buildEEG})
	}
	if cfg.HeartRate.Enabled {
		specs = append(specs, session.Spec{Modality: channel.HeartRate, Files: hrFiles, Build: r.buildHeartRate(buf.hr)})
	}
	if cfg.GSR.Enabled {
		specs = append(specs, session.Spec{Modality: channel.GSR, Files: gsrFiles, Build: r.buildGSR(buf.gsr)})
	}
	if cfg.Video.Enabled {
		specs = append(specs, session.Spec{Modality: channel.Video, Files: videoFiles, Build: r.buildVideo(buf.frames)})
	}
	if buf.hr != nil {
		specs = append(specs, session.Spec{
			Modality: channel.Stress,
			Files:    stressFiles,
			Build:    r.buildStress(buf),
			Inputs:   []channel.Modality{channel.HeartRate},
		})
	}
	if buf.frames != nil {
		specs = append(specs, session.Spec{
			Modality: channel.Attention,
			Files:    attentionFiles,
			Build:    r.buildAttention(buf.frames),
			Inputs:   []channel.Modality{channel.Video},
		})
	}
	return specs
}

// options derives adapter options from a build target.
func (r *Recorder) options(t session.Target) channel.Options {
	return channel.Options{
		Path:                 t.Paths[0],
		Clock:                t.Clock,
		Logger:               t.Logger,
		ConnectTimeout:       r.cfg.Session.ConnectTimeout,
		MaxConsecutiveErrors: r.cfg.Session.MaxConsecutiveErrors,
	}
}

func (r *Recorder) buildEEG(t session.Target) (channel.Adapter, error) {
	if r.dev.Boards == nil {
		return nil, ErrNoDevice
	}
	cfg := channel.EEGConfig{
		Board: device.BoardConfig{
			Board:      r.cfg.EEG.Board,
			SerialPort: r.cfg.EEG.SerialPort,
		},
		Interval: r.cfg.EEG.Interval,
	}
	return channel.NewEEG(r.dev.Boards, cfg, r.options(t)), nil
}

func (r *Recorder) buildHeartRate(tap *channel.Tap) func(session.Target) (channel.Adapter, error) {
	return func(t session.Target) (channel.Adapter, error) {
		if r.dev.BLE == nil {
			return nil, ErrNoDevice
		}
		cfg := channel.HeartRateConfig{
			Address:        r.cfg.HeartRate.Address,
			Characteristic: r.cfg.HeartRate.Characteristic,
			Tap:            tap,
		}
		return channel.NewHeartRate(r.dev.BLE, cfg, r.options(t)), nil
	}
}

func (r *Recorder) buildGSR(tap *channel.Tap) func(session.Target) (channel.Adapter, error) {
	return func(t session.Target) (channel.Adapter, error) {
		if r.dev.BLE == nil {
			return nil, ErrNoDevice
		}
		format, err := biometrics.ParsePayloadFormat(r.cfg.GSR.PayloadFormat)
		if err != nil {
			return nil, err
		}
		g := r.cfg.GSR
		cfg := channel.GSRConfig{
			Address:        g.Address,
			Characteristic: g.Characteristic,
			Interval:       g.Interval,
			Format:         format,
			Extended:       g.Extended,
			Conductance: biometrics.Conductance{
				Vcc:    g.Vcc,
				RFixed: g.RFixed,
				ADCMax: g.ADCMax,
			},
			ImpulseWindow: g.Impulse.Window,
			MinDelta:      g.Impulse.MinDelta,
			MaxDelta:      g.Impulse.MaxDelta,
			Tap:           tap,
		}
		return channel.NewGSR(r.dev.BLE, cfg, r.options(t)), nil
	}
}

func (r *Recorder) buildVideo(frames *ring.Latest[*device.Frame]) func(session.Target) (channel.Adapter, error) {
	return func(t session.Target) (channel.Adapter, error) {
		if r.dev.Cameras == nil || r.dev.Encoder == nil {
			return nil, ErrNoDevice
		}
		v := r.cfg.Video
		cfg := channel.VideoConfig{
			Candidates: channel.VideoCandidates(v.Indices, v.Backends, v.Width, v.Height, v.FPS),
			DefaultFPS: v.FPS,
			Tap:        frames,
		}
		return channel.NewVideo(r.dev.Cameras, r.dev.Encoder, cfg, r.options(t)), nil
	}
}

func (r *Recorder) buildStress(buf buffers) func(session.Target) (channel.Adapter, error) {
	return func(t session.Target) (channel.Adapter, error) {
		cfg := detector.StressConfig{
			HR:     buf.hr,
			GSR:    buf.gsr,
			Window: r.cfg.Stress.Window,
			Policy: biometrics.StressPolicy{ThresholdMS: r.cfg.Stress.RMSSDThresholdMS},
		}
		return detector.NewStress(cfg, r.options(t)), nil
	}
}

func (r *Recorder) buildAttention(frames *ring.Latest[*device.Frame]) func(session.Target) (channel.Adapter, error) {
	return func(t session.Target) (channel.Adapter, error) {
		if r.dev.Pose == nil {
			return nil, ErrNoDevice
		}
		a := r.cfg.Attention
		cfg := detector.AttentionConfig{
			Frames:    frames,
			Estimator: r.dev.Pose,
			Interval:  a.Interval,
			Policy: biometrics.AttentionPolicy{
				YawLimit:     a.YawLimit,
				PitchLimit:   a.PitchLimit,
				EARThreshold: a.EARThreshold,
			},
			SummaryPath: t.Paths[1],
		}
		return detector.NewAttention(cfg, r.options(t)), nil
	}
}
