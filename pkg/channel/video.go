package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/ring"
	"github.com/0xmhha/biorecorder/pkg/sink"
)

// DefaultVideoFPS is used when a camera does not report its frame rate.
const DefaultVideoFPS = 30

// VideoConfig configures a camera channel.
type VideoConfig struct {
	// Candidates are tried in order until one opens.
	Candidates []device.CaptureConfig

	// DefaultFPS replaces a frame rate the camera reports as 0.
	DefaultFPS float64

	// Tap, if set, always holds the most recent frame.
	Tap *ring.Latest[*device.Frame]
}

// VideoCandidates expands camera indices and backend names into an ordered
// candidate list: every backend for the first index, then the next index.
// An empty backend list yields one backend-agnostic candidate per index.
func VideoCandidates(indices []int, backends []string, width, height int, fps float64) []device.CaptureConfig {
	if len(backends) == 0 {
		backends = []string{""}
	}
	out := make([]device.CaptureConfig, 0, len(indices)*len(backends))
	for _, idx := range indices {
		for _, b := range backends {
			out = append(out, device.CaptureConfig{Index: idx, Backend: b, Width: width, Height: height, FPS: fps})
		}
	}
	return out
}

// VideoAdapter grabs frames from a camera and appends them to a video file
// with a wall-clock overlay.
type VideoAdapter struct {
	base
	src device.FrameSource
	enc device.VideoEncoder
	cfg VideoConfig

	cam    device.Camera
	chosen device.CaptureConfig
	writer device.VideoWriter
	period time.Duration
}

// NewVideo creates a video channel.
//
// Parameters:
//   - src: Frame source used to open the camera
//   - enc: Encoder creating the output file
//   - cfg: Capture candidates and fallbacks
//   - opts: Output path, session clock, logger and bounds
//
// Returns an unconnected adapter.
func NewVideo(src device.FrameSource, enc device.VideoEncoder, cfg VideoConfig, opts Options) *VideoAdapter {
	if cfg.DefaultFPS <= 0 {
		cfg.DefaultFPS = DefaultVideoFPS
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = []device.CaptureConfig{{Index: 0}}
	}
	a := &VideoAdapter{src: src, enc: enc, cfg: cfg}
	a.init(Video, opts)
	return a
}

// Chosen returns the candidate that opened successfully.
func (a *VideoAdapter) Chosen() device.CaptureConfig {
	return a.chosen
}

func describe(c device.CaptureConfig) string {
	if c.Backend == "" {
		return fmt.Sprintf("camera %d", c.Index)
	}
	return fmt.Sprintf("camera %d (%s)", c.Index, c.Backend)
}

// Connect implements Adapter.Connect.
//
// Candidates are tried in order; the first that opens is kept.
func (a *VideoAdapter) Connect(ctx context.Context) error {
	cctx, cancelFn := a.connectContext(ctx)
	defer cancelFn()

	var failures []error
	for _, c := range a.cfg.Candidates {
		cam, err := a.src.Open(cctx, c)
		if err != nil {
			a.log.Debug("capture candidate failed", "candidate", describe(c), "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", describe(c), err))
			if cctx.Err() != nil {
				break
			}
			continue
		}
		a.cam = cam
		a.chosen = c
		break
	}
	if a.cam == nil {
		return a.connectError("camera", fmt.Errorf("%w: %w", ErrNoCamera, errors.Join(failures...)))
	}

	width, height, fps := a.cam.Format()
	if fps <= 0 {
		fps = a.cfg.DefaultFPS
	}
	a.period = time.Duration(float64(time.Second) / fps)

	w, err := a.enc.Create(a.opts.Path, width, height, fps)
	if err != nil {
		_ = a.cam.Release()
		a.cam = nil
		perr := &sink.PersistError{Path: a.opts.Path, Op: "create", Err: err}
		a.recordError(perr)
		return perr
	}

	a.writer = w
	a.setConnected(true)
	a.log.Info("connected",
		"candidate", describe(a.chosen),
		"width", width,
		"height", height,
		"fps", fps,
		"path", a.opts.Path)
	return nil
}

// Run implements Adapter.Run.
//
// The camera read is the suspension point; when a source delivers faster
// than its frame rate the loop sleeps out the rest of the frame period.
func (a *VideoAdapter) Run(ctx context.Context, tok *cancel.Token) error {
	if a.writer == nil {
		return ErrNotConnected
	}

	readCtx, stop := tok.Context(ctx)
	defer stop()

	errs := errorCounter{max: a.opts.MaxConsecutiveErrors}
	next := time.Now()
	for {
		if tok.IsSignaled() || ctx.Err() != nil {
			return nil
		}

		if a.cam == nil {
			if err := a.reopen(readCtx); err != nil {
				if tok.IsSignaled() || ctx.Err() != nil {
					return nil
				}
				a.recordTransient(transient(Video, err))
				a.log.Warn("camera reopen failed", "error", err)
				if lost := errs.fail(err); lost != nil {
					a.recordError(lost)
					return lost
				}
				if !sleepCtx(ctx, tok, a.period) {
					return nil
				}
				continue
			}
		}

		frame, err := a.cam.ReadFrame(readCtx)
		if err != nil {
			if tok.IsSignaled() || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				lost := fmt.Errorf("%w: %s stream ended", ErrLinkLost, describe(a.chosen))
				a.recordError(lost)
				return lost
			}
			terr := transient(Video, err)
			a.recordTransient(terr)
			a.log.Warn("frame read failed, reopening camera", "error", err)
			if lost := errs.fail(err); lost != nil {
				a.recordError(lost)
				return lost
			}
			_ = a.cam.Release()
			a.cam = nil
			if !sleepCtx(ctx, tok, a.period) {
				return nil
			}
			continue
		}
		errs.reset()

		frame.Timestamp = a.opts.Clock.Now()
		if err := a.writer.WriteFrame(frame); err != nil {
			perr := &sink.PersistError{Path: a.opts.Path, Op: "write", Err: err}
			a.recordError(perr)
			return perr
		}
		a.recordSamples(1, frame.Timestamp)
		if a.cfg.Tap != nil {
			a.cfg.Tap.Store(frame)
		}

		next = next.Add(a.period)
		if wait := time.Until(next); wait > 0 {
			if !sleepCtx(ctx, tok, wait) {
				return nil
			}
		} else {
			next = time.Now()
		}
	}
}

// reopen opens the chosen candidate again after a read failure.
func (a *VideoAdapter) reopen(ctx context.Context) error {
	cctx, cancelFn := a.connectContext(ctx)
	defer cancelFn()

	cam, err := a.src.Open(cctx, a.chosen)
	if err != nil {
		return err
	}
	a.cam = cam
	return nil
}

// Close implements Adapter.Close.
func (a *VideoAdapter) Close() error {
	return a.closeWith(func() error {
		var errs []error
		if a.cam != nil {
			errs = append(errs, a.cam.Release())
		}
		if a.writer != nil {
			if err := a.writer.Close(); err != nil {
				errs = append(errs, &sink.PersistError{Path: a.opts.Path, Op: "close", Err: err})
			}
		}
		a.log.Debug("closed")
		return errors.Join(errs...)
	})
}
