package sim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/0xmhha/biorecorder/pkg/device"
)

// ErrCameraUnavailable is returned when opening an index or backend that
// the simulated source does not provide.
var ErrCameraUnavailable = errors.New("camera unavailable")

// FrameSource is a simulated set of cameras.
type FrameSource struct {
	// Indices are the camera indices that can be opened.
	Indices []int

	// Backends, if non-empty, restricts which capture backends succeed.
	Backends []string

	// FPS is the delivered frame rate; 0 makes Format report 0.
	FPS float64

	// MaxFrames, if positive, ends each stream with io.EOF after that many frames.
	MaxFrames uint64
}

// NewFrameSource returns a source with one camera at index 0 delivering 30 fps.
func NewFrameSource() *FrameSource {
	return &FrameSource{Indices: []int{0}, FPS: 30}
}

func (s *FrameSource) available(cfg device.CaptureConfig) bool {
	found := false
	for _, i := range s.Indices {
		if i == cfg.Index {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if len(s.Backends) == 0 || cfg.Backend == "" {
		return true
	}
	for _, b := range s.Backends {
		if b == cfg.Backend {
			return true
		}
	}
	return false
}

// Open implements device.FrameSource.Open.
func (s *FrameSource) Open(ctx context.Context, cfg device.CaptureConfig) (device.Camera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.available(cfg) {
		return nil, fmt.Errorf("%w: index %d backend %q", ErrCameraUnavailable, cfg.Index, cfg.Backend)
	}

	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	return &camera{
		width:     w,
		height:    h,
		fps:       s.FPS,
		maxFrames: s.MaxFrames,
		start:     time.Now(),
	}, nil
}

// Probe implements device.FrameSource.Probe.
func (s *FrameSource) Probe(ctx context.Context, indices []int) []device.CameraInfo {
	out := make([]device.CameraInfo, 0, len(indices))
	for _, idx := range indices {
		info := device.CameraInfo{Index: idx}
		cam, err := s.Open(ctx, device.CaptureConfig{Index: idx})
		if err != nil {
			info.Err = err.Error()
		} else {
			info.OK = true
			info.Width, info.Height, info.FPS = cam.Format()
			_ = cam.Release()
		}
		out = append(out, info)
	}
	return out
}

type camera struct {
	mu        sync.Mutex
	width     int
	height    int
	fps       float64
	maxFrames uint64
	start     time.Time
	seq       uint64
	released  bool
}

func (c *camera) Format() (int, int, float64) {
	return c.width, c.height, c.fps
}

// ReadFrame paces delivery at the camera frame rate, then renders a test
// pattern: a gradient with a bar that sweeps across once per second.
func (c *camera) ReadFrame(ctx context.Context) (*device.Frame, error) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil, io.EOF
	}
	if c.maxFrames > 0 && c.seq >= c.maxFrames {
		c.mu.Unlock()
		return nil, io.EOF
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	fps := c.fps
	if fps <= 0 {
		fps = 30
	}
	due := c.start.Add(time.Duration(float64(seq) * float64(time.Second) / fps))
	if wait := time.Until(due); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	period := uint64(fps)
	if period == 0 {
		period = 1
	}
	bar := int(float64(seq%period) / float64(period) * float64(c.width))
	barEnd := bar + c.width/20 + 1

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for y := 0; y < c.height; y++ {
		row := img.Pix[y*img.Stride:]
		g := uint8(y * 255 / c.height)
		for x := 0; x < c.width; x++ {
			px := row[x*4 : x*4+4]
			if x >= bar && x < barEnd {
				px[0], px[1], px[2], px[3] = 255, 255, 255, 255
				continue
			}
			px[0], px[1], px[2], px[3] = uint8(x*255/c.width), g, 128, 255
		}
	}

	return &device.Frame{Seq: seq, Image: img}, nil
}

func (c *camera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}
