// Package mjpeg writes Motion-JPEG video in an AVI (RIFF) container.
//
// Each frame is JPEG-encoded independently with a wall-clock overlay
// burned into its lower-right corner, so the recording can be aligned
// against the other modalities by eye as well as by frame index.
// The container headers are written up front with placeholder counts and
// patched, together with the idx1 index, when the writer is closed.
//
// Example usage:
//
//	w, err := mjpeg.NewEncoder(85).Create("video.avi", 1280, 720, 30)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	err = w.WriteFrame(frame)
package mjpeg

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/0xmhha/biorecorder/pkg/device"
)

// OverlayLayout is the wall-clock format burned into each frame.
const OverlayLayout = "2006-01-02 15:04:05.000"

// Byte offsets of the fields patched on Close.
const (
	offRIFFSize        = 4
	offAvihMaxBytes    = 36
	offAvihTotalFrames = 48
	offAvihBufferSize  = 60
	offStrhLength      = 140
	offStrhBufferSize  = 144
	offMoviSize        = 216
	offMoviFourCC      = 220
	headerSize         = 224
)

const (
	avifHasIndex   = 0x10
	aviifKeyframe  = 0x10
	defaultQuality = 85
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("video writer closed")

// Encoder creates Motion-JPEG AVI files.
type Encoder struct {
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// NewEncoder returns an encoder with the given JPEG quality.
// Values outside 1-100 select the default of 85.
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = defaultQuality
	}
	return &Encoder{Quality: quality}
}

// Create implements device.VideoEncoder.Create.
func (e *Encoder) Create(path string, width, height int, fps float64) (device.VideoWriter, error) {
	return Create(path, width, height, fps, e.Quality)
}

type indexEntry struct {
	offset uint32
	size   uint32
}

// Writer is an open Motion-JPEG AVI file.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	bw      *bufio.Writer
	pos     int64
	width   int
	height  int
	fps     float64
	quality int
	index   []indexEntry
	maxSize uint32
	scratch *image.RGBA
	jpegBuf bytes.Buffer
	closed  bool
}

// Create opens path and writes the AVI headers. The file must not exist.
func Create(path string, width, height int, fps float64, quality int) (*Writer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if fps <= 0 || math.IsNaN(fps) {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}
	if quality < 1 || quality > 100 {
		quality = defaultQuality
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create video directory: %w", err)
	}
	// #nosec G304: path is built by the session manager
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to create video file: %w", err)
	}

	w := &Writer{
		f:       f,
		bw:      bufio.NewWriterSize(f, 256*1024),
		width:   width,
		height:  height,
		fps:     fps,
		quality: quality,
	}
	if err := w.writeHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	var h bytes.Buffer
	le := func(v interface{}) { _ = binary.Write(&h, binary.LittleEndian, v) }

	rate := uint32(math.Round(w.fps * 1000))

	h.WriteString("RIFF")
	le(uint32(0))
	h.WriteString("AVI ")

	h.WriteString("LIST")
	le(uint32(192))
	h.WriteString("hdrl")

	h.WriteString("avih")
	le(uint32(56))
	le(uint32(math.Round(1e6 / w.fps))) // microseconds per frame
	le(uint32(0))                       // max bytes per second
	le(uint32(0))                       // padding granularity
	le(uint32(avifHasIndex))
	le(uint32(0)) // total frames
	le(uint32(0)) // initial frames
	le(uint32(1)) // streams
	le(uint32(0)) // suggested buffer size
	le(uint32(w.width))
	le(uint32(w.height))
	le([4]uint32{})

	h.WriteString("LIST")
	le(uint32(116))
	h.WriteString("strl")

	h.WriteString("strh")
	le(uint32(56))
	h.WriteString("vids")
	h.WriteString("MJPG")
	le(uint32(0)) // flags
	le(uint16(0)) // priority
	le(uint16(0)) // language
	le(uint32(0)) // initial frames
	le(uint32(1000))
	le(rate)
	le(uint32(0)) // start
	le(uint32(0)) // length
	le(uint32(0)) // suggested buffer size
	le(int32(-1)) // quality: driver default
	le(uint32(0)) // sample size
	le([4]int16{0, 0, int16(w.width), int16(w.height)})

	h.WriteString("strf")
	le(uint32(40))
	le(uint32(40))
	le(int32(w.width))
	le(int32(w.height))
	le(uint16(1))  // planes
	le(uint16(24)) // bit count
	h.WriteString("MJPG")
	le(uint32(w.width * w.height * 3))
	le([4]uint32{})

	h.WriteString("LIST")
	le(uint32(0))
	h.WriteString("movi")

	if h.Len() != headerSize {
		return fmt.Errorf("internal error: avi header is %d bytes, want %d", h.Len(), headerSize)
	}
	n, err := w.bw.Write(h.Bytes())
	w.pos += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write avi header: %w", err)
	}
	return nil
}

// WriteFrame implements device.VideoWriter.WriteFrame.
//
// The source image is not modified; the overlay is drawn on a copy.
func (w *Writer) WriteFrame(f *device.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if f == nil || f.Image == nil {
		return errors.New("empty frame")
	}

	img := w.overlay(f)

	w.jpegBuf.Reset()
	if err := jpeg.Encode(&w.jpegBuf, img, &jpeg.Options{Quality: w.quality}); err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", f.Seq, err)
	}
	data := w.jpegBuf.Bytes()
	size := uint32(len(data))

	entry := indexEntry{offset: uint32(w.pos - offMoviFourCC), size: size}

	var hdr [8]byte
	copy(hdr[:4], "00dc")
	binary.LittleEndian.PutUint32(hdr[4:], size)
	if err := w.write(hdr[:]); err != nil {
		return err
	}
	if err := w.write(data); err != nil {
		return err
	}
	if size%2 == 1 {
		if err := w.write([]byte{0}); err != nil {
			return err
		}
	}

	w.index = append(w.index, entry)
	if size > w.maxSize {
		w.maxSize = size
	}
	return nil
}

func (w *Writer) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.pos += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write video data: %w", err)
	}
	return nil
}

// overlay copies the frame into the scratch image and draws the
// timestamp label in the lower-right corner.
func (w *Writer) overlay(f *device.Frame) *image.RGBA {
	b := f.Image.Bounds()
	if w.scratch == nil || w.scratch.Bounds() != b {
		w.scratch = image.NewRGBA(b)
	}
	draw.Draw(w.scratch, b, f.Image, b.Min, draw.Src)

	if f.Timestamp.IsZero() {
		return w.scratch
	}

	label := f.Timestamp.Format(OverlayLayout)
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	const pad = 4
	boxW := textWidth + 2*pad
	boxH := face.Metrics().Height.Ceil() + 2*pad

	box := image.Rect(b.Max.X-boxW-pad, b.Max.Y-boxH-pad, b.Max.X-pad, b.Max.Y-pad).Intersect(b)
	draw.Draw(w.scratch, box, image.NewUniform(color.Black), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  w.scratch,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(box.Min.X+pad, box.Max.Y-pad-face.Metrics().Descent.Ceil()),
	}
	d.DrawString(label)
	return w.scratch
}

// Frames implements device.VideoWriter.Frames.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.index)
}

// Close implements device.VideoWriter.Close.
//
// It appends the idx1 index and patches the frame counts and sizes into
// the headers. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finalize()
	if closeErr := w.f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close video file: %w", closeErr)
	}
	return err
}

func (w *Writer) finalize() error {
	idxPos := w.pos

	var idx bytes.Buffer
	idx.WriteString("idx1")
	_ = binary.Write(&idx, binary.LittleEndian, uint32(16*len(w.index)))
	for _, e := range w.index {
		idx.WriteString("00dc")
		_ = binary.Write(&idx, binary.LittleEndian, [3]uint32{aviifKeyframe, e.offset, e.size})
	}
	if err := w.write(idx.Bytes()); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush video file: %w", err)
	}

	frames := uint32(len(w.index))
	patches := []struct {
		off int64
		val uint32
	}{
		{offRIFFSize, uint32(w.pos - 8)},
		{offAvihMaxBytes, uint32(float64(w.maxSize) * w.fps)},
		{offAvihTotalFrames, frames},
		{offAvihBufferSize, w.maxSize},
		{offStrhLength, frames},
		{offStrhBufferSize, w.maxSize},
		{offMoviSize, uint32(idxPos - offMoviFourCC)},
	}
	var buf [4]byte
	for _, p := range patches {
		binary.LittleEndian.PutUint32(buf[:], p.val)
		if _, err := w.f.WriteAt(buf[:], p.off); err != nil {
			return fmt.Errorf("failed to patch avi header: %w", err)
		}
	}

	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync video file: %w", err)
	}
	return nil
}
