// Package device defines the interfaces of the external collaborators that
// acquisition channels drive: the Bluetooth LE GATT client, the EEG board
// driver, the camera frame source, the video encoder and the pose
// estimator.
//
// Concrete drivers live outside this package. pkg/device/sim provides
// simulated implementations and pkg/device/mjpeg a Motion-JPEG video
// encoder.
package device

import (
	"context"
	"image"
	"time"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
)

// Well-known GATT characteristic UUIDs.
const (
	// HeartRateMeasurementUUID is the standard Heart Rate Measurement characteristic.
	HeartRateMeasurementUUID = "00002a37-0000-1000-8000-00805f9b34fb"

	// DefaultGSRCharacteristicUUID is the characteristic exposed by the GSR sensor firmware.
	DefaultGSRCharacteristicUUID = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
)

// BLEClient connects to Bluetooth LE peripherals.
type BLEClient interface {
	// Connect opens a GATT connection to address.
	// Implementations must return once ctx is done.
	Connect(ctx context.Context, address string) (BLEConn, error)

	// Scan lists advertising peripherals seen before ctx is done.
	Scan(ctx context.Context) ([]Advertisement, error)
}

// BLEConn is an open GATT connection. It is owned by exactly one channel.
type BLEConn interface {
	// HasCharacteristic reports whether the peripheral exposes uuid.
	HasCharacteristic(uuid string) bool

	// ReadCharacteristic reads the current value of uuid.
	ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error)

	// Subscribe registers fn for notifications on uuid. fn is called from
	// the driver's goroutine and must not block.
	Subscribe(ctx context.Context, uuid string, fn func(payload []byte)) error

	// Disconnected is closed when the link drops.
	Disconnected() <-chan struct{}

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// Advertisement describes one peripheral seen during a scan.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
}

// BoardConfig selects and parameterizes an EEG board.
type BoardConfig struct {
	// Board is the driver-specific board name.
	Board string

	// SerialPort is the dongle port, if the board needs one.
	SerialPort string
}

// ChannelLayout describes the columns a board reports per sample.
type ChannelLayout struct {
	EEG   int
	Accel int
	Other int
}

// BoardSample is one row reported by a board.
type BoardSample struct {
	EEG   []float64
	Accel []float64
	Other []float64

	// Timestamp is the board's own Unix epoch timestamp in seconds, or 0 if
	// the board does not report one.
	Timestamp float64
}

// BoardDriver opens EEG board sessions.
type BoardDriver interface {
	OpenSession(ctx context.Context, cfg BoardConfig) (Board, error)
}

// Board is a prepared EEG board session.
type Board interface {
	// Layout returns the per-sample channel layout.
	Layout() ChannelLayout

	// StartStream begins buffering samples on the board.
	StartStream() error

	// BufferedSamples drains and returns the samples buffered since the
	// last call, oldest first. It may return zero rows.
	BufferedSamples() ([]BoardSample, error)

	// StopStream stops buffering.
	StopStream() error

	// CloseSession releases the board. Safe to call more than once.
	CloseSession() error
}

// CaptureConfig selects a camera and the requested capture format.
type CaptureConfig struct {
	// Index is the camera device index.
	Index int

	// Backend is the driver-specific capture API name; empty means any.
	Backend string

	// Width and Height are the requested resolution. Cameras may deliver
	// a different one.
	Width  int
	Height int

	// FPS is the requested frame rate. 0 means the camera default.
	FPS float64
}

// FrameSource opens cameras.
type FrameSource interface {
	// Open opens the camera described by cfg.
	Open(ctx context.Context, cfg CaptureConfig) (Camera, error)

	// Probe reports which of the given indices can be opened.
	Probe(ctx context.Context, indices []int) []CameraInfo
}

// Camera is an open capture device. It is owned by exactly one channel.
type Camera interface {
	// ReadFrame blocks until the next frame. It returns io.EOF when the
	// stream has ended.
	ReadFrame(ctx context.Context) (*Frame, error)

	// Format returns the delivered resolution and frame rate. FPS may be 0
	// if the camera does not report it.
	Format() (width, height int, fps float64)

	// Release closes the camera. Safe to call more than once.
	Release() error
}

// CameraInfo is the outcome of probing one camera index.
type CameraInfo struct {
	Index  int
	OK     bool
	Width  int
	Height int
	FPS    float64
	Err    string
}

// Frame is a single captured video frame.
type Frame struct {
	// Seq is the capture sequence number, starting at 1.
	Seq uint64

	// Image holds the pixels.
	Image *image.RGBA

	// Timestamp is the session time the frame was acquired at.
	Timestamp time.Time
}

// VideoEncoder creates video files.
type VideoEncoder interface {
	// Create opens a new video file at path.
	Create(path string, width, height int, fps float64) (VideoWriter, error)
}

// VideoWriter is an open video file. It is owned by exactly one channel.
type VideoWriter interface {
	// WriteFrame encodes f and appends it, with a wall-clock overlay of
	// f.Timestamp burned in.
	WriteFrame(f *Frame) error

	// Frames returns the number of frames written.
	Frames() int

	// Close finalizes the container. Safe to call more than once.
	Close() error
}

// FaceObservation is what a pose estimator extracts from one frame.
type FaceObservation struct {
	Pose     biometrics.HeadPose
	LeftEye  biometrics.Eye
	RightEye biometrics.Eye
}

// PoseEstimator extracts face geometry from frames.
type PoseEstimator interface {
	// Estimate returns false if no face was found.
	Estimate(ctx context.Context, f *Frame) (FaceObservation, bool, error)
}
