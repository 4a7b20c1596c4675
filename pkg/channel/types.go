// Package channel implements the acquisition channels of a recording
// session: one adapter per modality (EEG board, BLE heart rate, BLE GSR,
// camera), all following the same lifecycle.
//
// An adapter is constructed with its session-scoped parameters, then
//
//  1. Connect establishes the device link within a bounded timeout and
//     creates the output sink. A failure here is a *ConnectError.
//  2. Run loops acquire, decode, timestamp, persist, suspend until the
//     session's cancellation token fires or the link fails.
//  3. Close flushes and closes the sink and releases the device. It is
//     idempotent and must be called on every exit path.
//
// Each adapter exclusively owns its device handle and sink. The only state
// shared with other workers is the read-only cancellation token and,
// optionally, a tap buffer feeding a derived-metric detector.
//
// Example usage:
//
//	hr := channel.NewHeartRate(client, channel.HeartRateConfig{Address: addr}, opts)
//	if err := hr.Connect(ctx); err != nil {
//	    return err
//	}
//	defer hr.Close()
//	err := hr.Run(ctx, token)
package channel

import (
	"context"
	"time"

	"github.com/0xmhha/biorecorder/pkg/cancel"
	"github.com/0xmhha/biorecorder/pkg/logger"
	"github.com/0xmhha/biorecorder/pkg/ring"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// Modality identifies the kind of data a channel produces.
type Modality string

// Known modalities.
const (
	EEG       Modality = "eeg"
	HeartRate Modality = "hr"
	GSR       Modality = "gsr"
	Video     Modality = "video"
	Stress    Modality = "stress"
	Attention Modality = "attention"
)

// AcquisitionModalities are the device-backed modalities, in start order.
var AcquisitionModalities = []Modality{EEG, HeartRate, GSR, Video}

// ParseModality validates a modality name.
func ParseModality(s string) (Modality, error) {
	switch m := Modality(s); m {
	case EEG, HeartRate, GSR, Video, Stress, Attention:
		return m, nil
	}
	return "", &UnknownModalityError{Name: s}
}

// Adapter is the lifecycle every channel implements.
type Adapter interface {
	// Modality returns the channel's modality.
	Modality() Modality

	// Connect establishes the device link and creates the output sink.
	// Returns a *ConnectError if the device cannot be reached in time.
	Connect(ctx context.Context) error

	// Run acquires until tok is signaled, ctx is done, or a fatal error
	// occurs. A clean stop returns nil.
	Run(ctx context.Context, tok *cancel.Token) error

	// Close flushes the sink and releases the device. Idempotent.
	Close() error

	// Outputs returns the files this channel writes.
	Outputs() []string

	// Stats returns a snapshot of acquisition progress.
	Stats() Stats
}

// Stats is a snapshot of a channel's progress.
type Stats struct {
	Modality        Modality  `json:"modality"`
	Connected       bool      `json:"connected"`
	Samples         uint64    `json:"samples"`
	TransientErrors uint64    `json:"transient_errors"`
	Dropped         uint64    `json:"dropped,omitempty"`
	LastSample      time.Time `json:"last_sample,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// Sample is a timestamped scalar published to a detector tap.
type Sample struct {
	Time  time.Time
	Value float64
}

// Tap is a bounded buffer through which an adapter feeds a detector.
type Tap = ring.Buffer[Sample]

// NewTap creates a tap holding the most recent capacity samples.
func NewTap(capacity int) *Tap {
	return ring.New[Sample](capacity)
}

// Options holds the session-scoped parameters common to all adapters.
type Options struct {
	// Path is the output file path.
	Path string

	// Clock is the shared session clock. Defaults to a new clock.
	Clock *timebase.Clock

	// Logger receives adapter diagnostics. Defaults to a no-op logger.
	Logger logger.Logger

	// ConnectTimeout bounds Connect. Defaults to 15s.
	ConnectTimeout time.Duration

	// MaxConsecutiveErrors is the number of consecutive transient errors
	// after which the link is considered lost. Defaults to 10.
	MaxConsecutiveErrors int
}

// Default option values.
const (
	DefaultConnectTimeout       = 15 * time.Second
	DefaultMaxConsecutiveErrors = 10
)

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = timebase.New()
	}
	if o.Logger == nil {
		o.Logger = logger.Noop()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	return o
}
