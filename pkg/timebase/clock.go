// Package timebase provides the shared session clock.
//
// All modalities of one session stamp their samples from the same Clock.
// A Clock reports the wall time captured at session start plus the
// monotonic time elapsed since then, so its readings never decrease even
// if the system wall clock is stepped, and readings from different
// goroutines are directly comparable.
package timebase

import (
	"math"
	"strconv"
	"time"
)

// ISOLayout is the ISO-8601 layout used for human-readable timestamp columns.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// Clock is a monotonic wall clock anchored at a session start instant.
// It is safe for concurrent use.
type Clock struct {
	start time.Time
}

// New creates a clock anchored at the current instant.
func New() *Clock {
	return &Clock{start: time.Now()}
}

// NewAt creates a clock anchored at start. start should carry a monotonic
// reading (as returned by time.Now) for the non-decreasing guarantee to hold.
func NewAt(start time.Time) *Clock {
	return &Clock{start: start}
}

// Start returns the anchor instant.
func (c *Clock) Start() time.Time {
	return c.start
}

// Now returns the current session time.
func (c *Clock) Now() time.Time {
	return c.start.Round(0).Add(time.Since(c.start))
}

// Elapsed returns the time since the anchor.
func (c *Clock) Elapsed() time.Duration {
	return time.Since(c.start)
}

// Epoch formats t as Unix epoch seconds with microsecond precision.
func Epoch(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

// ISO formats t as ISO-8601 with milliseconds and UTC offset.
func ISO(t time.Time) string {
	return t.Format(ISOLayout)
}

// FromEpoch converts Unix epoch seconds to a time.Time.
func FromEpoch(sec float64) time.Time {
	return time.UnixMicro(int64(math.Round(sec * 1e6)))
}

// Parse reads a timestamp column written as either epoch seconds or ISO-8601.
func Parse(s string) (time.Time, error) {
	if sec, err := strconv.ParseFloat(s, 64); err == nil {
		return FromEpoch(sec), nil
	}
	if t, err := time.Parse(ISOLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Monotonic clamps timestamps so a stream never goes backwards.
// It is not safe for concurrent use; each adapter owns its own.
type Monotonic struct {
	last time.Time
}

// Clamp returns t, or the last returned value if t is earlier.
func (m *Monotonic) Clamp(t time.Time) time.Time {
	if t.Before(m.last) {
		return m.last
	}
	m.last = t
	return t
}
