// Package display provides output formatting for recording sessions.
//
// It renders session manifests, the manifest archive, live progress
// updates, dataset inspection results and device listings in one of
// several output formats (table, JSON, simple text).
package display

import (
	"io"
	"time"

	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/inspect"
	"github.com/0xmhha/biorecorder/pkg/monitor"
	"github.com/0xmhha/biorecorder/pkg/session"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays results in formatted tables.
	FormatTable Format = "table"

	// FormatJSON displays results as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays results as one line per item.
	FormatSimple Format = "simple"
)

// Formatter formats and displays session data.
type Formatter interface {
	// FormatManifest formats one session manifest.
	//
	// Parameters:
	//   - w: Output writer
	//   - m: Manifest to format
	//
	// Returns error if formatting fails.
	FormatManifest(w io.Writer, m *session.Manifest) error

	// FormatSessions formats a list of archived sessions.
	//
	// Parameters:
	//   - w: Output writer
	//   - manifests: Sessions to format, in display order
	//
	// Returns error if formatting fails.
	FormatSessions(w io.Writer, manifests []*session.Manifest) error

	// FormatUpdate formats a live progress update.
	FormatUpdate(w io.Writer, u monitor.Update) error

	// FormatInspection formats per-stream statistics of one session.
	FormatInspection(w io.Writer, stats []inspect.Statistics) error

	// FormatDevices formats a BLE scan and a camera probe.
	FormatDevices(w io.Writer, peripherals []device.Advertisement, cameras []device.CameraInfo) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ColorEnabled colours channel statuses in table output.
	ColorEnabled bool

	// ShowPercentiles enables percentile columns in inspection output.
	ShowPercentiles bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool

	// Now is the reference for relative times. Defaults to time.Now.
	Now func() time.Time
}
