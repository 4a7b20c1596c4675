package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/inspect"
	"github.com/0xmhha/biorecorder/pkg/monitor"
	"github.com/0xmhha/biorecorder/pkg/session"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// FormatManifest implements Formatter.FormatManifest.
func (f *jsonFormatter) FormatManifest(w io.Writer, m *session.Manifest) error {
	return f.encode(w, m)
}

// FormatSessions implements Formatter.FormatSessions.
func (f *jsonFormatter) FormatSessions(w io.Writer, manifests []*session.Manifest) error {
	if manifests == nil {
		manifests = []*session.Manifest{}
	}
	return f.encode(w, manifests)
}

// FormatUpdate implements Formatter.FormatUpdate. Updates are always
// written one per line.
func (f *jsonFormatter) FormatUpdate(w io.Writer, u monitor.Update) error {
	return json.NewEncoder(w).Encode(u)
}

// FormatInspection implements Formatter.FormatInspection.
func (f *jsonFormatter) FormatInspection(w io.Writer, stats []inspect.Statistics) error {
	if stats == nil {
		stats = []inspect.Statistics{}
	}
	return f.encode(w, stats)
}

// FormatDevices implements Formatter.FormatDevices.
func (f *jsonFormatter) FormatDevices(w io.Writer, peripherals []device.Advertisement, cameras []device.CameraInfo) error {
	return f.encode(w, struct {
		Peripherals []device.Advertisement `json:"peripherals"`
		Cameras     []device.CameraInfo    `json:"cameras"`
	}{peripherals, cameras})
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}
