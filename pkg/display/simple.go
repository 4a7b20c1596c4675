package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/inspect"
	"github.com/0xmhha/biorecorder/pkg/monitor"
	"github.com/0xmhha/biorecorder/pkg/session"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatManifest implements Formatter.FormatManifest.
func (f *simpleFormatter) FormatManifest(w io.Writer, m *session.Manifest) error {
	if _, err := fmt.Fprintf(w, "Session %s | Subject: %s | State: %s | OK: %s | Duration: %s\n",
		m.SessionID,
		m.SubjectID,
		m.State,
		okCount(m),
		formatDuration(sessionDuration(m, f.config.Now()))); err != nil {
		return err
	}

	for _, e := range m.Channels {
		line := fmt.Sprintf("  %s: %s, %s samples", e.Modality, e.Status, formatNumber(e.Samples))
		if e.Error != "" {
			line += " (" + e.Error + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// FormatSessions implements Formatter.FormatSessions.
func (f *simpleFormatter) FormatSessions(w io.Writer, manifests []*session.Manifest) error {
	for _, m := range manifests {
		if _, err := fmt.Fprintf(w, "%s %s %s ok=%s run=%s\n",
			m.SessionID,
			m.SubjectID,
			m.State,
			okCount(m),
			m.RunID); err != nil {
			return err
		}
	}

	return nil
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *simpleFormatter) FormatUpdate(w io.Writer, u monitor.Update) error {
	parts := make([]string, len(u.Channels))
	for i, c := range u.Channels {
		parts[i] = fmt.Sprintf("%s %s %s (+%d)", c.Modality, c.Status, formatNumber(c.Samples), c.NewSamples)
	}
	_, err := fmt.Fprintf(w, "[%s] %s\n", formatDuration(u.Elapsed), strings.Join(parts, " | "))
	return err
}

// FormatInspection implements Formatter.FormatInspection.
func (f *simpleFormatter) FormatInspection(w io.Writer, stats []inspect.Statistics) error {
	for _, st := range stats {
		line := fmt.Sprintf("%s: %s rows over %s (%s Hz), max gap %s, %d out of order",
			st.Kind,
			formatNumber(uint64(st.Count)),
			formatDuration(st.Span),
			formatFloat(st.Rate, 2),
			formatDuration(st.MaxGap),
			st.OrderViolations)
		if v := st.Value; v != nil && v.Count > 0 {
			line += fmt.Sprintf(", %s mean %s", v.Column, formatFloat(v.Mean, 2))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}

// FormatDevices implements Formatter.FormatDevices.
func (f *simpleFormatter) FormatDevices(w io.Writer, peripherals []device.Advertisement, cameras []device.CameraInfo) error {
	for _, p := range peripherals {
		if _, err := fmt.Fprintf(w, "ble %s %q %d dBm\n", p.Address, p.Name, p.RSSI); err != nil {
			return err
		}
	}
	for _, c := range cameras {
		status := "ok"
		if !c.OK {
			status = "unavailable"
		}
		if _, err := fmt.Fprintf(w, "camera %d %s\n", c.Index, status); err != nil {
			return err
		}
	}
	return nil
}
