package display

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/inspect"
	"github.com/0xmhha/biorecorder/pkg/monitor"
	"github.com/0xmhha/biorecorder/pkg/session"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatManifest implements Formatter.FormatManifest.
func (f *tableFormatter) FormatManifest(w io.Writer, m *session.Manifest) error {
	title := fmt.Sprintf("Session %s (subject %s)", m.SessionID, m.SubjectID)
	if err := writeHeader(w, title, f.config.Compact); err != nil {
		return err
	}

	now := f.config.Now()
	rows := [][]string{
		{"Run ID", m.RunID},
		{"State", string(m.State)},
		{"Started", formatTime(m.StartedAt, now)},
		{"Duration", formatDuration(sessionDuration(m, now))},
		{"Output Dir", m.OutputDir},
		{"Channels OK", okCount(m)},
	}
	if err := f.writeTable(w, []string{"Field", "Value"}, rows); err != nil {
		return err
	}

	header := []string{"Channel", "Status", "Samples", "Errors", "Files", "Error"}
	channels := make([][]string, 0, len(m.Channels))
	for _, e := range m.Channels {
		names := make([]string, len(e.Paths))
		for i, p := range e.Paths {
			names[i] = filepath.Base(p)
		}
		channels = append(channels, []string{
			string(e.Modality),
			renderStatus(e.Status, f.config.ColorEnabled),
			formatNumber(e.Samples),
			formatNumber(e.TransientErrors),
			strings.Join(names, ", "),
			e.Error,
		})
	}
	return f.writeTable(w, header, channels)
}

// FormatSessions implements Formatter.FormatSessions.
func (f *tableFormatter) FormatSessions(w io.Writer, manifests []*session.Manifest) error {
	if err := writeHeader(w, "Recorded Sessions", f.config.Compact); err != nil {
		return err
	}

	now := f.config.Now()
	header := []string{"Session ID", "Subject", "Started", "Duration", "OK", "State", "Run ID"}
	rows := make([][]string, len(manifests))
	for i, m := range manifests {
		rows[i] = []string{
			m.SessionID,
			m.SubjectID,
			humanize.RelTime(m.StartedAt, now, "ago", "from now"),
			formatDuration(sessionDuration(m, now)),
			okCount(m),
			string(m.State),
			m.RunID,
		}
	}

	return f.writeTable(w, header, rows)
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *tableFormatter) FormatUpdate(w io.Writer, u monitor.Update) error {
	title := fmt.Sprintf("%s  %s  elapsed %s", u.SessionID, u.State, formatDuration(u.Elapsed))
	if err := writeHeader(w, title, true); err != nil {
		return err
	}

	header := []string{"Channel", "Status", "Samples", "Rate", "Errors"}
	rows := make([][]string, len(u.Channels))
	for i, c := range u.Channels {
		rows[i] = []string{
			string(c.Modality),
			renderStatus(c.Status, f.config.ColorEnabled),
			formatNumber(c.Samples),
			formatFloat(c.Rate, 1) + "/s",
			formatNumber(c.TransientErrors),
		}
	}
	return f.writeTable(w, header, rows)
}

// FormatInspection implements Formatter.FormatInspection.
func (f *tableFormatter) FormatInspection(w io.Writer, stats []inspect.Statistics) error {
	if err := writeHeader(w, "Stream Statistics", f.config.Compact); err != nil {
		return err
	}

	header := []string{"Stream", "Rows", "Skipped", "Span", "Rate (Hz)", "Max Gap", "Out of Order", "Column", "Min", "Mean", "Max"}
	if f.config.ShowPercentiles {
		header = append(header, "P50", "P95", "P99")
	}

	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		row := []string{
			string(st.Kind),
			formatNumber(uint64(st.Count)),
			formatNumber(uint64(st.Skipped)),
			formatDuration(st.Span),
			formatFloat(st.Rate, 2),
			formatDuration(st.MaxGap),
			strconv.Itoa(st.OrderViolations),
		}
		if v := st.Value; v != nil && v.Count > 0 {
			row = append(row, v.Column, formatFloat(v.Min, 2), formatFloat(v.Mean, 2), formatFloat(v.Max, 2))
			if f.config.ShowPercentiles {
				row = append(row, formatFloat(v.P50, 2), formatFloat(v.P95, 2), formatFloat(v.P99, 2))
			}
		}
		rows = append(rows, row)
	}

	return f.writeTable(w, header, rows)
}

// FormatDevices implements Formatter.FormatDevices.
func (f *tableFormatter) FormatDevices(w io.Writer, peripherals []device.Advertisement, cameras []device.CameraInfo) error {
	if err := writeHeader(w, "Bluetooth LE Peripherals", f.config.Compact); err != nil {
		return err
	}
	rows := make([][]string, len(peripherals))
	for i, p := range peripherals {
		rows[i] = []string{p.Address, p.Name, strconv.Itoa(p.RSSI) + " dBm"}
	}
	if err := f.writeTable(w, []string{"Address", "Name", "RSSI"}, rows); err != nil {
		return err
	}

	if err := writeHeader(w, "Cameras", f.config.Compact); err != nil {
		return err
	}
	rows = make([][]string, len(cameras))
	for i, c := range cameras {
		if !c.OK {
			rows[i] = []string{strconv.Itoa(c.Index), "unavailable", "", c.Err}
			continue
		}
		rows[i] = []string{
			strconv.Itoa(c.Index),
			"ok",
			fmt.Sprintf("%dx%d @ %s fps", c.Width, c.Height, formatFloat(c.FPS, 1)),
			"",
		}
	}
	return f.writeTable(w, []string{"Index", "Status", "Format", "Error"}, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths. Styled cells carry escape sequences, so
	// widths are measured on rendered text.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	// Write header.
	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	// Write separator.
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	// Write rows.
	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	// Add spacing.
	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row. Trailing padding is trimmed.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	sep := "  "
	if f.config.Compact {
		sep = " "
	}

	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(cell)
		if i < len(widths) {
			b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
	}

	_, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	return err
}
