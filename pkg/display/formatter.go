package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/0xmhha/biorecorder/pkg/session"
)

// New creates a new formatter based on configuration.
//
// Parameters:
//   - cfg: Formatter configuration
//
// Returns a configured Formatter.
func New(cfg Config) Formatter {
	// Set defaults.
	if cfg.Format == "" {
		cfg.Format = FormatTable
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	switch cfg.Format {
	case FormatJSON:
		return &jsonFormatter{config: cfg}
	case FormatSimple:
		return &simpleFormatter{config: cfg}
	case FormatTable:
		fallthrough
	default:
		return &tableFormatter{config: cfg}
	}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatSimple:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or simple)", s)
}

// formatNumber formats a count with thousand separators.
func formatNumber(n uint64) string {
	return humanize.Comma(int64(n))
}

// formatFloat formats a float with specified precision.
func formatFloat(f float64, precision int) string {
	return humanize.FormatFloat("#,###."+strings.Repeat("#", precision), f)
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// formatTime formats t with a relative suffix.
func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", t.Format("2006-01-02 15:04:05"), humanize.RelTime(t, now, "ago", "from now"))
}

// sessionDuration is the recorded length of m, or the time since start
// while it is still running.
func sessionDuration(m *session.Manifest, now time.Time) time.Duration {
	if m.StartedAt.IsZero() {
		return 0
	}
	if m.StoppedAt.IsZero() {
		return now.Sub(m.StartedAt)
	}
	return m.StoppedAt.Sub(m.StartedAt)
}

// okCount returns "<ok>/<total>".
func okCount(m *session.Manifest) string {
	return fmt.Sprintf("%d/%d", m.Counts()[session.StatusOK], len(m.Channels))
}

var statusColors = map[session.Status]lipgloss.Color{
	session.StatusOK:            lipgloss.Color("10"),
	session.StatusRunning:       lipgloss.Color("10"),
	session.StatusConnecting:    lipgloss.Color("11"),
	session.StatusNotStarted:    lipgloss.Color("246"),
	session.StatusAbandoned:     lipgloss.Color("208"),
	session.StatusNoInput:       lipgloss.Color("208"),
	session.StatusConnectFailed: lipgloss.Color("9"),
	session.StatusFailed:        lipgloss.Color("9"),
}

// renderStatus colours s when colour output is enabled.
func renderStatus(s session.Status, color bool) string {
	c, ok := statusColors[s]
	if !color || !ok {
		return string(s)
	}
	return lipgloss.NewStyle().Foreground(c).Bold(s == session.StatusFailed).Render(string(s))
}

// writeHeader writes a section header.
func writeHeader(w io.Writer, title string, compact bool) error {
	if compact {
		_, err := fmt.Fprintf(w, "%s\n", title)
		return err
	}

	_, err := fmt.Fprintf(w, "\n%s\n%s\n\n", title, strings.Repeat("=", len(title)))
	return err
}
