// Package inspect provides post-hoc tooling over recorded session files.
//
// It discovers the files a session wrote, parses the timestamped CSV
// streams, computes per-stream statistics (sample count, span, effective
// rate, largest gap, ordering violations and value percentiles) and
// merges streams on nearest timestamps.
//
// Example usage:
//
//	files, err := inspect.Discover("./data", log)
//	if err != nil {
//	    return err
//	}
//	for _, set := range inspect.Group(files) {
//	    for _, f := range set.Streams() {
//	        s, err := inspect.ParseFile(f.Path, f.Kind)
//	        if err != nil {
//	            continue
//	        }
//	        st := inspect.Compute(s)
//	        fmt.Printf("%s: %d rows, %.1f Hz\n", f.Kind, st.Count, st.Rate)
//	    }
//	}
package inspect

import (
	"time"
)

// Kind is the type of a session file, taken from its filename prefix.
type Kind string

// File kinds written by a session.
const (
	KindEEG              Kind = "eeg"
	KindHR               Kind = "hr"
	KindGSR              Kind = "gsr"
	KindVideo            Kind = "video"
	KindStress           Kind = "stress"
	KindAttention        Kind = "attention"
	KindAttentionSummary Kind = "attention_summary"
)

// IsStream reports whether files of this kind hold timestamped rows.
func (k Kind) IsStream() bool {
	switch k {
	case KindVideo, KindAttentionSummary:
		return false
	}
	return true
}

// File represents a discovered session file.
type File struct {
	// Kind is derived from the filename prefix.
	Kind Kind

	// Subject is the subject label.
	Subject string

	// SessionID is the session identifier (YYYYMMDD_HHMMSS[-N]).
	SessionID string

	// Path is the path to the file.
	Path string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the last modification time.
	ModTime time.Time
}

// SessionFiles is the set of files one session produced.
type SessionFiles struct {
	Subject   string
	SessionID string
	Files     []File
}

// Streams returns the files holding timestamped rows.
func (s SessionFiles) Streams() []File {
	var out []File
	for _, f := range s.Files {
		if f.Kind.IsStream() {
			out = append(out, f)
		}
	}
	return out
}

// File returns the file of kind k, if present.
func (s SessionFiles) File(k Kind) (File, bool) {
	for _, f := range s.Files {
		if f.Kind == k {
			return f, true
		}
	}
	return File{}, false
}

// Row is one parsed data row.
type Row struct {
	// Time is the row timestamp.
	Time time.Time

	// Fields holds the raw values, excluding the timestamp column.
	Fields []string

	// Line is the 1-indexed line number in the file.
	Line int
}

// Stream is a parsed CSV stream.
type Stream struct {
	Kind Kind
	Path string

	// Header holds the column names, excluding the timestamp column.
	Header []string

	// TimeColumn is the header name of the timestamp column.
	TimeColumn string

	// Rows are in file order.
	Rows []Row

	// Skipped counts rows that could not be parsed.
	Skipped int
}

// Statistics summarizes one stream.
type Statistics struct {
	Kind Kind
	Path string

	// Count is the number of parsed rows.
	Count int

	// Skipped is the number of malformed rows.
	Skipped int

	// First and Last are the earliest and latest timestamps.
	First time.Time
	Last  time.Time

	// Span is Last - First.
	Span time.Duration

	// Rate is the effective sampling rate in Hz.
	Rate float64

	// MaxGap is the largest interval between consecutive rows.
	MaxGap time.Duration

	// OrderViolations counts rows whose timestamp precedes the previous row's.
	OrderViolations int

	// Value summarizes the primary value column, if any.
	Value *ValueStats
}

// ValueStats contains summary statistics of one numeric column.
type ValueStats struct {
	// Column is the header name.
	Column string

	Count int
	Min   float64
	Max   float64
	Mean  float64

	// P50 is the 50th percentile (median).
	P50 float64

	// P95 is the 95th percentile.
	P95 float64

	// P99 is the 99th percentile.
	P99 float64
}
