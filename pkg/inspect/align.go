package inspect

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// ErrInvalidTolerance is returned by Align for a negative tolerance.
var ErrInvalidTolerance = errors.New("tolerance must not be negative")

// Aligned is the result of a nearest-timestamp merge.
type Aligned struct {
	// Header is "timestamp" followed by <kind>.<column> for every column
	// of the reference stream and then of each other stream.
	Header []string

	// Rows holds one record per reference row, in reference order.
	Rows [][]string

	// Matched counts, per other stream, reference rows that found a
	// partner within tolerance.
	Matched map[Kind]int
}

// Align merges streams onto the timestamps of ref.
//
// Parameters:
//   - ref: Reference stream; one output row per reference row
//   - others: Streams joined onto the reference
//   - tolerance: Largest allowed distance to the nearest partner row
//
// Returns:
//   - The merged table; cells are empty where no partner lies within tolerance
//   - ErrEmptyStream if ref has no rows
//   - ErrInvalidTolerance if tolerance is negative
//
// When two partner rows are equally near, the earlier one is used.
func Align(ref *Stream, others []*Stream, tolerance time.Duration) (*Aligned, error) {
	if tolerance < 0 {
		return nil, ErrInvalidTolerance
	}
	if ref == nil || len(ref.Rows) == 0 {
		return nil, ErrEmptyStream
	}

	out := &Aligned{
		Header:  []string{"timestamp"},
		Rows:    make([][]string, 0, len(ref.Rows)),
		Matched: make(map[Kind]int, len(others)),
	}
	out.Header = append(out.Header, prefixed(ref)...)

	sorted := make([][]Row, len(others))
	for i, o := range others {
		out.Header = append(out.Header, prefixed(o)...)
		rows := append([]Row(nil), o.Rows...)
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].Time.Before(rows[b].Time) })
		sorted[i] = rows
		out.Matched[o.Kind] = 0
	}

	for _, r := range ref.Rows {
		record := make([]string, 0, len(out.Header))
		record = append(record, timebase.Epoch(r.Time))
		record = append(record, r.Fields...)

		for i, o := range others {
			if match, ok := nearest(sorted[i], r.Time, tolerance); ok {
				record = append(record, match.Fields...)
				out.Matched[o.Kind]++
				continue
			}
			record = append(record, make([]string, len(o.Header))...)
		}
		out.Rows = append(out.Rows, record)
	}

	return out, nil
}

// WriteCSV writes the header and rows to w.
func (a *Aligned) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(a.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(a.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// nearest returns the row of sorted closest to t, if within tolerance.
func nearest(sorted []Row, t time.Time, tolerance time.Duration) (Row, bool) {
	if len(sorted) == 0 {
		return Row{}, false
	}

	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Time.Before(t) })

	best := -1
	var bestDist time.Duration
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(sorted) {
			continue
		}
		d := absDuration(sorted[j].Time.Sub(t))
		if best < 0 || d < bestDist {
			best, bestDist = j, d
		}
	}
	if bestDist > tolerance {
		return Row{}, false
	}
	return sorted[best], true
}

func prefixed(s *Stream) []string {
	cols := make([]string, len(s.Header))
	for i, h := range s.Header {
		cols[i] = string(s.Kind) + "." + h
	}
	return cols
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
