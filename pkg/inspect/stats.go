package inspect

import (
	"sort"
	"strconv"
	"time"
)

// valueColumns lists, per kind, the columns summarized by Compute in
// order of preference.
var valueColumns = map[Kind][]string{
	KindHR:        {"heart_rate"},
	KindGSR:       {"microsiemens", "gsr_value"},
	KindEEG:       {"EEG_0"},
	KindStress:    {"RMSSD"},
	KindAttention: {"ear"},
}

// ValueColumn returns the primary numeric column of s, or "".
func ValueColumn(s *Stream) string {
	for _, name := range valueColumns[s.Kind] {
		if s.Column(name) >= 0 {
			return name
		}
	}
	return ""
}

// Compute summarizes a stream.
//
// Gaps and ordering violations are measured in file order, so a stream
// that went backwards reports it rather than hiding it behind a sort.
func Compute(s *Stream) Statistics {
	stats := Statistics{
		Kind:    s.Kind,
		Path:    s.Path,
		Count:   len(s.Rows),
		Skipped: s.Skipped,
	}
	if len(s.Rows) == 0 {
		return stats
	}

	stats.First = s.Rows[0].Time
	stats.Last = s.Rows[0].Time
	for i, row := range s.Rows {
		if row.Time.Before(stats.First) {
			stats.First = row.Time
		}
		if row.Time.After(stats.Last) {
			stats.Last = row.Time
		}
		if i == 0 {
			continue
		}
		gap := row.Time.Sub(s.Rows[i-1].Time)
		if gap < 0 {
			stats.OrderViolations++
			continue
		}
		if gap > stats.MaxGap {
			stats.MaxGap = gap
		}
	}

	stats.Span = stats.Last.Sub(stats.First)
	if stats.Span > 0 {
		stats.Rate = float64(stats.Count-1) / stats.Span.Seconds()
	}

	if col := ValueColumn(s); col != "" {
		stats.Value = computeValues(s, col)
	}
	return stats
}

// computeValues summarizes the numeric values of column col. Empty and
// non-numeric cells are ignored.
func computeValues(s *Stream, col string) *ValueStats {
	idx := s.Column(col)
	values := make([]float64, 0, len(s.Rows))
	for _, row := range s.Rows {
		v, err := strconv.ParseFloat(row.Fields[idx], 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}

	vs := &ValueStats{Column: col, Count: len(values)}
	if len(values) == 0 {
		return vs
	}

	sort.Float64s(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	vs.Min = values[0]
	vs.Max = values[len(values)-1]
	vs.Mean = sum / float64(len(values))
	vs.P50 = percentile(values, 50)
	vs.P95 = percentile(values, 95)
	vs.P99 = percentile(values, 99)
	return vs
}

// percentile calculates the nth percentile of a sorted slice.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between closest ranks.
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}

// Overlap returns the interval covered by every non-empty stream, and
// false if they share none.
func Overlap(stats []Statistics) (start, end time.Time, ok bool) {
	for _, st := range stats {
		if st.Count == 0 {
			continue
		}
		if start.IsZero() || st.First.After(start) {
			start = st.First
		}
		if end.IsZero() || st.Last.Before(end) {
			end = st.Last
		}
	}
	if start.IsZero() || end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
