package inspect

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// MaxFileSize is the maximum stream file size accepted by ParseFile (512MB).
const MaxFileSize = 512 * 1024 * 1024

// ParseFile reads a session CSV stream.
//
// Parameters:
//   - path: Path to the CSV file
//   - kind: Kind of the file, as returned by Discover
//
// Returns:
//   - Parsed stream; malformed rows are counted in Skipped
//   - ErrNotAStream for video and summary files
//   - ErrFileTooLarge if the file exceeds MaxFileSize
func ParseFile(path string, kind Kind) (*Stream, error) {
	if !kind.IsStream() {
		return nil, fmt.Errorf("%w: %s", ErrNotAStream, kind)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: size=%d, max=%d", ErrFileTooLarge, info.Size(), MaxFileSize)
	}

	// #nosec G304: path comes from discovery or the command line
	f, err := os.Open(path) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Parse(f, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Parse reads a CSV stream from r. The first record is the header; the
// first column named "timestamp" (case-insensitive) carries row times.
func Parse(r io.Reader, kind Kind) (*Stream, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTimestampColumn
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	tcol := timeColumn(header)
	if tcol < 0 {
		return nil, ErrNoTimestampColumn
	}

	s := &Stream{
		Kind:       kind,
		Header:     without(header, tcol),
		TimeColumn: header[tcol],
		Rows:       make([]Row, 0, 256),
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.Skipped++
				continue
			}
			return s, fmt.Errorf("read error: %w", err)
		}
		line, _ := cr.FieldPos(0)

		row, err := parseRow(record, tcol, len(header), line)
		if err != nil {
			s.Skipped++
			continue
		}
		s.Rows = append(s.Rows, row)
	}

	return s, nil
}

// parseRow converts one record into a Row.
func parseRow(record []string, tcol, width, line int) (Row, error) {
	if len(record) != width {
		return Row{}, &ParseError{
			Line: line,
			Data: strings.Join(record, ","),
			Err:  fmt.Errorf("expected %d fields, got %d", width, len(record)),
		}
	}
	t, err := timebase.Parse(record[tcol])
	if err != nil {
		return Row{}, &ParseError{Line: line, Data: record[tcol], Err: err}
	}
	return Row{Time: t, Fields: without(record, tcol), Line: line}, nil
}

// Column returns the index of name in s.Header, or -1.
func (s *Stream) Column(name string) int {
	for i, h := range s.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func timeColumn(header []string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "timestamp") {
			return i
		}
	}
	return -1
}

func without(fields []string, i int) []string {
	out := make([]string, 0, len(fields)-1)
	out = append(out, fields[:i]...)
	return append(out, fields[i+1:]...)
}
