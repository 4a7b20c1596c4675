package inspect

import (
	"errors"
	"fmt"
)

// Common errors returned by the inspect package.
var (
	// ErrDirNotFound is returned when the dataset directory does not exist.
	ErrDirNotFound = errors.New("dataset directory not found")

	// ErrNoSessionsFound is returned when no session files are discovered.
	ErrNoSessionsFound = errors.New("no session files found")

	// ErrFileTooLarge is returned when a file exceeds the maximum size limit.
	ErrFileTooLarge = errors.New("file size exceeds maximum limit")

	// ErrNoTimestampColumn is returned when a CSV header has no timestamp column.
	ErrNoTimestampColumn = errors.New("no timestamp column")

	// ErrNotAStream is returned when parsing a file that holds no timestamped rows.
	ErrNotAStream = errors.New("file is not a timestamped stream")

	// ErrEmptyStream is returned when aligning against a stream with no rows.
	ErrEmptyStream = errors.New("stream has no rows")
)

// ParseError provides context about a malformed row.
type ParseError struct {
	Line int    // Line number where error occurred (1-indexed)
	Data string // The offending value (truncated if too long)
	Err  error  // Underlying error
}

func (e *ParseError) Error() string {
	data := e.Data
	if len(data) > 100 {
		data = data[:100] + "..."
	}
	return fmt.Sprintf("parse error at line %d: %s: %v", e.Line, data, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
