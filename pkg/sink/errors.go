package sink

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when writing to a sink that was already closed.
var ErrClosed = errors.New("sink closed")

// PersistError reports a failure to durably write sample data.
//
// A PersistError means the output file can no longer be trusted; adapters
// treat it as fatal.
type PersistError struct {
	Path string // Output file path
	Op   string // Operation that failed (create, write, flush, close)
	Err  error  // Underlying error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
