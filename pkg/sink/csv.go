// Package sink provides the exclusively-owned output sinks that acquisition
// workers append sample records to.
//
// A CSV sink writes its header on creation, appends rows in call order, and
// flushes on every Flush and on Close. Close is idempotent, so a worker can
// defer it and also call it explicitly on an error path.
//
// Example usage:
//
//	s, err := sink.CreateCSV(path, []string{"timestamp", "heart_rate"})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	if err := s.Append([]string{ts, "72"}); err != nil {
//	    return err // *sink.PersistError
//	}
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CSV is an append-only CSV file sink.
//
// It is owned by a single worker. The mutex only makes Close safe to race
// with a late Append from the same worker's shutdown path.
type CSV struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *csv.Writer
	rows   int64
	closed bool
}

// CreateCSV creates path (and its parent directories) and writes header.
//
// Fails with a *PersistError if the file already exists, so a session never
// silently overwrites an earlier recording.
func CreateCSV(path string, header []string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, &PersistError{Path: path, Op: "create", Err: err}
	}

	// #nosec G304: path is built by the session manager
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640) // nolint:gosec
	if err != nil {
		return nil, &PersistError{Path: path, Op: "create", Err: err}
	}

	s := &CSV{
		path: path,
		file: f,
		w:    csv.NewWriter(f),
	}

	if err := s.w.Write(header); err != nil {
		_ = f.Close()
		return nil, &PersistError{Path: path, Op: "write", Err: err}
	}
	if err := s.flushLocked(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the output file path.
func (s *CSV) Path() string {
	return s.path
}

// Append buffers one record. Call Flush to push it to the file.
func (s *CSV) Append(record []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &PersistError{Path: s.path, Op: "write", Err: ErrClosed}
	}
	if err := s.w.Write(record); err != nil {
		return &PersistError{Path: s.path, Op: "write", Err: err}
	}
	s.rows++
	return nil
}

// Write appends every record then flushes.
func (s *CSV) Write(records ...[]string) error {
	for _, r := range records {
		if err := s.Append(r); err != nil {
			return err
		}
	}
	return s.Flush()
}

// Flush writes buffered records to the file.
func (s *CSV) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &PersistError{Path: s.path, Op: "flush", Err: ErrClosed}
	}
	return s.flushLocked()
}

func (s *CSV) flushLocked() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return &PersistError{Path: s.path, Op: "flush", Err: err}
	}
	return nil
}

// Rows returns the number of data rows appended (header excluded).
func (s *CSV) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close flushes, syncs and closes the file. Safe to call more than once;
// only the first call does any work.
func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.flushLocked()
	syncErr := s.file.Sync()
	closeErr := s.file.Close()

	switch {
	case flushErr != nil:
		return flushErr
	case syncErr != nil:
		return &PersistError{Path: s.path, Op: "sync", Err: syncErr}
	case closeErr != nil:
		return &PersistError{Path: s.path, Op: "close", Err: closeErr}
	}
	return nil
}

// String implements fmt.Stringer.
func (s *CSV) String() string {
	return fmt.Sprintf("csv(%s)", s.path)
}
