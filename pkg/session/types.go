// Package session supervises recording sessions and archives their
// manifests.
//
// A Manager starts one worker per channel spec, each running the adapter
// lifecycle connect → run → close on its own goroutine. Channels that fail
// to connect are recorded and skipped; the rest keep recording. Stopping a
// session signals a single cancellation token and joins every worker with
// a bounded timeout, so shutdown always completes.
//
// Finished manifests are archived in a Store backed by BoltDB.
//
// Example usage:
//
//	mgr := session.NewManager(session.Config{OutputDir: "./data"}, log)
//	h, err := mgr.Start(ctx, "S1", specs)
//	if err != nil {
//	    return err
//	}
//	<-stop
//	_ = h.Stop(5 * time.Second)
//	m := h.Manifest()
package session

import (
	"time"

	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/logger"
	"github.com/0xmhha/biorecorder/pkg/timebase"
)

// Session identifies one recording run. It is immutable once created.
type Session struct {
	// SubjectID is the operator-supplied subject label.
	SubjectID string `json:"subject_id"`

	// SessionID is derived from the start time (YYYYMMDD_HHMMSS), with a
	// -N suffix when that id was already taken.
	SessionID string `json:"session_id"`

	// RunID is a random UUID used as the archive key.
	RunID string `json:"run_id"`

	// StartedAt is the session start instant.
	StartedAt time.Time `json:"started_at"`

	// OutputDir holds every file of the session.
	OutputDir string `json:"output_dir"`
}

// State is the session lifecycle state.
type State string

// Session states. Transitions only move forward:
// CREATED → RUNNING → STOPPING → STOPPED.
const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Status is the outcome of one channel.
type Status string

// Channel statuses. Connecting and running are live states; the others
// are final.
const (
	StatusNotStarted    Status = "not_started"
	StatusConnecting    Status = "connecting"
	StatusRunning       Status = "running"
	StatusOK            Status = "ok"
	StatusConnectFailed Status = "connect_failed"
	StatusFailed        Status = "failed"
	StatusAbandoned     Status = "abandoned"

	// StatusNoInput marks a derived channel that finished cleanly but whose
	// inputs never produced data, so its file holds only a header.
	StatusNoInput Status = "no_input"
)

// Final reports whether s is a terminal status.
func (s Status) Final() bool {
	switch s {
	case StatusOK, StatusConnectFailed, StatusFailed, StatusAbandoned, StatusNotStarted, StatusNoInput:
		return true
	}
	return false
}

// Entry is the manifest record of one channel.
type Entry struct {
	Modality        channel.Modality `json:"modality"`
	Paths           []string         `json:"paths"`
	Status          Status           `json:"status"`
	Error           string           `json:"error,omitempty"`
	Samples         uint64           `json:"samples"`
	TransientErrors uint64           `json:"transient_errors,omitempty"`
	StartedAt       time.Time        `json:"started_at,omitempty"`
	StoppedAt       time.Time        `json:"stopped_at,omitempty"`
}

// Manifest describes a session and the outcome of each of its channels.
type Manifest struct {
	Session
	State     State     `json:"state"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Channels  []Entry   `json:"channels"`
}

// Valid returns the files of channels that completed cleanly.
func (m *Manifest) Valid() []string {
	var paths []string
	for _, e := range m.Channels {
		if e.Status == StatusOK {
			paths = append(paths, e.Paths...)
		}
	}
	return paths
}

// Succeeded reports whether at least one channel completed cleanly.
func (m *Manifest) Succeeded() bool {
	for _, e := range m.Channels {
		if e.Status == StatusOK {
			return true
		}
	}
	return false
}

// Entry returns the record for modality m.
func (m *Manifest) Entry(mod channel.Modality) (Entry, bool) {
	for _, e := range m.Channels {
		if e.Modality == mod {
			return e, true
		}
	}
	return Entry{}, false
}

// Counts returns the number of channels in each status.
func (m *Manifest) Counts() map[Status]int {
	counts := make(map[Status]int, len(m.Channels))
	for _, e := range m.Channels {
		counts[e.Status]++
	}
	return counts
}

// File names one output of a channel: <prefix>_<subject>_<session>.<ext>.
type File struct {
	Prefix string
	Ext    string
}

// Target is what a channel spec's builder receives.
type Target struct {
	// Session is the session being recorded.
	Session Session

	// Paths are the output paths, one per File of the spec, in order.
	Paths []string

	// Clock is the shared session clock.
	Clock *timebase.Clock

	// Logger is scoped to the session and the channel's modality.
	Logger logger.Logger
}

// Spec describes one channel of a session.
type Spec struct {
	// Modality identifies the channel in the manifest.
	Modality channel.Modality

	// Files are the outputs the channel writes. The first is primary.
	Files []File

	// Build constructs the adapter for this session.
	Build func(t Target) (channel.Adapter, error)

	// Inputs are the channels this one derives its data from. When none of
	// them produced anything, a clean finish is reported as StatusNoInput.
	Inputs []channel.Modality
}

// Config contains session manager configuration.
type Config struct {
	// OutputDir receives all session files. Defaults to the working directory.
	OutputDir string

	// Stagger is the delay between channel launches (default: 1 second).
	// A negative value launches all channels at once.
	Stagger time.Duration

	// JoinTimeout bounds how long Stop waits for channels (default: 5 seconds).
	JoinTimeout time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// StoreConfig contains manifest archive configuration.
type StoreConfig struct {
	// DBPath is the BoltDB file path.
	DBPath string

	// Timeout is the database lock timeout (default: 1 second).
	Timeout time.Duration
}
