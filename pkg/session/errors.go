package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/biorecorder/pkg/channel"
)

// Common errors returned by the session package.
var (
	// ErrSessionNotFound is returned when an archived session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAmbiguousSession is returned when a bare session id matches
	// sessions of more than one subject.
	ErrAmbiguousSession = errors.New("session id matches more than one subject")

	// ErrInvalidUUID is returned when a run id is not a valid UUID.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrInvalidSubject is returned when a subject id is empty or not path-safe.
	ErrInvalidSubject = errors.New("invalid subject id")

	// ErrInvalidState is returned for an operation not allowed in the
	// session's current state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrNoChannels is returned when starting a session without channels.
	ErrNoChannels = errors.New("session has no channels")

	// ErrInvalidManifest is returned when saving an incomplete manifest.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// JoinTimeoutError reports a channel that did not exit within the join
// timeout after stop was signaled. It is logged as a warning and recorded
// in the manifest; it never fails Stop.
type JoinTimeoutError struct {
	Modality channel.Modality
	Timeout  time.Duration
}

func (e *JoinTimeoutError) Error() string {
	return fmt.Sprintf("%s: did not stop within %s, abandoned", e.Modality, e.Timeout)
}

// StateError wraps ErrInvalidState with the attempted transition.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v: session is %s", e.Op, ErrInvalidState, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
