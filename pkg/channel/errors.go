package channel

import (
	"errors"
	"fmt"
)

// Common errors returned by the channel package.
var (
	// ErrLinkLost is returned by Run when the device connection drops or
	// stops producing data. It is terminal for the adapter.
	ErrLinkLost = errors.New("link lost")

	// ErrNotConnected is returned by Run when Connect has not succeeded.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned when using an adapter after Close.
	ErrClosed = errors.New("adapter closed")

	// ErrCharacteristicNotFound is returned when a peripheral does not
	// expose the required GATT characteristic.
	ErrCharacteristicNotFound = errors.New("characteristic not found")

	// ErrNoCamera is returned when no capture candidate could be opened.
	ErrNoCamera = errors.New("no camera candidate could be opened")
)

// ConnectError reports that a channel could not establish its device link.
// It is fatal to that channel only.
type ConnectError struct {
	Modality Modality
	Target   string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: connect %s: %v", e.Modality, e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransientReadError reports a single failed acquisition or decode. The
// loop logs it and continues.
type TransientReadError struct {
	Modality Modality
	Err      error
}

func (e *TransientReadError) Error() string {
	return fmt.Sprintf("%s: read: %v", e.Modality, e.Err)
}

func (e *TransientReadError) Unwrap() error {
	return e.Err
}

// UnknownModalityError is returned by ParseModality.
type UnknownModalityError struct {
	Name string
}

func (e *UnknownModalityError) Error() string {
	return fmt.Sprintf("unknown modality %q: must be eeg, hr, gsr, video, stress or attention", e.Name)
}

// IsTransient reports whether err is a recoverable per-iteration error.
func IsTransient(err error) bool {
	var t *TransientReadError
	return errors.As(err, &t)
}

func transient(m Modality, err error) error {
	return &TransientReadError{Modality: m, Err: err}
}
