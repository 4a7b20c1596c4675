package monitor

import "errors"

// Lifecycle errors returned by LiveMonitor.Start, Stop and Close.
var (
	ErrMonitorClosed     = errors.New("live monitor already closed")
	ErrMonitorRunning    = errors.New("live monitor already polling")
	ErrMonitorNotRunning = errors.New("live monitor not polling")

	// ErrNoSource means the monitor was built without a session handle to poll.
	ErrNoSource = errors.New("live monitor has no session handle")
)
