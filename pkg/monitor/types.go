// Package monitor reports live progress of a running recording session.
//
// A monitor polls a Source (normally a *session.Handle) on a refresh
// ticker and publishes an Update per tick carrying each channel's status,
// sample count and acquisition rate since the previous tick.
//
// Example usage:
//
//	mon := monitor.New(monitor.Config{RefreshInterval: time.Second}, handle, log)
//	if err := mon.Start(ctx); err != nil {
//	    return err
//	}
//	defer mon.Close()
//	for u := range mon.Updates() {
//	    fmt.Println(u.Elapsed, u.Delta.NewSamples)
//	}
package monitor

import (
	"context"
	"time"

	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/session"
)

// Config holds the configuration for the live monitor.
type Config struct {
	// RefreshInterval is the interval between updates (default: 1 second).
	RefreshInterval time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultRefreshInterval is used when Config.RefreshInterval is zero.
const DefaultRefreshInterval = time.Second

// Source yields manifest snapshots of a session.
type Source interface {
	Manifest() *session.Manifest
}

// LiveMonitor provides periodic session progress updates.
type LiveMonitor interface {
	// Start begins polling in the background.
	Start(ctx context.Context) error

	// Stop stops polling. Updates() stays open until Close.
	Stop() error

	// Close stops the monitor and closes the updates channel.
	Close() error

	// Updates returns the channel updates are delivered on.
	Updates() <-chan Update

	// Latest returns the most recent update.
	Latest() Update
}

// Update represents a live monitoring update event.
type Update struct {
	// Timestamp of the update
	Timestamp time.Time

	// SessionID being monitored
	SessionID string

	// State of the session at the time of the update
	State session.State

	// Elapsed is the time since the session started
	Elapsed time.Duration

	// Channels holds one entry per channel, in manifest order
	Channels []ChannelUpdate

	// Delta contains the change since the last update
	Delta DeltaStats

	// Cumulative contains the totals since the session started
	Cumulative DeltaStats
}

// ChannelUpdate is the progress of one channel.
type ChannelUpdate struct {
	Modality        channel.Modality
	Status          session.Status
	Samples         uint64
	TransientErrors uint64

	// NewSamples is the number of samples recorded since the last update.
	NewSamples uint64

	// Rate is NewSamples per second of wall time since the last update.
	Rate float64
}

// DeltaStats aggregates sample and error counts across channels.
type DeltaStats struct {
	Samples         uint64
	TransientErrors uint64
}

// Active reports whether any channel is still connecting or running.
func (u Update) Active() bool {
	for _, c := range u.Channels {
		if !c.Status.Final() {
			return true
		}
	}
	return false
}
