// Package recorder wires configuration and device collaborators into a
// recording session.
//
// It builds one session.Spec per enabled channel, creates the shared
// buffers that feed the derived-metric detectors, and drives a session
// from start to archived manifest.
//
// Example usage:
//
//	dev := recorder.SimDevices(cfg)
//	rec := recorder.New(cfg, dev, log)
//	manifest, err := rec.Run(ctx, recorder.RunConfig{
//	    Subject: "S1",
//	    Stop:    trigger.Any(trigger.Signals(os.Interrupt), trigger.After(time.Minute)),
//	})
package recorder

import (
	"errors"
	"time"

	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/monitor"
	"github.com/0xmhha/biorecorder/pkg/session"
	"github.com/0xmhha/biorecorder/pkg/trigger"
)

// ErrNoDevice is returned when building a channel whose collaborator is missing.
var ErrNoDevice = errors.New("no device collaborator configured")

// ErrNoStopTrigger is returned by Run without a stop trigger.
var ErrNoStopTrigger = errors.New("no stop trigger")

// Devices bundles the collaborators a recording uses. A nil member
// makes the channels that need it fail at build time.
type Devices struct {
	BLE     device.BLEClient
	Boards  device.BoardDriver
	Cameras device.FrameSource
	Encoder device.VideoEncoder
	Pose    device.PoseEstimator
}

// RunConfig parameterizes one recording.
type RunConfig struct {
	// Subject is the subject label.
	Subject string

	// Stop ends the recording when it fires.
	Stop trigger.Trigger

	// Store, if set, receives the final manifest.
	Store *session.Store

	// OnUpdate, if set, receives live progress updates.
	OnUpdate func(monitor.Update)

	// OnStart, if set, is called once the session is running.
	OnStart func(session.Session)
}

// Outcome describes how a recording ended.
type Outcome struct {
	// Manifest is the final session manifest.
	Manifest *session.Manifest

	// Fired is the stop trigger event, if one fired.
	Fired *trigger.Fired

	// Elapsed is the wall time from start to stopped.
	Elapsed time.Duration
}
