package recorder

import (
	"context"
	"time"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/config"
	"github.com/0xmhha/biorecorder/pkg/device"
	"github.com/0xmhha/biorecorder/pkg/device/mjpeg"
	"github.com/0xmhha/biorecorder/pkg/device/sim"
)

// heartRateNotifyInterval is how often the simulated monitor notifies.
const heartRateNotifyInterval = time.Second

// SimDevices returns simulated collaborators matching cfg: a heart-rate
// monitor and a GSR sensor at the configured addresses, an EEG board,
// cameras at the configured indices and an MJPEG encoder.
func SimDevices(cfg *config.Config) Devices {
	seed := cfg.Devices.Seed
	ascii := cfg.GSR.PayloadFormat == string(biometrics.PayloadASCII)

	ble := sim.NewBLE(
		sim.NewHeartRateMonitor(cfg.HeartRate.Address, heartRateNotifyInterval, seed),
		sim.NewGSRSensor(cfg.GSR.Address, ascii, seed+1),
	)

	cameras := sim.NewFrameSource()
	cameras.Indices = append([]int(nil), cfg.Video.Indices...)
	if len(cameras.Indices) > 0 {
		// Only the first configured index has a camera attached.
		cameras.Indices = cameras.Indices[:1]
	}
	cameras.FPS = cfg.Video.FPS

	return Devices{
		BLE:     ble,
		Boards:  sim.NewBoardDriver(),
		Cameras: cameras,
		Encoder: mjpeg.NewEncoder(0),
		Pose:    sim.NewPoseEstimator(),
	}
}

// Inventory is what a device scan found.
type Inventory struct {
	Peripherals []device.Advertisement
	Cameras     []device.CameraInfo
}

// Scan lists advertising BLE peripherals for up to timeout and probes the
// configured camera indices. A failed BLE scan is returned alongside
// whatever the camera probe found.
func (r *Recorder) Scan(ctx context.Context, timeout time.Duration) (Inventory, error) {
	var inv Inventory
	var scanErr error

	if r.dev.BLE != nil {
		scanCtx, cancel := context.WithTimeout(ctx, timeout)
		inv.Peripherals, scanErr = r.dev.BLE.Scan(scanCtx)
		cancel()
		if scanErr != nil {
			r.log.Warn("ble scan failed", "error", scanErr)
		}
	}
	if r.dev.Cameras != nil {
		inv.Cameras = r.dev.Cameras.Probe(ctx, r.cfg.Video.Indices)
	}

	r.log.Debug("device scan complete",
		"peripherals", len(inv.Peripherals),
		"cameras", len(inv.Cameras),
	)
	return inv, scanErr
}
