package sim

import (
	"context"
	"math"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/device"
)

// PoseEstimator fabricates face observations from the frame sequence
// number: the head sways slowly left and right, nods down periodically,
// and the eyes blink every BlinkEvery frames.
type PoseEstimator struct {
	// BlinkEvery is the blink period in frames; 0 disables blinking.
	BlinkEvery uint64

	// NoFaceEvery makes every n-th frame report no face; 0 disables.
	NoFaceEvery uint64
}

// NewPoseEstimator returns an estimator that blinks every 90 frames.
func NewPoseEstimator() *PoseEstimator {
	return &PoseEstimator{BlinkEvery: 90}
}

// Estimate implements device.PoseEstimator.Estimate.
func (p *PoseEstimator) Estimate(ctx context.Context, f *device.Frame) (device.FaceObservation, bool, error) {
	if err := ctx.Err(); err != nil {
		return device.FaceObservation{}, false, err
	}
	if p.NoFaceEvery > 0 && f.Seq%p.NoFaceEvery == 0 {
		return device.FaceObservation{}, false, nil
	}

	t := float64(f.Seq) / 30
	pose := biometrics.HeadPose{
		Yaw:   25 * math.Sin(2*math.Pi*t/20),
		Pitch: -10 + 8*math.Sin(2*math.Pi*t/45),
		Roll:  3 * math.Sin(2*math.Pi*t/7),
	}

	opening := 1.0
	if p.BlinkEvery > 0 && f.Seq%p.BlinkEvery < 4 {
		opening = 0.15
	}

	return device.FaceObservation{
		Pose:     pose,
		LeftEye:  eye(100, 100, opening),
		RightEye: eye(160, 100, opening),
	}, true, nil
}

// eye builds a six-landmark eye 30 px wide centred at (cx, cy) whose lid
// separation is scaled by opening.
func eye(cx, cy, opening float64) biometrics.Eye {
	h := 5 * opening
	return biometrics.Eye{
		{X: cx - 15, Y: cy},
		{X: cx - 5, Y: cy - h},
		{X: cx + 5, Y: cy - h},
		{X: cx + 15, Y: cy},
		{X: cx + 5, Y: cy + h},
		{X: cx - 5, Y: cy + h},
	}
}
