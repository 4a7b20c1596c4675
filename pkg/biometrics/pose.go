package biometrics

import "math"

// Point is a 2-D landmark in image coordinates.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Eye holds the six eye-contour landmarks in the conventional order:
// P1 and P4 are the horizontal corners, P2/P3 the upper lid and P6/P5 the
// lower lid facing them.
type Eye [6]Point

// EAR returns the eye aspect ratio
//
//	(|P2-P6| + |P3-P5|) / (2 |P1-P4|)
//
// A degenerate eye (coincident corners) yields 0.
func EAR(e Eye) float64 {
	horizontal := e[0].Dist(e[3])
	if horizontal == 0 {
		return 0
	}
	return (e[1].Dist(e[5]) + e[2].Dist(e[4])) / (2 * horizontal)
}

// MeanEAR averages the aspect ratio of both eyes.
func MeanEAR(left, right Eye) float64 {
	return (EAR(left) + EAR(right)) / 2
}

// HeadPose is head orientation in degrees.
type HeadPose struct {
	Yaw   float64
	Pitch float64
	Roll  float64
}

// AttentionPolicy holds the head-pose and eye-closure thresholds.
type AttentionPolicy struct {
	// YawLimit is the absolute yaw below which the subject faces the screen.
	YawLimit float64

	// PitchLimit is the pitch below which the head is considered dropped.
	PitchLimit float64

	// EARThreshold is the eye aspect ratio below which eyes are considered closing.
	EARThreshold float64
}

// DefaultAttentionPolicy returns the 15° yaw, -15° pitch, 0.23 EAR policy.
func DefaultAttentionPolicy() AttentionPolicy {
	return AttentionPolicy{YawLimit: 15, PitchLimit: -15, EARThreshold: 0.23}
}

// Evaluate classifies one pose observation.
func (p AttentionPolicy) Evaluate(pose HeadPose, ear float64) (attention, fatigue bool) {
	attention = math.Abs(pose.Yaw) < p.YawLimit
	fatigue = pose.Pitch < p.PitchLimit || ear < p.EARThreshold
	return attention, fatigue
}
