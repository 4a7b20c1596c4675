// Package biometrics implements payload decoding and the derived metrics
// computed from biosignal samples: heart-rate variability (RMSSD) and
// stress, skin conductance and its impulse detector, and the head-pose /
// eye-aspect-ratio attention and fatigue policy.
//
// Everything here is pure and allocation-light; concurrency and I/O live
// in the channel and detector packages.
package biometrics

import (
	"encoding/binary"
	"fmt"
	"math"
)

// hrFlagUint16 marks a 16-bit heart-rate value in the Heart Rate
// Measurement characteristic flags byte.
const hrFlagUint16 = 0x01

// DecodeHeartRate extracts beats per minute from a Heart Rate Measurement
// notification payload.
//
// Byte 0 holds flags. If bit 0 is clear BPM is byte 1; otherwise BPM is a
// little-endian uint16 at bytes 1-2.
func DecodeHeartRate(payload []byte) (int, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("%w: heart rate needs 2 bytes, got %d", ErrShortPayload, len(payload))
	}

	if payload[0]&hrFlagUint16 == 0 {
		return int(payload[1]), nil
	}

	if len(payload) < 3 {
		return 0, fmt.Errorf("%w: 16-bit heart rate needs 3 bytes, got %d", ErrShortPayload, len(payload))
	}
	return int(binary.LittleEndian.Uint16(payload[1:3])), nil
}

// RRInterval converts a BPM reading to the RR interval in milliseconds.
// Returns false for non-positive BPM.
func RRInterval(bpm float64) (float64, bool) {
	if bpm <= 0 {
		return 0, false
	}
	return 60000 / bpm, true
}

// RMSSD computes the root mean square of successive RR-interval
// differences over a window of BPM samples.
//
// Non-positive BPM samples are skipped. Returns false when fewer than two
// valid samples remain.
func RMSSD(bpm []float64) (float64, bool) {
	var (
		prev  float64
		valid int
		sumSq float64
	)

	for _, b := range bpm {
		rr, ok := RRInterval(b)
		if !ok {
			continue
		}
		if valid > 0 {
			d := rr - prev
			sumSq += d * d
		}
		prev = rr
		valid++
	}

	if valid < 2 {
		return 0, false
	}
	return math.Sqrt(sumSq / float64(valid-1)), true
}

// StressPolicy classifies a window as stressful when heart-rate
// variability drops below a threshold.
type StressPolicy struct {
	// ThresholdMS is the RMSSD below which stress is flagged.
	ThresholdMS float64
}

// DefaultStressPolicy returns the 20 ms RMSSD threshold.
func DefaultStressPolicy() StressPolicy {
	return StressPolicy{ThresholdMS: 20}
}

// Stressed reports whether rmssd indicates stress.
func (p StressPolicy) Stressed(rmssd float64) bool {
	return rmssd < p.ThresholdMS
}
