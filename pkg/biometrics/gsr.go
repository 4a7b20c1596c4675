package biometrics

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// PayloadFormat selects how a GSR characteristic payload encodes the ADC reading.
type PayloadFormat string

const (
	// PayloadLE is an unsigned little-endian integer spanning the payload.
	PayloadLE PayloadFormat = "le"

	// PayloadASCII is a decimal integer in text form.
	PayloadASCII PayloadFormat = "ascii"
)

// ParsePayloadFormat validates a format name from configuration.
func ParsePayloadFormat(s string) (PayloadFormat, error) {
	switch PayloadFormat(strings.ToLower(s)) {
	case PayloadLE:
		return PayloadLE, nil
	case PayloadASCII:
		return PayloadASCII, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPayloadFormat, s)
}

// DecodeADC extracts the raw ADC integer from a GSR payload.
func DecodeADC(payload []byte, format PayloadFormat) (int, error) {
	switch format {
	case PayloadLE:
		if len(payload) == 0 {
			return 0, fmt.Errorf("%w: empty gsr payload", ErrShortPayload)
		}
		if len(payload) > 8 {
			return 0, fmt.Errorf("%w: %d-byte integer", ErrInvalidPayload, len(payload))
		}
		var v uint64
		for i := len(payload) - 1; i >= 0; i-- {
			v = v<<8 | uint64(payload[i])
		}
		if v > uint64(^uint32(0)) {
			return 0, fmt.Errorf("%w: %d", ErrADCOutOfRange, v)
		}
		return int(v), nil

	case PayloadASCII:
		text := strings.TrimSpace(string(bytes.TrimRight(payload, "\x00")))
		if text == "" {
			return 0, fmt.Errorf("%w: empty gsr payload", ErrShortPayload)
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPayload, text)
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: %d", ErrADCOutOfRange, v)
		}
		return v, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownPayloadFormat, format)
}

// Conductance converts ADC readings from a voltage-divider GSR front end
// into skin conductance.
type Conductance struct {
	// Vcc is the divider supply voltage.
	Vcc float64

	// RFixed is the fixed divider resistor in ohms.
	RFixed float64

	// ADCMax is the full-scale ADC reading (4095 for 12 bits).
	ADCMax int
}

// DefaultConductance returns the 3.3 V / 10 kOhm / 12-bit front end.
func DefaultConductance() Conductance {
	return Conductance{Vcc: 3.3, RFixed: 10000, ADCMax: 4095}
}

// Check validates an ADC reading against the converter range.
func (c Conductance) Check(adc int) error {
	if adc < 0 || adc > c.ADCMax {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrADCOutOfRange, adc, c.ADCMax)
	}
	return nil
}

// Microsiemens returns conductance in µS for an ADC reading.
//
// The skin resistance is R_fixed * Vout/(Vcc-Vout). Both ends of the
// divider range are degenerate and yield 0: Vout == Vcc (open circuit) and
// Vout == 0 (no reading).
func (c Conductance) Microsiemens(adc int) float64 {
	if c.ADCMax <= 0 {
		return 0
	}
	vout := float64(adc) / float64(c.ADCMax) * c.Vcc
	if vout <= 0 || vout >= c.Vcc {
		return 0
	}
	rSkin := c.RFixed * (vout / (c.Vcc - vout))
	return 1e6 / rSkin
}

// ImpulseResult is the outcome of observing one conductance sample.
type ImpulseResult struct {
	Value   float64 // Observed sample
	Average float64 // Trailing moving average of the previous samples
	Delta   float64 // Value - Average
	Impulse bool    // MinDelta < Delta < MaxDelta
}

// ImpulseDetector flags skin-conductance responses whose deviation from
// the trailing moving average falls strictly inside (MinDelta, MaxDelta).
//
// The average covers the previous Window samples, excluding the one under
// test. With no history the average is the sample itself.
// Not safe for concurrent use.
type ImpulseDetector struct {
	minDelta float64
	maxDelta float64
	window   []float64
	next     int
	filled   int
}

// NewImpulseDetector creates a detector with a trailing window of size
// window (at least 1) and the exclusive band (minDelta, maxDelta).
func NewImpulseDetector(window int, minDelta, maxDelta float64) *ImpulseDetector {
	if window < 1 {
		window = 1
	}
	return &ImpulseDetector{
		minDelta: minDelta,
		maxDelta: maxDelta,
		window:   make([]float64, window),
	}
}

// Observe evaluates x against the current average, then adds it to the window.
func (d *ImpulseDetector) Observe(x float64) ImpulseResult {
	avg := x
	if d.filled > 0 {
		var sum float64
		for _, v := range d.window[:d.filled] {
			sum += v
		}
		avg = sum / float64(d.filled)
	}
	delta := x - avg

	d.window[d.next] = x
	d.next = (d.next + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}

	return ImpulseResult{
		Value:   x,
		Average: avg,
		Delta:   delta,
		Impulse: InBand(delta, d.minDelta, d.maxDelta),
	}
}

// InBand reports whether min < delta < max.
func InBand(delta, min, max float64) bool {
	return delta > min && delta < max
}
