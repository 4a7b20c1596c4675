package biometrics

import "errors"

// Decode errors. All of them describe a single bad payload and are
// recoverable: the caller skips the sample and keeps acquiring.
var (
	// ErrShortPayload is returned when a payload is too short for its format.
	ErrShortPayload = errors.New("payload too short")

	// ErrInvalidPayload is returned when a payload cannot be parsed.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrADCOutOfRange is returned when an ADC reading exceeds the converter range.
	ErrADCOutOfRange = errors.New("adc value out of range")

	// ErrUnknownPayloadFormat is returned for an unrecognized GSR payload format.
	ErrUnknownPayloadFormat = errors.New("unknown payload format: must be le or ascii")
)
