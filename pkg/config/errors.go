package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoOutputDir is returned when no output directory is configured.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrNoModalities is returned when every acquisition channel is disabled.
	ErrNoModalities = errors.New("no acquisition modality enabled")

	// ErrNotAcquisitionModality is returned when enabling a derived or unknown modality.
	ErrNotAcquisitionModality = errors.New("not an acquisition modality")

	// ErrInvalidJoinTimeout is returned when the join timeout is <= 0.
	ErrInvalidJoinTimeout = errors.New("invalid join timeout: must be > 0")

	// ErrInvalidConnectTimeout is returned when the connect timeout is <= 0.
	ErrInvalidConnectTimeout = errors.New("invalid connect timeout: must be > 0")

	// ErrInvalidMaxErrors is returned when max consecutive errors is <= 0.
	ErrInvalidMaxErrors = errors.New("invalid max consecutive errors: must be > 0")

	// ErrUnknownDriver is returned when the device driver is not recognized.
	ErrUnknownDriver = errors.New("unknown device driver: must be sim")

	// ErrInvalidGSRInterval is returned when the GSR poll interval is out of range.
	ErrInvalidGSRInterval = errors.New("invalid GSR interval: must be within [100ms, 250ms]")

	// ErrInvalidPayloadFormat is returned when the GSR payload format is not recognized.
	ErrInvalidPayloadFormat = errors.New("invalid GSR payload format: must be le or ascii")

	// ErrInvalidConductance is returned when the GSR front end parameters are not positive.
	ErrInvalidConductance = errors.New("invalid GSR front end: vcc, r_fixed and adc_max must be > 0")

	// ErrInvalidImpulseBand is returned when the impulse window or band is invalid.
	ErrInvalidImpulseBand = errors.New("invalid impulse detector: window must be > 0 and min_delta < max_delta")

	// ErrInvalidEEGInterval is returned when the EEG poll interval is <= 0.
	ErrInvalidEEGInterval = errors.New("invalid EEG interval: must be > 0")

	// ErrInvalidVideoFormat is returned when camera indices or format are invalid.
	ErrInvalidVideoFormat = errors.New("invalid video settings: need camera indices and a positive resolution")

	// ErrInvalidStressWindow is returned when the stress window is <= 0.
	ErrInvalidStressWindow = errors.New("invalid stress window: must be > 0")

	// ErrInvalidBufferSize is returned when the stress buffer holds fewer than 2 samples.
	ErrInvalidBufferSize = errors.New("invalid stress buffer size: must be >= 2")

	// ErrInvalidAttentionInterval is returned when the attention interval is <= 0.
	ErrInvalidAttentionInterval = errors.New("invalid attention interval: must be > 0")

	// ErrInvalidRefreshInterval is returned when the monitor refresh interval is <= 0.
	ErrInvalidRefreshInterval = errors.New("invalid refresh interval: must be > 0")

	// ErrInvalidDisplayFormat is returned when display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be table, json, or simple")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")

	// ErrInvalidTOML is returned when config file has invalid TOML syntax.
	ErrInvalidTOML = errors.New("invalid TOML syntax in config file")
)
