// Package config provides configuration management for biorecorder.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file (YAML or TOML, chosen by extension)
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Output dir: %s\n", cfg.OutputDir)
package config

import (
	"fmt"
	"time"

	"github.com/0xmhha/biorecorder/pkg/biometrics"
	"github.com/0xmhha/biorecorder/pkg/channel"
)

// Config represents the complete application configuration.
//
// Invariants:
// - OutputDir must not be empty
// - At least one acquisition modality must be enabled
// - All intervals and timeouts must be > 0
// - GSR interval must lie in [100ms, 250ms].
type Config struct {
	// Directory receiving session files
	OutputDir string `yaml:"output_dir" toml:"output_dir"`

	// Default subject label for record
	Subject string `yaml:"subject" toml:"subject"`

	// Session orchestration settings
	Session SessionConfig `yaml:"session" toml:"session"`

	// Device driver selection
	Devices DevicesConfig `yaml:"devices" toml:"devices"`

	// Channel settings
	HeartRate HeartRateConfig `yaml:"heart_rate" toml:"heart_rate"`
	GSR       GSRConfig       `yaml:"gsr" toml:"gsr"`
	EEG       EEGConfig       `yaml:"eeg" toml:"eeg"`
	Video     VideoConfig     `yaml:"video" toml:"video"`

	// Derived metric settings
	Stress    StressConfig    `yaml:"stress" toml:"stress"`
	Attention AttentionConfig `yaml:"attention" toml:"attention"`

	// Live monitor settings
	Monitor MonitorConfig `yaml:"monitor" toml:"monitor"`

	// Display settings
	Display DisplayConfig `yaml:"display" toml:"display"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" toml:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// SessionConfig contains session orchestration settings.
type SessionConfig struct {
	// Delay between channel launches; negative disables staggering
	Stagger time.Duration `yaml:"stagger" toml:"stagger"`

	// How long stop waits for channels before abandoning them
	JoinTimeout time.Duration `yaml:"join_timeout" toml:"join_timeout"`

	// Bound on each channel's connect
	ConnectTimeout time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`

	// Consecutive transient errors after which a link is considered lost
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors" toml:"max_consecutive_errors"`
}

// DevicesConfig selects the collaborator implementations.
type DevicesConfig struct {
	// Driver name (sim)
	Driver string `yaml:"driver" toml:"driver"`

	// Seed for simulated signals
	Seed uint64 `yaml:"seed" toml:"seed"`
}

// HeartRateConfig configures the BLE heart-rate channel.
type HeartRateConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	Address        string `yaml:"address" toml:"address"`
	Characteristic string `yaml:"characteristic" toml:"characteristic"`
}

// GSRConfig configures the BLE GSR channel.
type GSRConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled"`
	Address        string        `yaml:"address" toml:"address"`
	Characteristic string        `yaml:"characteristic" toml:"characteristic"`
	Interval       time.Duration `yaml:"interval" toml:"interval"`

	// Payload encoding (le, ascii)
	PayloadFormat string `yaml:"payload_format" toml:"payload_format"`

	// Write epoch, datetime, ADC, µS and impulse columns
	Extended bool `yaml:"extended" toml:"extended"`

	// Voltage divider front end
	Vcc    float64 `yaml:"vcc" toml:"vcc"`
	RFixed float64 `yaml:"r_fixed" toml:"r_fixed"`
	ADCMax int     `yaml:"adc_max" toml:"adc_max"`

	Impulse ImpulseConfig `yaml:"impulse" toml:"impulse"`
}

// ImpulseConfig configures the moving-average impulse detector.
type ImpulseConfig struct {
	// Number of previous samples averaged
	Window int `yaml:"window" toml:"window"`

	// Exclusive band on the deviation from the average, in µS
	MinDelta float64 `yaml:"min_delta" toml:"min_delta"`
	MaxDelta float64 `yaml:"max_delta" toml:"max_delta"`
}

// EEGConfig configures the EEG board channel.
type EEGConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"enabled"`
	Board      string        `yaml:"board" toml:"board"`
	SerialPort string        `yaml:"serial_port" toml:"serial_port"`
	Interval   time.Duration `yaml:"interval" toml:"interval"`
}

// VideoConfig configures the camera channel.
type VideoConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Camera indices tried in order
	Indices []int `yaml:"indices" toml:"indices"`

	// Capture backends tried for each index, in order
	Backends []string `yaml:"backends" toml:"backends"`

	Width  int     `yaml:"width" toml:"width"`
	Height int     `yaml:"height" toml:"height"`
	FPS    float64 `yaml:"fps" toml:"fps"`
}

// StressConfig configures the RMSSD stress detector.
type StressConfig struct {
	Enabled          bool          `yaml:"enabled" toml:"enabled"`
	Window           time.Duration `yaml:"window" toml:"window"`
	BufferSize       int           `yaml:"buffer_size" toml:"buffer_size"`
	RMSSDThresholdMS float64       `yaml:"rmssd_threshold_ms" toml:"rmssd_threshold_ms"`
}

// AttentionConfig configures the attention and fatigue detector.
type AttentionConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	Interval     time.Duration `yaml:"interval" toml:"interval"`
	YawLimit     float64       `yaml:"yaw_limit" toml:"yaw_limit"`
	PitchLimit   float64       `yaml:"pitch_limit" toml:"pitch_limit"`
	EARThreshold float64       `yaml:"ear_threshold" toml:"ear_threshold"`
}

// MonitorConfig contains live monitor settings.
type MonitorConfig struct {
	// Interval between progress updates
	RefreshInterval time.Duration `yaml:"refresh_interval" toml:"refresh_interval"`
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Output format (table, json, simple)
	Format string `yaml:"format" toml:"format"`

	// Enable colored output
	ColorEnabled bool `yaml:"color_enabled" toml:"color_enabled"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Path to BoltDB manifest archive
	DBPath string `yaml:"db_path" toml:"db_path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" toml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output" toml:"output"`

	// Log format (text, json)
	Format string `yaml:"format" toml:"format"`
}

// Modalities returns the enabled channels in start order.
func (c *Config) Modalities() []channel.Modality {
	var mods []channel.Modality
	if c.EEG.Enabled {
		mods = append(mods, channel.EEG)
	}
	if c.HeartRate.Enabled {
		mods = append(mods, channel.HeartRate)
	}
	if c.GSR.Enabled {
		mods = append(mods, channel.GSR)
	}
	if c.Video.Enabled {
		mods = append(mods, channel.Video)
	}
	return mods
}

// SetModalities enables exactly the listed acquisition channels.
func (c *Config) SetModalities(mods []channel.Modality) error {
	c.EEG.Enabled, c.HeartRate.Enabled, c.GSR.Enabled, c.Video.Enabled = false, false, false, false
	for _, m := range mods {
		switch m {
		case channel.EEG:
			c.EEG.Enabled = true
		case channel.HeartRate:
			c.HeartRate.Enabled = true
		case channel.GSR:
			c.GSR.Enabled = true
		case channel.Video:
			c.Video.Enabled = true
		default:
			return fmt.Errorf("%w: %s", ErrNotAcquisitionModality, m)
		}
	}
	return nil
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns the sentinel error of the first violated invariant.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	if len(c.Modalities()) == 0 {
		return ErrNoModalities
	}

	// Validate session config
	if c.Session.JoinTimeout <= 0 {
		return ErrInvalidJoinTimeout
	}
	if c.Session.ConnectTimeout <= 0 {
		return ErrInvalidConnectTimeout
	}
	if c.Session.MaxConsecutiveErrors <= 0 {
		return ErrInvalidMaxErrors
	}

	if c.Devices.Driver != "sim" {
		return ErrUnknownDriver
	}

	// Validate channel config
	if c.GSR.Interval < channel.MinGSRInterval || c.GSR.Interval > channel.MaxGSRInterval {
		return ErrInvalidGSRInterval
	}
	if _, err := biometrics.ParsePayloadFormat(c.GSR.PayloadFormat); err != nil {
		return ErrInvalidPayloadFormat
	}
	if c.GSR.Vcc <= 0 || c.GSR.RFixed <= 0 || c.GSR.ADCMax <= 0 {
		return ErrInvalidConductance
	}
	if c.GSR.Impulse.Window <= 0 || c.GSR.Impulse.MinDelta >= c.GSR.Impulse.MaxDelta {
		return ErrInvalidImpulseBand
	}
	if c.EEG.Interval <= 0 {
		return ErrInvalidEEGInterval
	}
	if len(c.Video.Indices) == 0 || c.Video.Width <= 0 || c.Video.Height <= 0 || c.Video.FPS < 0 {
		return ErrInvalidVideoFormat
	}

	// Validate detector config
	if c.Stress.Window <= 0 {
		return ErrInvalidStressWindow
	}
	if c.Stress.BufferSize < 2 {
		return ErrInvalidBufferSize
	}
	if c.Attention.Interval <= 0 {
		return ErrInvalidAttentionInterval
	}

	if c.Monitor.RefreshInterval <= 0 {
		return ErrInvalidRefreshInterval
	}

	validFormats := map[string]bool{
		"table":  true,
		"json":   true,
		"simple": true,
	}
	if !validFormats[c.Display.Format] {
		return ErrInvalidDisplayFormat
	}

	// Validate logging config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with sensible default values.
//
// Timing and threshold defaults reproduce the reference acquisition
// setup: 1 s stagger, 5 s join, 250 ms GSR polling, 10 s stress window
// and a 20 ms RMSSD threshold.
func Default() *Config {
	attention := biometrics.DefaultAttentionPolicy()
	conductance := biometrics.DefaultConductance()

	return &Config{
		OutputDir: defaultOutputDir(),
		Session: SessionConfig{
			Stagger:              1 * time.Second,
			JoinTimeout:          5 * time.Second,
			ConnectTimeout:       15 * time.Second,
			MaxConsecutiveErrors: 10,
		},
		Devices: DevicesConfig{
			Driver: "sim",
			Seed:   1,
		},
		HeartRate: HeartRateConfig{
			Enabled: true,
			Address: "A0:9E:1A:00:00:01",
		},
		GSR: GSRConfig{
			Enabled:       true,
			Address:       "24:6F:28:00:00:02",
			Interval:      250 * time.Millisecond,
			PayloadFormat: string(biometrics.PayloadLE),
			Extended:      true,
			Vcc:           conductance.Vcc,
			RFixed:        conductance.RFixed,
			ADCMax:        conductance.ADCMax,
			Impulse: ImpulseConfig{
				Window:   10,
				MinDelta: 0.1,
				MaxDelta: 0.5,
			},
		},
		EEG: EEGConfig{
			Enabled:    true,
			Board:      "cyton",
			SerialPort: "/dev/ttyUSB0",
			Interval:   100 * time.Millisecond,
		},
		Video: VideoConfig{
			Enabled:  true,
			Indices:  []int{1, 2, 3},
			Backends: []string{"dshow", "msmf", "any"},
			Width:    1280,
			Height:   720,
			FPS:      30,
		},
		Stress: StressConfig{
			Enabled:          true,
			Window:           10 * time.Second,
			BufferSize:       100,
			RMSSDThresholdMS: biometrics.DefaultStressPolicy().ThresholdMS,
		},
		Attention: AttentionConfig{
			Enabled:      true,
			Interval:     200 * time.Millisecond,
			YawLimit:     attention.YawLimit,
			PitchLimit:   attention.PitchLimit,
			EARThreshold: attention.EARThreshold,
		},
		Monitor: MonitorConfig{
			RefreshInterval: 1 * time.Second,
		},
		Display: DisplayConfig{
			Format:       "table",
			ColorEnabled: true,
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
