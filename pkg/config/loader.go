package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig    = "BIORECORDER_CONFIG"
	EnvOutputDir = "BIORECORDER_OUTPUT_DIR"
	EnvDB        = "BIORECORDER_DB"
	EnvLogLevel  = "BIORECORDER_LOG_LEVEL"
	EnvSubject   = "BIORECORDER_SUBJECT"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile decodes a specific file over the default configuration.
	LoadFromFile(path string) (*Config, error)

	// Path returns the config file Load reads, or "" when none is found.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, BIORECORDER_CONFIG is consulted, then the
// locations returned by SearchPaths.
func NewLoader(configPath string) Loader {
	if configPath == "" {
		configPath = os.Getenv(EnvConfig)
	}
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	// Start with default configuration
	cfg := Default()

	// Load from file if it exists
	if configPath := l.Path(); configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// If file is specified but can't be loaded, return error
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, just use defaults
		} else {
			cfg = fileCfg
		}
	}

	// Apply environment variable overrides
	cfg = l.applyEnvVars(cfg)

	// Validate final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	return findConfigFile()
}

// LoadFromFile implements Loader.LoadFromFile.
//
// The file is decoded on top of Default(), so keys it omits keep their
// default values and explicit false or zero values are honoured.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTOML, err)
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func findConfigFile() string {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - BIORECORDER_OUTPUT_DIR: Session output directory
//   - BIORECORDER_DB: Path to database file
//   - BIORECORDER_LOG_LEVEL: Log level
//   - BIORECORDER_SUBJECT: Default subject label
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if dir := os.Getenv(EnvOutputDir); dir != "" {
		result.OutputDir = dir
	}

	if dbPath := os.Getenv(EnvDB); dbPath != "" {
		result.Storage.DBPath = dbPath
	}

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	if subject := os.Getenv(EnvSubject); subject != "" {
		result.Subject = subject
	}

	return &result
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to path, as TOML for a .toml extension
// and YAML otherwise.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := Marshal(cfg, path)
	if err != nil {
		return err
	}

	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal encodes cfg in the format implied by path's extension.
func Marshal(cfg *Config, path string) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		return buf.Bytes(), nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
