package config

import (
	"os"
	"path/filepath"
)

// defaultOutputDir returns the default directory for session files.
func defaultOutputDir() string {
	return "data"
}

// configDir returns ~/.config/biorecorder.
func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(homeDir, ".config", "biorecorder")
}

// defaultDBPath returns the default database file path.
//
// Returns: ~/.config/biorecorder/sessions.db.
func defaultDBPath() string {
	return filepath.Join(configDir(), "sessions.db")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/biorecorder/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// SearchPaths returns the config file locations in search order.
func SearchPaths() []string {
	return []string{
		"biorecorder.yaml",
		DefaultConfigPath(),
		filepath.Join(configDir(), "config.toml"),
	}
}
