package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xmhha/biorecorder/pkg/channel"
)

// isolate points HOME at a temp dir and clears the environment overrides
// so tests never read a developer's real config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{EnvConfig, EnvOutputDir, EnvDB, EnvLogLevel, EnvSubject} {
		t.Setenv(env, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}

	if cfg.Session.Stagger != time.Second || cfg.Session.JoinTimeout != 5*time.Second {
		t.Errorf("Session = %+v, want 1s stagger and 5s join", cfg.Session)
	}
	if cfg.GSR.Interval != 250*time.Millisecond {
		t.Errorf("GSR.Interval = %v, want 250ms", cfg.GSR.Interval)
	}
	if cfg.Stress.RMSSDThresholdMS != 20 || cfg.Stress.BufferSize != 100 {
		t.Errorf("Stress = %+v", cfg.Stress)
	}
	if cfg.Attention.YawLimit != 15 || cfg.Attention.PitchLimit != -15 || cfg.Attention.EARThreshold != 0.23 {
		t.Errorf("Attention = %+v", cfg.Attention)
	}

	want := []channel.Modality{channel.EEG, channel.HeartRate, channel.GSR, channel.Video}
	got := cfg.Modalities()
	if len(got) != len(want) {
		t.Fatalf("Modalities() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Modalities()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid default config", func(*Config) {}, nil},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, ErrNoOutputDir},
		{"no modalities", func(c *Config) {
			c.EEG.Enabled, c.HeartRate.Enabled, c.GSR.Enabled, c.Video.Enabled = false, false, false, false
		}, ErrNoModalities},
		{"negative stagger allowed", func(c *Config) { c.Session.Stagger = -1 }, nil},
		{"zero join timeout", func(c *Config) { c.Session.JoinTimeout = 0 }, ErrInvalidJoinTimeout},
		{"zero connect timeout", func(c *Config) { c.Session.ConnectTimeout = 0 }, ErrInvalidConnectTimeout},
		{"zero max errors", func(c *Config) { c.Session.MaxConsecutiveErrors = 0 }, ErrInvalidMaxErrors},
		{"unknown driver", func(c *Config) { c.Devices.Driver = "bluez" }, ErrUnknownDriver},
		{"gsr interval too short", func(c *Config) { c.GSR.Interval = 50 * time.Millisecond }, ErrInvalidGSRInterval},
		{"gsr interval too long", func(c *Config) { c.GSR.Interval = time.Second }, ErrInvalidGSRInterval},
		{"gsr payload format", func(c *Config) { c.GSR.PayloadFormat = "be" }, ErrInvalidPayloadFormat},
		{"gsr conductance", func(c *Config) { c.GSR.Vcc = 0 }, ErrInvalidConductance},
		{"impulse band inverted", func(c *Config) { c.GSR.Impulse.MinDelta = 0.5 }, ErrInvalidImpulseBand},
		{"eeg interval", func(c *Config) { c.EEG.Interval = 0 }, ErrInvalidEEGInterval},
		{"no camera indices", func(c *Config) { c.Video.Indices = nil }, ErrInvalidVideoFormat},
		{"stress window", func(c *Config) { c.Stress.Window = 0 }, ErrInvalidStressWindow},
		{"stress buffer", func(c *Config) { c.Stress.BufferSize = 1 }, ErrInvalidBufferSize},
		{"attention interval", func(c *Config) { c.Attention.Interval = 0 }, ErrInvalidAttentionInterval},
		{"refresh interval", func(c *Config) { c.Monitor.RefreshInterval = 0 }, ErrInvalidRefreshInterval},
		{"display format", func(c *Config) { c.Display.Format = "live" }, ErrInvalidDisplayFormat},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, ErrInvalidLogLevel},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetModalities(t *testing.T) {
	cfg := Default()

	if err := cfg.SetModalities([]channel.Modality{channel.GSR, channel.HeartRate}); err != nil {
		t.Fatalf("SetModalities() error = %v", err)
	}
	got := cfg.Modalities()
	if len(got) != 2 || got[0] != channel.HeartRate || got[1] != channel.GSR {
		t.Errorf("Modalities() = %v, want [hr gsr]", got)
	}

	if err := cfg.SetModalities([]channel.Modality{channel.Stress}); !errors.Is(err, ErrNotAcquisitionModality) {
		t.Errorf("SetModalities(stress) error = %v, want ErrNotAcquisitionModality", err)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
output_dir: /recordings
subject: P01
session:
  stagger: 500ms
gsr:
  interval: 100ms
  payload_format: ascii
  impulse:
    window: 5
video:
  enabled: false
  indices: [0]
logging:
  level: debug
`)

	cfg, err := NewLoader(path).LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.OutputDir != "/recordings" || cfg.Subject != "P01" {
		t.Errorf("OutputDir/Subject = %q/%q", cfg.OutputDir, cfg.Subject)
	}
	if cfg.Session.Stagger != 500*time.Millisecond {
		t.Errorf("Stagger = %v, want 500ms", cfg.Session.Stagger)
	}
	if cfg.Session.JoinTimeout != 5*time.Second {
		t.Errorf("JoinTimeout = %v, want default 5s", cfg.Session.JoinTimeout)
	}
	if cfg.GSR.Interval != 100*time.Millisecond || cfg.GSR.PayloadFormat != "ascii" {
		t.Errorf("GSR = %+v", cfg.GSR)
	}
	if cfg.GSR.Impulse.Window != 5 || cfg.GSR.Impulse.MaxDelta != 0.5 {
		t.Errorf("Impulse = %+v, want window 5 and default max", cfg.GSR.Impulse)
	}
	if cfg.Video.Enabled {
		t.Error("explicit enabled: false was not honoured")
	}
	if len(cfg.Video.Indices) != 1 || cfg.Video.Indices[0] != 0 {
		t.Errorf("Video.Indices = %v, want [0]", cfg.Video.Indices)
	}
	if !cfg.EEG.Enabled {
		t.Error("omitted section lost its default")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadFromFile_TOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
output_dir = "/recordings"

[stress]
window = "5s"
rmssd_threshold_ms = 25.0

[eeg]
enabled = false
board = "ganglion"
`)

	cfg, err := NewLoader(path).LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.OutputDir != "/recordings" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.Stress.Window != 5*time.Second || cfg.Stress.RMSSDThresholdMS != 25 {
		t.Errorf("Stress = %+v", cfg.Stress)
	}
	if cfg.EEG.Enabled || cfg.EEG.Board != "ganglion" {
		t.Errorf("EEG = %+v", cfg.EEG)
	}
	if cfg.Stress.BufferSize != 100 {
		t.Errorf("BufferSize = %d, want default 100", cfg.Stress.BufferSize)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	_, err := NewLoader("").LoadFromFile(filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("missing file error = %v, want ErrConfigNotFound", err)
	}

	badYAML := filepath.Join(dir, "bad.yaml")
	writeFile(t, badYAML, "session: [unclosed")
	if _, err := NewLoader("").LoadFromFile(badYAML); !errors.Is(err, ErrInvalidYAML) {
		t.Errorf("bad YAML error = %v, want ErrInvalidYAML", err)
	}

	badTOML := filepath.Join(dir, "bad.toml")
	writeFile(t, badTOML, "output_dir = ")
	if _, err := NewLoader("").LoadFromFile(badTOML); !errors.Is(err, ErrInvalidTOML) {
		t.Errorf("bad TOML error = %v, want ErrInvalidTOML", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "output_dir: /from-file\nsubject: file-subject\nlogging:\n  level: warn\n")

	t.Setenv(EnvOutputDir, "/from-env")
	t.Setenv(EnvLogLevel, "DEBUG")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.OutputDir != "/from-env" {
		t.Errorf("OutputDir = %q, want env to beat file", cfg.OutputDir)
	}
	if cfg.Subject != "file-subject" {
		t.Errorf("Subject = %q, want file to beat default", cfg.Subject)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want lowercased env value", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want default", cfg.Logging.Format)
	}
}

func TestLoad_ExplicitPathErrors(t *testing.T) {
	isolate(t)

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "logging:\n  level: loud\n")
	if _, err := LoadFromFile(path); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("Load() error = %v, want ErrInvalidLogLevel", err)
	}
}

func TestLoad_EnvConfigPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, path, "subject: from-env-path\n")
	t.Setenv(EnvConfig, path)

	l := NewLoader("")
	if l.Path() != path {
		t.Errorf("Path() = %q, want %q", l.Path(), path)
	}
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Subject != "from-env-path" {
		t.Errorf("Subject = %q", cfg.Subject)
	}
}

func TestLoad_SearchesHomeConfig(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "biorecorder")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "config.toml"), "subject = \"toml-home\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Subject != "toml-home" {
		t.Errorf("Subject = %q, want value from ~/.config/biorecorder/config.toml", cfg.Subject)
	}
	if cfg.Storage.DBPath != filepath.Join(dir, "sessions.db") {
		t.Errorf("DBPath = %q", cfg.Storage.DBPath)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	isolate(t)

	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := Default()
			cfg.Subject = "P07"
			cfg.Session.Stagger = 750 * time.Millisecond
			cfg.Video.Enabled = false
			cfg.Video.Backends = []string{"v4l2"}

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("permissions = %o, want 600", perm)
			}

			loaded, err := NewLoader(path).LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile() error = %v", err)
			}
			if loaded.Subject != "P07" || loaded.Session.Stagger != 750*time.Millisecond {
				t.Errorf("loaded = %+v", loaded)
			}
			if loaded.Video.Enabled || len(loaded.Video.Backends) != 1 || loaded.Video.Backends[0] != "v4l2" {
				t.Errorf("Video = %+v", loaded.Video)
			}
		})
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = ""

	err := Save(cfg, filepath.Join(t.TempDir(), "config.yaml"))
	if !errors.Is(err, ErrNoOutputDir) {
		t.Errorf("Save() error = %v, want ErrNoOutputDir", err)
	}
}
