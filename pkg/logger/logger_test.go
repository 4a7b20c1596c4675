package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		present []string
		absent  []string
	}{
		{
			name:    "debug shows everything",
			level:   "debug",
			present: []string{"dbg", "inf", "wrn", "err"},
		},
		{
			name:    "warn filters debug and info",
			level:   "warn",
			present: []string{"wrn", "err"},
			absent:  []string{"dbg", "inf"},
		},
		{
			name:    "unknown level falls back to info",
			level:   "loud",
			present: []string{"inf", "wrn", "err"},
			absent:  []string{"dbg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(&buf, Config{Level: tt.level, Format: "text"})

			log.Debug("dbg")
			log.Info("inf")
			log.Warn("wrn")
			log.Error("err")

			out := buf.String()
			for _, want := range tt.present {
				if !strings.Contains(out, "msg="+want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(out, "msg="+unwanted) {
					t.Errorf("output unexpectedly contains %q:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestWith_ModalityContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	ForChannel(base.With(KeySubject, "S1"), "gsr").Info("sample persisted", "adc", 2000)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}

	if entry["msg"] != "sample persisted" {
		t.Errorf("msg = %v, want %q", entry["msg"], "sample persisted")
	}
	if entry["modality"] != "gsr" {
		t.Errorf("modality = %v, want gsr", entry["modality"])
	}
	if entry["subject"] != "S1" {
		t.Errorf("subject = %v, want S1", entry["subject"])
	}
	if entry["adc"] != float64(2000) {
		t.Errorf("adc = %v, want 2000", entry["adc"])
	}
}

func TestNew_FileOutputCreatesDirectory(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "nested", "recorder.log")

	log := New(Config{Level: "info", Output: logFile, Format: "text"})
	log.Info("session started", "session_id", "20240101_120000")

	data, err := os.ReadFile(logFile) // nolint:gosec
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "session started") {
		t.Errorf("log file missing message:\n%s", data)
	}
	if !strings.Contains(string(data), "20240101_120000") {
		t.Errorf("log file missing field value:\n%s", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"DEBUG", "DEBUG"},
		{"WaRn", "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := parseLevel(tt.level).String(); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestOpenOutput_StandardStreams(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "", "STDOUT"} {
		w, err := openOutput(output)
		if err != nil {
			t.Errorf("openOutput(%q) error = %v", output, err)
		}
		if w == nil {
			t.Errorf("openOutput(%q) returned nil writer", output)
		}
	}
}

func TestForChannel_ScopesOnce(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, Config{Level: "info", Format: "text"})

	sess := ForSession(base, "20240101_120000", "S1")
	hr := ForChannel(ForChannel(ForSession(sess, "20240101_120000", "S1"), "hr"), "hr")
	hr.Info("connected")

	out := buf.String()
	if n := strings.Count(out, "modality=hr"); n != 1 {
		t.Errorf("modality attribute appears %d times:\n%s", n, out)
	}
	if n := strings.Count(out, "session_id=20240101_120000"); n != 1 {
		t.Errorf("session attribute appears %d times:\n%s", n, out)
	}
	if !strings.Contains(out, "subject=S1") {
		t.Errorf("output missing subject:\n%s", out)
	}

	buf.Reset()
	ForChannel(hr, "gsr").Info("other channel")
	if !strings.Contains(buf.String(), "modality=gsr") {
		t.Errorf("rescoping to another modality lost it:\n%s", buf.String())
	}
}

func TestNoop(t *testing.T) {
	log := Noop()
	log.Debug("debug")
	log.Info("info")
	log.With("k", "v").Warn("warn")
	log.Error("error")
}
