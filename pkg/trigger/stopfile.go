package trigger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/biorecorder/pkg/logger"
)

// StopFileConfig configures a stop-file trigger.
type StopFileConfig struct {
	// Path is the file whose creation stops the session.
	Path string

	// CircuitBreakerThreshold is the number of watcher errors after which
	// the trigger gives up. Default: 5.
	CircuitBreakerThreshold int

	// Remove deletes the stop file after it fires so the next session
	// does not trip over it.
	Remove bool
}

type stopFileTrigger struct {
	cfg    StopFileConfig
	logger logger.Logger
}

// StopFile returns a trigger that fires when cfg.Path is created or
// touched. A file already present when Wait starts does not fire.
//
// The parent directory is watched rather than the file itself, so the
// file does not need to exist beforehand.
func StopFile(cfg StopFileConfig, log logger.Logger) Trigger {
	if cfg.CircuitBreakerThreshold == 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if log == nil {
		log = logger.Noop()
	}
	cfg.Path = expandHome(cfg.Path)
	return &stopFileTrigger{cfg: cfg, logger: log}
}

func (t *stopFileTrigger) Name() string { return "stop-file" }

func (t *stopFileTrigger) Wait(ctx context.Context) (Fired, error) {
	target, err := filepath.Abs(t.cfg.Path)
	if err != nil {
		return Fired{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	dir := filepath.Dir(target)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Fired{}, fmt.Errorf("%w: directory %s not accessible", ErrInvalidPath, dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return Fired{}, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer func() {
		if closeErr := fsw.Close(); closeErr != nil {
			t.logger.Error("failed to close fsnotify watcher", "error", closeErr)
		}
	}()

	if err := fsw.Add(dir); err != nil {
		return Fired{}, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if _, err := os.Stat(target); err == nil {
		t.logger.Warn("stop file already exists, waiting for it to be touched", "path", target)
	}
	t.logger.Debug("watching for stop file", "path", target)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return Fired{}, ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return Fired{}, fmt.Errorf("fsnotify events channel closed")
			}
			if !t.matches(target, event) {
				continue
			}
			t.logger.Info("stop file detected", "path", target, "op", event.Op.String())
			if t.cfg.Remove {
				if rmErr := os.Remove(target); rmErr != nil && !os.IsNotExist(rmErr) {
					t.logger.Warn("failed to remove stop file", "path", target, "error", rmErr)
				}
			}
			return fired(t.Name(), "stop file "+target), nil

		case werr, ok := <-fsw.Errors:
			if !ok {
				return Fired{}, fmt.Errorf("fsnotify errors channel closed")
			}
			failures++
			t.logger.Error("fsnotify error",
				"error", werr,
				"failure_count", failures)
			if failures >= t.cfg.CircuitBreakerThreshold {
				t.logger.Error("circuit breaker opened",
					"threshold", t.cfg.CircuitBreakerThreshold)
				return Fired{}, ErrCircuitBreakerOpen
			}
		}
	}
}

// matches reports whether event creates or touches the stop file.
func (t *stopFileTrigger) matches(target string, event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod)
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
