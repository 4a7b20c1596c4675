package inspect

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/0xmhha/biorecorder/pkg/logger"
)

// fileNamePattern matches <prefix>_<subject>_<session>.<ext>. The longer
// attention_summary prefix is listed before attention so it wins.
var fileNamePattern = regexp.MustCompile(
	`^(eeg|hr|gsr|video|stress|attention_summary|attention)_(.+)_(\d{8}_\d{6}(?:-\d+)?)\.(csv|avi)$`)

// ParseFileName splits a session file name into kind, subject and session id.
//
// Returns false if the name does not follow the session naming scheme.
func ParseFileName(name string) (kind Kind, subject, sessionID string, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", false
	}
	kind = Kind(m[1])
	if (kind == KindVideo) != (m[4] == "avi") {
		return "", "", "", false
	}
	return kind, m[2], m[3], true
}

// Discover scans dir (non-recursively) for session files.
//
// Parameters:
//   - dir: Dataset directory; a leading ~ is expanded
//   - log: Logger for skipped entries
//
// Returns:
//   - Discovered files sorted by session id, then subject, then kind
//   - ErrDirNotFound if dir does not exist
//
// Files that don't match the naming scheme are skipped.
func Discover(dir string, log logger.Logger) ([]File, error) {
	if log == nil {
		log = logger.Noop()
	}
	expanded := expandHome(dir)

	entries, err := os.ReadDir(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDirNotFound, expanded)
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", expanded, err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		kind, subject, sessionID, ok := ParseFileName(entry.Name())
		if !ok {
			log.Debug("skipping non-session file", "file", entry.Name())
			continue
		}

		path := filepath.Join(expanded, entry.Name())
		info, err := entry.Info()
		if err != nil {
			log.Warn("failed to get file info", "path", path, "error", err)
			continue
		}

		files = append(files, File{
			Kind:      kind,
			Subject:   subject,
			SessionID: sessionID,
			Path:      path,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Kind < b.Kind
	})

	log.Debug("discovery complete", "path", expanded, "files", len(files))
	return files, nil
}

// Group collects files by subject and session id, preserving the order
// of Discover.
func Group(files []File) []SessionFiles {
	var sets []SessionFiles
	index := make(map[string]int)
	for _, f := range files {
		key := f.Subject + "\x00" + f.SessionID
		i, ok := index[key]
		if !ok {
			i = len(sets)
			index[key] = i
			sets = append(sets, SessionFiles{Subject: f.Subject, SessionID: f.SessionID})
		}
		sets[i].Files = append(sets[i].Files, f)
	}
	return sets
}

// FindSession returns the files of the session with the given id.
//
// Returns ErrNoSessionsFound if no file belongs to it.
func FindSession(files []File, sessionID string) (SessionFiles, error) {
	for _, set := range Group(files) {
		if set.SessionID == sessionID {
			return set, nil
		}
	}
	return SessionFiles{}, fmt.Errorf("%w: session %s", ErrNoSessionsFound, sessionID)
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
