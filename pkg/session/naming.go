package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SessionIDLayout formats a start time into a session id.
const SessionIDLayout = "20060102_150405"

// ValidateSubject checks that a subject id is non-empty and safe to embed
// in a file name: letters, digits, '-', '_' and '.', not starting with '.'.
func ValidateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSubject)
	}
	if strings.HasPrefix(subject, ".") {
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidSubject, subject)
	}
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidSubject, subject, r)
		}
	}
	return nil
}

// FileName returns <prefix>_<subject>_<session>.<ext>.
func FileName(prefix, subject, sessionID, ext string) string {
	return prefix + "_" + subject + "_" + sessionID + "." + ext
}

// OutputPath returns the path of one session file.
func OutputPath(dir string, f File, subject, sessionID string) string {
	return filepath.Join(dir, FileName(f.Prefix, subject, sessionID, f.Ext))
}

// sessionID derives an id from t, appending -2, -3, ... while taken
// reports the candidate as already in use.
func sessionID(t time.Time, taken func(string) bool) string {
	base := t.Format(SessionIDLayout)
	id := base
	for n := 2; taken(id); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

// filesExist reports whether dir already holds any file of subject's
// session id.
func filesExist(dir, subject, id string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, "*_"+subject+"_"+id+".*"))
	return err == nil && len(matches) > 0
}
