package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/biorecorder/pkg/logger"
)

// Bucket names.
var (
	bucketManifests  = []byte("manifests")   // RunID -> Manifest
	bucketSessionRefs = []byte("session_refs") // subject/SessionID -> RunID (index)
)

// Store archives session manifests in BoltDB.
type Store struct {
	db     *bolt.DB
	logger logger.Logger
	config StoreConfig
}

// OpenStore opens (creating if needed) the manifest archive.
//
// Parameters:
//   - cfg: Store configuration
//   - log: Logger instance
//
// Returns:
//   - Opened Store
//   - Error if database cannot be opened
func OpenStore(cfg StoreConfig, log logger.Logger) (*Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if log == nil {
		log = logger.Noop()
	}

	dbPath := expandHome(cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, createErr := tx.CreateBucketIfNotExists(bucketManifests); createErr != nil {
			return fmt.Errorf("failed to create manifests bucket: %w", createErr)
		}
		if _, createErr := tx.CreateBucketIfNotExists(bucketSessionRefs); createErr != nil {
			return fmt.Errorf("failed to create session index bucket: %w", createErr)
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, err
	}

	log.Debug("manifest store opened", "db_path", dbPath)

	cfg.DBPath = dbPath
	return &Store{
		db:     db,
		logger: log,
		config: cfg,
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.config.DBPath
}

// Save stores a manifest, replacing any previous version with the same
// run id.
func (s *Store) Save(m *Manifest) error {
	if m == nil || m.SessionID == "" {
		return ErrInvalidManifest
	}
	if !isValidUUID(m.RunID) {
		return ErrInvalidUUID
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		manifests := tx.Bucket(bucketManifests)
		index := tx.Bucket(bucketSessionRefs)

		ref := SessionRef(m.SubjectID, m.SessionID)
		if owner := index.Get([]byte(ref)); owner != nil && string(owner) != m.RunID {
			return fmt.Errorf("session %s already archived as run %s", ref, owner)
		}

		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal manifest: %w", err)
		}

		if err := manifests.Put([]byte(m.RunID), data); err != nil {
			return fmt.Errorf("failed to store manifest: %w", err)
		}
		if err := index.Put([]byte(ref), []byte(m.RunID)); err != nil {
			return fmt.Errorf("failed to store session index: %w", err)
		}

		s.logger.Info("session archived",
			"run_id", m.RunID,
			"session_id", m.SessionID,
			"subject", m.SubjectID)

		return nil
	})
}

// Get retrieves a manifest by run id.
func (s *Store) Get(runID string) (*Manifest, error) {
	if !isValidUUID(runID) {
		return nil, ErrInvalidUUID
	}

	var manifest *Manifest

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketManifests).Get([]byte(runID))
		if data == nil {
			return ErrSessionNotFound
		}

		var m Manifest
		if unmarshalErr := json.Unmarshal(data, &m); unmarshalErr != nil {
			return fmt.Errorf("failed to unmarshal manifest: %w", unmarshalErr)
		}

		manifest = &m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return manifest, nil
}

// SessionRef returns the archive key of a session: <subject>/<session_id>.
// Session ids are unique per subject only, so two subjects recording in
// the same second share an id but never a ref.
func SessionRef(subject, sessionID string) string {
	return subject + "/" + sessionID
}

// GetBySessionID retrieves a manifest by session reference. A qualified
// <subject>/<session_id> matches exactly; a bare session id matches any
// subject and fails with ErrAmbiguousSession when more than one does.
func (s *Store) GetBySessionID(sessionID string) (*Manifest, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	var runID string

	if err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketSessionRefs)

		if strings.Contains(sessionID, "/") {
			id := index.Get([]byte(sessionID))
			if id == nil {
				return ErrSessionNotFound
			}
			runID = string(id)
			return nil
		}

		var refs []string
		suffix := "/" + sessionID
		if err := index.ForEach(func(k, v []byte) error {
			if strings.HasSuffix(string(k), suffix) {
				refs = append(refs, string(k))
				runID = string(v)
			}
			return nil
		}); err != nil {
			return err
		}

		switch len(refs) {
		case 0:
			return ErrSessionNotFound
		case 1:
			return nil
		}
		sort.Strings(refs)
		return fmt.Errorf("%w: %s matches %s", ErrAmbiguousSession, sessionID, strings.Join(refs, ", "))
	}); err != nil {
		return nil, err
	}

	return s.Get(runID)
}

// Lookup resolves ref as a run id first, then as a session reference.
func (s *Store) Lookup(ref string) (*Manifest, error) {
	if isValidUUID(ref) {
		return s.Get(ref)
	}
	return s.GetBySessionID(ref)
}

// List returns every archived manifest, newest first.
func (s *Store) List() ([]*Manifest, error) {
	return s.list(func(*Manifest) bool { return true })
}

// ListBySubject returns the manifests of one subject, newest first.
func (s *Store) ListBySubject(subject string) ([]*Manifest, error) {
	return s.list(func(m *Manifest) bool { return m.SubjectID == subject })
}

func (s *Store) list(keep func(*Manifest) bool) ([]*Manifest, error) {
	manifests := make([]*Manifest, 0, 10)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketManifests).ForEach(func(k, v []byte) error {
			var m Manifest
			if unmarshalErr := json.Unmarshal(v, &m); unmarshalErr != nil {
				s.logger.Warn("failed to unmarshal manifest",
					"run_id", string(k),
					"error", unmarshalErr)
				return nil // Skip invalid entries.
			}
			if keep(&m) {
				manifests = append(manifests, &m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].StartedAt.After(manifests[j].StartedAt)
	})
	return manifests, nil
}

// Delete removes a manifest. Deleting a missing run is not an error.
// Recorded files are left untouched.
func (s *Store) Delete(runID string) error {
	if !isValidUUID(runID) {
		return ErrInvalidUUID
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		manifests := tx.Bucket(bucketManifests)
		index := tx.Bucket(bucketSessionRefs)

		data := manifests.Get([]byte(runID))
		if data == nil {
			return nil
		}

		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to unmarshal manifest: %w", err)
		}

		if err := manifests.Delete([]byte(runID)); err != nil {
			return fmt.Errorf("failed to delete manifest: %w", err)
		}
		if err := index.Delete([]byte(SessionRef(m.SubjectID, m.SessionID))); err != nil {
			return fmt.Errorf("failed to delete session index: %w", err)
		}

		s.logger.Info("session deleted",
			"run_id", runID,
			"session_id", m.SessionID)

		return nil
	})
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// isValidUUID reports whether s is a canonical 36-character UUID.
func isValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
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
