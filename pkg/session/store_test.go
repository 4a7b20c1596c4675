package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xmhha/biorecorder/pkg/channel"
	"github.com/0xmhha/biorecorder/pkg/logger"
)

const (
	testRunID  = "a1b2c3d4-e5f6-7890-abcd-ef1234567890"
	otherRunID = "b2c3d4e5-f6a7-8901-bcde-f12345678901"
)

func testManifest(runID, sessionID, subject string, started time.Time) *Manifest {
	return &Manifest{
		Session: Session{
			SubjectID: subject,
			SessionID: sessionID,
			RunID:     runID,
			StartedAt: started,
			OutputDir: "/data",
		},
		State: StateStopped,
		Channels: []Entry{
			{Modality: channel.HeartRate, Paths: []string{"/data/hr_" + subject + "_" + sessionID + ".csv"}, Status: StatusOK, Samples: 120},
			{Modality: channel.EEG, Paths: []string{"/data/eeg_" + subject + "_" + sessionID + ".csv"}, Status: StatusConnectFailed, Error: "timeout"},
		},
	}
}

func TestOpenStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "sessions.db")

	store, err := OpenStore(StoreConfig{DBPath: dbPath}, logger.Noop())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}

	if store.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", store.Path(), dbPath)
	}

	if closeErr := store.Close(); closeErr != nil {
		t.Errorf("Close() error = %v", closeErr)
	}

	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("Database file not created: %v", statErr)
	}
}

func TestSaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(testManifest(testRunID, "20240101_120000", "S1", started)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(testRunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.SessionID != "20240101_120000" {
		t.Errorf("SessionID = %s, want 20240101_120000", got.SessionID)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if len(got.Channels) != 2 {
		t.Fatalf("Channels = %d, want 2", len(got.Channels))
	}
	if got.Channels[1].Status != StatusConnectFailed {
		t.Errorf("Channels[1].Status = %s, want connect_failed", got.Channels[1].Status)
	}
	if valid := got.Valid(); len(valid) != 1 {
		t.Errorf("Valid() = %v, want one file", valid)
	}
}

func TestSaveInvalid(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Save(nil); err != ErrInvalidManifest {
		t.Errorf("Save(nil) error = %v, want ErrInvalidManifest", err)
	}

	m := testManifest("not-a-uuid", "20240101_120000", "S1", time.Now())
	if err := store.Save(m); err != ErrInvalidUUID {
		t.Errorf("Save() error = %v, want ErrInvalidUUID", err)
	}
}

func TestSaveReplacesSameRun(t *testing.T) {
	store := setupTestStore(t)
	m := testManifest(testRunID, "20240101_120000", "S1", time.Now())

	if err := store.Save(m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	m.Channels[0].Samples = 999
	if err := store.Save(m); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := store.Get(testRunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Channels[0].Samples != 999 {
		t.Errorf("Samples = %d, want 999", got.Channels[0].Samples)
	}
}

func TestSaveSessionIDConflict(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Save(testManifest(testRunID, "20240101_120000", "S1", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(testManifest(otherRunID, "20240101_120000", "S1", time.Now())); err == nil {
		t.Error("Save() with a taken subject/session id succeeded")
	}
}

func TestSameSessionIDAcrossSubjects(t *testing.T) {
	store := setupTestStore(t)
	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(testManifest(testRunID, "20240101_120000", "S1", started)); err != nil {
		t.Fatalf("Save(S1) error = %v", err)
	}
	if err := store.Save(testManifest(otherRunID, "20240101_120000", "S2", started)); err != nil {
		t.Fatalf("Save(S2) error = %v", err)
	}

	tests := []struct {
		ref     string
		wantRun string
		wantErr error
	}{
		{ref: "S1/20240101_120000", wantRun: testRunID},
		{ref: "S2/20240101_120000", wantRun: otherRunID},
		{ref: "S3/20240101_120000", wantErr: ErrSessionNotFound},
		{ref: "20240101_120000", wantErr: ErrAmbiguousSession},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := store.Lookup(tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Lookup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if got.RunID != tt.wantRun {
				t.Errorf("RunID = %s, want %s", got.RunID, tt.wantRun)
			}
		})
	}

	if err := store.Delete(testRunID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := store.Lookup("20240101_120000")
	if err != nil {
		t.Fatalf("Lookup() after Delete error = %v", err)
	}
	if got.SubjectID != "S2" {
		t.Errorf("SubjectID = %s, want S2", got.SubjectID)
	}
}

func TestGetNotFound(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.Get(testRunID); err != ErrSessionNotFound {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
	if _, err := store.Get("bogus"); err != ErrInvalidUUID {
		t.Errorf("Get() error = %v, want ErrInvalidUUID", err)
	}
	if _, err := store.GetBySessionID("20240101_120000"); err != ErrSessionNotFound {
		t.Errorf("GetBySessionID() error = %v, want ErrSessionNotFound", err)
	}
}

func TestGetBySessionIDAndLookup(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Save(testManifest(testRunID, "20240101_120000-2", "S1", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.GetBySessionID("20240101_120000-2")
	if err != nil {
		t.Fatalf("GetBySessionID() error = %v", err)
	}
	if got.RunID != testRunID {
		t.Errorf("RunID = %s, want %s", got.RunID, testRunID)
	}

	for _, ref := range []string{testRunID, "20240101_120000-2"} {
		if _, err := store.Lookup(ref); err != nil {
			t.Errorf("Lookup(%q) error = %v", ref, err)
		}
	}
}

func TestListAndListBySubject(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	manifests := []*Manifest{
		testManifest(testRunID, "20240101_120000", "S1", base),
		testManifest(otherRunID, "20240101_130000", "S2", base.Add(time.Hour)),
		testManifest("c3d4e5f6-a7b8-9012-cdef-123456789012", "20240101_140000", "S1", base.Add(2*time.Hour)),
	}
	for _, m := range manifests {
		if err := store.Save(m); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	all, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() = %d manifests, want 3", len(all))
	}
	if all[0].SessionID != "20240101_140000" {
		t.Errorf("List()[0] = %s, want newest first", all[0].SessionID)
	}

	s1, err := store.ListBySubject("S1")
	if err != nil {
		t.Fatalf("ListBySubject() error = %v", err)
	}
	if len(s1) != 2 {
		t.Errorf("ListBySubject(S1) = %d manifests, want 2", len(s1))
	}
	for _, m := range s1 {
		if m.SubjectID != "S1" {
			t.Errorf("ListBySubject(S1) returned subject %s", m.SubjectID)
		}
	}
}

func TestListEmpty(t *testing.T) {
	store := setupTestStore(t)

	all, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List() = %d manifests, want 0", len(all))
	}
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Save(testManifest(testRunID, "20240101_120000", "S1", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(testRunID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Get(testRunID); err != ErrSessionNotFound {
		t.Errorf("Get() after Delete error = %v, want ErrSessionNotFound", err)
	}
	if _, err := store.GetBySessionID("20240101_120000"); err != ErrSessionNotFound {
		t.Errorf("GetBySessionID() after Delete error = %v, want ErrSessionNotFound", err)
	}

	// The session id can be reused once deleted.
	if err := store.Save(testManifest(otherRunID, "20240101_120000", "S1", time.Now())); err != nil {
		t.Errorf("Save() after Delete error = %v", err)
	}
}

func TestDeleteNotFound(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Delete(testRunID); err != nil {
		t.Errorf("Delete() error = %v, want nil", err)
	}
	if err := store.Delete("bogus"); !errors.Is(err, ErrInvalidUUID) {
		t.Errorf("Delete() error = %v, want ErrInvalidUUID", err)
	}
}

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want bool
	}{
		{name: "valid UUID v4", uuid: "a1b2c3d4-e5f6-7890-abcd-ef1234567890", want: true},
		{name: "valid UUID with uppercase", uuid: "A1B2C3D4-E5F6-7890-ABCD-EF1234567890", want: true},
		{name: "too short", uuid: "a1b2c3d4-e5f6-7890-abcd-ef123456789", want: false},
		{name: "too long", uuid: "a1b2c3d4-e5f6-7890-abcd-ef12345678901", want: false},
		{name: "no dashes", uuid: "a1b2c3d4e5f67890abcdef1234567890", want: false},
		{name: "non-hex characters", uuid: "g1b2c3d4-e5f6-7890-abcd-ef1234567890", want: false},
		{name: "session id", uuid: "20240101_120000", want: false},
		{name: "empty string", uuid: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidUUID(tt.uuid); got != tt.want {
				t.Errorf("isValidUUID(%q) = %v, want %v", tt.uuid, got, tt.want)
			}
		})
	}
}

func TestConcurrentReads(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Save(testManifest(testRunID, "20240101_120000", "S1", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			if _, err := store.Get(testRunID); err != nil {
				t.Errorf("Get() error = %v", err)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestDataPersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	store1, err := OpenStore(StoreConfig{DBPath: dbPath}, logger.Noop())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if saveErr := store1.Save(testManifest(testRunID, "20240101_120000", "S1", time.Now())); saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}
	if closeErr := store1.Close(); closeErr != nil {
		t.Fatalf("Close() error = %v", closeErr)
	}

	store2, err := OpenStore(StoreConfig{DBPath: dbPath}, logger.Noop())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer func() {
		if closeErr := store2.Close(); closeErr != nil {
			t.Errorf("Close() error = %v", closeErr)
		}
	}()

	got, err := store2.GetBySessionID("20240101_120000")
	if err != nil {
		t.Fatalf("GetBySessionID() error = %v", err)
	}
	if got.RunID != testRunID {
		t.Errorf("RunID = %s, want %s", got.RunID, testRunID)
	}
}

// setupTestStore creates a store backed by a temp database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(StoreConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	}, logger.Noop())
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Errorf("Cleanup Close() error = %v", closeErr)
		}
	})

	return store
}
