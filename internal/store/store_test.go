package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if err := s1.CreateSession(testContext(t), Session{ID: "s-1", Name: "kept"}); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	sess, err := s2.ReadSession(testContext(t), "s-1")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	if sess.Name != "kept" {
		t.Errorf("Name = %q, want %q", sess.Name, "kept")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	createTestSession(t, s, "mem")
	sessions, err := s.ListSessions(testContext(t))
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("len(sessions) = %d, want 1", len(sessions))
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.pragma(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestOpen_Options(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithSynchronous("FULL"), WithBusyTimeout(250*time.Millisecond))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if got, _ := s.pragma("synchronous"); got != "2" {
		t.Errorf("synchronous = %q, want 2 (FULL)", got)
	}
	if got, _ := s.pragma("busy_timeout"); got != "250" {
		t.Errorf("busy_timeout = %q, want 250", got)
	}
}

func TestOpen_RejectsBadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	_, err := Open(path, WithSynchronous("sometimes"))
	if !errs.IsInvalidArgument(err) {
		t.Errorf("Open(synchronous=sometimes) = %v, want INVALID_ARGUMENT", err)
	}
	_, err = Open(path, WithBusyTimeout(-time.Second))
	if !errs.IsInvalidArgument(err) {
		t.Errorf("Open(busy_timeout<0) = %v, want INVALID_ARGUMENT", err)
	}
}

func TestOpen_InMemoryJournalMode(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	if got, _ := s.pragma("journal_mode"); got != "memory" {
		t.Errorf("journal_mode = %q, want memory", got)
	}
}

func TestOpen_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	if got, _ := s.pragma("user_version"); got != strconv.Itoa(SchemaVersion) {
		t.Errorf("user_version = %q, want %d", got, SchemaVersion)
	}

	var name string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_events_session_code'
	`).Scan(&name)
	if err != nil {
		t.Errorf("migration index missing: %v", err)
	}
}

func TestOpen_MigratesOldJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec(`DROP INDEX idx_events_session_code`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`PRAGMA user_version = 0`); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	var n int
	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_events_session_code'
	`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("v1 index not recreated on reopen")
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion+1)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Error("Open() of a newer journal succeeded, want error")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v, want nil", err)
	}
}
