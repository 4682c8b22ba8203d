package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession inserts a session with the given id.
func createTestSession(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.CreateSession(testContext(t), Session{ID: id, Name: "test"}); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
}

// testContext returns a context cancelled when the test finishes
// (stand-in for testing.T.Context, which requires Go 1.24).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
