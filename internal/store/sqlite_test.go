package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"m1", "m2", "m1"} {
		if err := s.MarkProcessed(ctx, id); err != nil {
			t.Fatalf("MarkProcessed(%s): %v", id, err)
		}
	}

	ids, err := s.LoadProcessed(ctx)
	if err != nil {
		t.Fatalf("LoadProcessed: %v", err)
	}

	if len(ids) != 2 {
		t.Fatalf("loaded %d ids, want 2 (re-marking must be a no-op)", len(ids))
	}

	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if !got["m1"] || !got["m2"] {
		t.Errorf("loaded ids %v, want m1 and m2", ids)
	}
}

func TestNewRejectsUnusablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "journal.db")
	if _, err := New(path); err == nil {
		t.Fatal("New succeeded on a path in a nonexistent directory")
	}
}

func TestEmptyJournal(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.LoadProcessed(context.Background())
	if err != nil {
		t.Fatalf("LoadProcessed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("fresh journal returned %d ids", len(ids))
	}
}
