package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func newTestStore(t *testing.T) *DirStore {
	t.Helper()
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore() error: %v", err)
	}
	return s
}

func TestSaveOpenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	content := []byte("lab results: all clear")

	ref, err := s.Save(ctx, "results.pdf", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if ref == "" {
		t.Fatal("Save() returned empty reference")
	}

	rc, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestSave_DistinctRefsForSameName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref1, err := s.Save(ctx, "scan.png", bytes.NewReader([]byte("a")))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	ref2, err := s.Save(ctx, "scan.png", bytes.NewReader([]byte("b")))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if ref1 == ref2 {
		t.Errorf("expected distinct references, both %q", ref1)
	}
}

func TestOpen_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Open(context.Background(), "nope.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.Save(ctx, "note.txt", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestOpen_RejectsPathEscape(t *testing.T) {
	s := newTestStore(t)
	for _, ref := range []string{"../etc/passwd", "a/b", `a\b`, ""} {
		if _, err := s.Open(context.Background(), ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q): expected ErrNotFound, got %v", ref, err)
		}
	}
}
