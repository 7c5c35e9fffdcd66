// Package filestore stores message and record attachments in a shared
// directory outside both databases. References are identifier-derived and
// never reused; an existing reference is never overwritten.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("file not found")
	ErrRefExists = errors.New("file reference already exists")
)

// Store is the contract for attachment storage backends.
type Store interface {
	// Save writes the content under a fresh reference derived from the
	// original file name's extension. The returned reference is stable and
	// collision-free.
	Save(ctx context.Context, fileName string, content io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// DirStore keeps attachments as flat files in a single directory.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// deriveRef builds the stored name: a fresh UUID plus the original extension
// when it is short and alphanumeric. The UUID guarantees uniqueness; the
// extension is kept only as a convenience for viewers.
func deriveRef(fileName string) string {
	ext := filepath.Ext(fileName)
	if len(ext) > 10 || !safeExt(ext) {
		ext = ""
	}
	return uuid.New().String() + ext
}

func safeExt(ext string) bool {
	for _, r := range ext {
		if r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func (s *DirStore) path(ref string) (string, error) {
	// A reference is a bare file name; reject anything that could escape dir.
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, ref), nil
}

func (s *DirStore) Save(_ context.Context, fileName string, content io.Reader) (string, error) {
	ref := deriveRef(fileName)
	path := filepath.Join(s.dir, ref)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", ErrRefExists
		}
		return "", fmt.Errorf("create file %s: %w", ref, err)
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write file %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close file %s: %w", ref, err)
	}
	return ref, nil
}

func (s *DirStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open file %s: %w", ref, err)
	}
	return f, nil
}

func (s *DirStore) Delete(_ context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete file %s: %w", ref, err)
	}
	return nil
}
