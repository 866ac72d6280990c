// Package objectstore reads and writes pipeline CSV objects on the local
// filesystem or in an S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// FileStore keeps objects as files below a root directory. Keys use forward
// slashes and map to nested directories.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes the store root", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Get returns the object's bytes. A missing object yields a
// *domain.SourceNotFoundError.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &domain.SourceNotFoundError{Source: "object", Key: key, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Put writes the object, creating parent directories as needed. The write
// goes through a temporary file so readers never see a partial object.
func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

// CheckReadiness verifies the root directory exists.
func (s *FileStore) CheckReadiness(_ context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", s.root)
	}
	return nil
}
