package images

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore keeps image bytes under generated names.
type BlobStore interface {
	Save(data []byte) (string, error)
	Read(name string) ([]byte, error)
	Remove(name string) error
}

// FSBlobStore stores blobs as files in one directory.
type FSBlobStore struct {
	dir string
}

// NewFSBlobStore creates dir if needed.
func NewFSBlobStore(dir string) (*FSBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", dir, err)
	}
	return &FSBlobStore{dir: dir}, nil
}

// Save writes data under a fresh "<uuid>.jpg" name and returns the name.
func (s *FSBlobStore) Save(data []byte) (string, error) {
	name := uuid.New().String() + ".jpg"
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", name, err)
	}
	return name, nil
}

func (s *FSBlobStore) Read(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes the blob. A missing blob is not an error.
func (s *FSBlobStore) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image %s: %w", name, err)
	}
	return nil
}

// path rejects names that would escape the directory.
func (s *FSBlobStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid image name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}
