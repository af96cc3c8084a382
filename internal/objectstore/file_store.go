package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/voice-studio/internal/fileutil"
)

const (
	contentTypeMPEG = "audio/mpeg"
	exportFileMode  = 0o644
)

// FileObjectStore writes artifacts into a local directory.
type FileObjectStore struct {
	dir string
}

// NewFileObjectStore creates dir if needed.
func NewFileObjectStore(dir string) (*FileObjectStore, error) {
	err := fileutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}

	return &FileObjectStore{dir: dir}, nil
}

// Location returns the file path key is written to.
func (f *FileObjectStore) Location(key string) string {
	return filepath.Join(f.dir, fileutil.SanitizeFilename(key))
}

// Download reads the file stored under key.
func (f *FileObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.Location(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes data to the file for key, replacing any previous export.
func (f *FileObjectStore) Upload(_ context.Context, key string, data []byte) error {
	err := os.WriteFile(f.Location(key), data, exportFileMode)
	if err != nil {
		return fmt.Errorf("failed to write object '%s' to %s: %w", key, f.dir, err)
	}

	return nil
}
