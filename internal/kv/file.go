// Package kv provides the durable key-value backends behind the local state
// store: a directory of JSON files, a NATS JetStream bucket and an in-memory
// map.
package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/fileutil"
)

const (
	fileExtension   = ".json"
	filePermissions = 0o600
	tempPattern     = ".kv-*"
)

// ErrInvalidKey is returned for keys that are not valid in every backend.
var ErrInvalidKey = errors.New("invalid key")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// ValidateKey rejects keys that cannot be used as both a file name and a
// JetStream KV key.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}

// FileStore keeps one file per key in a directory. Each Put replaces the file
// atomically through a rename.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	err := fileutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}

	return &FileStore{dir: dir}, nil
}

// Get returns the value stored under key or core.ErrKeyNotFound.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	err := ValidateKey(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrKeyNotFound
		}

		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	return data, nil
}

// Put replaces the value stored under key.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	err := ValidateKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	temp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file for key %s: %w", key, err)
	}

	tempName := temp.Name()

	_, writeErr := temp.Write(value)
	closeErr := temp.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to write key %s: %w", key, errors.Join(writeErr, closeErr))
	}

	err = os.Chmod(tempName, filePermissions)
	if err != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to set permissions for key %s: %w", key, err)
	}

	err = os.Rename(tempName, s.path(key))
	if err != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to replace key %s: %w", key, err)
	}

	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExtension)
}
