package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PersistStore abstracts where the serialized session cache lives. Load
// returns (nil, nil) when no cache exists yet.
type PersistStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// FileStore persists the session cache as a JSON file on local disk.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed persist store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cache file. A missing file is not an error.
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("session filestore: read failed: %w", err)
	}
	return data, nil
}

// Save atomically overwrites the cache file. The write goes through a temp
// file plus rename so a crash mid-write never leaves a truncated cache.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session filestore: create dir failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session filestore: create temp failed: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("session filestore: write failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session filestore: close failed: %w", err)
	}
	if err = os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session filestore: chmod failed: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("session filestore: rename failed: %w", err)
	}
	return nil
}
