// SPDX-License-Identifier: GPL-3.0-only

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"towebp-server/commons"

	"github.com/google/uuid"
)

// FileStore keeps uploaded bytes on the local filesystem under a
// single root directory. Files are named by a fresh UUID so that
// original names never collide or escape the root.
type FileStore struct {
	Root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		root = commons.GetEnv("UPLOADS_DIR", "uploads")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &FileStore{Root: root}, nil
}

// Save writes data to a new uuid-named file and returns its path. The
// file is synced before return so the caller can rely on the bytes
// being durable.
func (s *FileStore) Save(data []byte, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(s.Root, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return path, nil
}

func (s *FileStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Delete removes the file at path. A missing file reports success:
// absence is the goal state.
func (s *FileStore) Delete(path string) bool {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		commons.Logger.Warnf("Failed to delete file %s: %v", path, err)
		return false
	}
	return true
}

func (s *FileStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
