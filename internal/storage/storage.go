// Package storage persists uploaded audio recordings. A local disk store is
// always available; a Supabase bucket store can be layered on when configured.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store saves a named blob and reports its size in bytes.
type Store interface {
	Save(name, contentType string, data []byte) (int, error)
}

// LocalStore writes recordings under a directory on disk.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(name, contentType string, data []byte) (int, error) {
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return 0, fmt.Errorf("invalid file name")
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(data), nil
}
