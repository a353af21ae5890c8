package fsblob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pipechat/pipechat-server/internal/store"
)

// Blobs stores uploaded file bytes as plain files under a single directory.
// Keys are flattened with filepath.Base so a filename can never address
// anything outside the directory.
type Blobs struct {
	dir string
}

// New creates the blob directory if needed and returns the store.
func New(dir string) (*Blobs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Blobs{dir: dir}, nil
}

// Key returns the flattened storage key for a filename.
func Key(filename string) string {
	return filepath.Base(filename)
}

// Put writes the decoded upload bytes, overwriting any previous content.
func (b *Blobs) Put(filename string, data []byte) error {
	path := filepath.Join(b.dir, Key(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

// Get reads stored bytes back. Returns store.ErrNotFound for unknown keys.
func (b *Blobs) Get(filename string) ([]byte, error) {
	path := filepath.Join(b.dir, Key(filename))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}
