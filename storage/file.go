package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

type file struct {
	dir string
}

// NewFile returns a filesystem backed storage rooted at the given
// directory. Keys fan out into subdirectories named after their first
// two characters to keep directory sizes bounded.
func NewFile(dir string) (Storage, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, err
	}
	return &file{dir: dir}, nil
}

func (f *file) path(key string) string {
	if len(key) <= 2 {
		return filepath.Join(f.dir, key)
	}
	return filepath.Join(f.dir, key[:2], key[2:])
}

func (f *file) Has(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(f.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *file) Get(ctx context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (f *file) Put(ctx context.Context, key string, content []byte) error {
	path := f.path(key)
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, content, 0o644)
}

func (f *file) Delete(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
