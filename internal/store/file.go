package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".json"

// File keeps each record as a JSON file under <root>/<collection>/<key>.json.
type File struct {
	root string
}

// NewFile returns a file store rooted at dir. Nothing is created until Initialize.
func NewFile(dir string) *File {
	return &File{root: dir}
}

// Initialize creates the collection directories.
func (f *File) Initialize(_ context.Context) error {
	for _, c := range Collections {
		if err := os.MkdirAll(filepath.Join(f.root, string(c)), 0o755); err != nil {
			return fmt.Errorf("store: create %s: %w", c, err)
		}
	}
	return nil
}

func (f *File) path(c Collection, key string) string {
	return filepath.Join(f.root, string(c), key+fileExt)
}

// Get reads a single record file.
func (f *File) Get(_ context.Context, c Collection, key string) ([]byte, error) {
	if err := check(c, key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(c, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s/%s: %w", c, key, err)
	}
	return data, nil
}

// GetAll reads every record file of the collection ordered by key.
func (f *File) GetAll(_ context.Context, c Collection) ([][]byte, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}

	dir := filepath.Join(f.root, string(c))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return [][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("store: read %s/%s: %w", c, name, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Put writes the record to a temporary file and renames it into place so
// readers never observe a partial document.
func (f *File) Put(_ context.Context, c Collection, key string, value []byte) error {
	if err := check(c, key); err != nil {
		return err
	}

	dir := filepath.Join(f.root, string(c))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", c, err)
	}

	tmp, err := os.CreateTemp(dir, "."+key+".*")
	if err != nil {
		return fmt.Errorf("store: write %s/%s: %w", c, key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s/%s: %w", c, key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s/%s: %w", c, key, err)
	}
	if err := os.Rename(tmpName, f.path(c, key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s/%s: %w", c, key, err)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }
