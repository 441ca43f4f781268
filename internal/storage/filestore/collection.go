package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mrlokans/librarian/internal/storage"
)

// collection is one JSON array file holding every entity of a kind.
type collection[T any] struct {
	dir  string
	name string
}

func (c collection[T]) path() string {
	return filepath.Join(c.dir, c.name)
}

// load reads the whole collection. A missing file is an empty collection; a
// file that does not parse is an error, never an empty read.
func (c collection[T]) load() ([]T, error) {
	data, err := os.ReadFile(c.path())
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, storage.IOError("read "+c.name, err)
	}
	if len(data) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, storage.IOError("decode "+c.name, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// save rewrites the whole collection through a temp file and a rename, so a
// crash leaves either the old or the new content on disk.
func (c collection[T]) save(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return storage.IOError("encode "+c.name, err)
	}

	tmpFile, err := os.CreateTemp(c.dir, "."+c.name+".tmp_")
	if err != nil {
		return storage.IOError("write "+c.name, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath) // no-op after a successful rename
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return storage.IOError("write "+c.name, err)
	}
	if err := tmpFile.Sync(); err != nil {
		return storage.IOError("sync "+c.name, err)
	}
	if err := tmpFile.Close(); err != nil {
		return storage.IOError("close "+c.name, err)
	}
	if err := os.Rename(tmpPath, c.path()); err != nil {
		return storage.IOError("rename "+c.name, fmt.Errorf("%s: %w", c.path(), err))
	}
	return nil
}

// ensure creates an empty collection file when none exists.
func (c collection[T]) ensure() error {
	_, err := os.Stat(c.path())
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return storage.IOError("stat "+c.name, err)
	}
	return c.save(nil)
}
