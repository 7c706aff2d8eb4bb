package assets

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ErrNotFound is returned when a named asset does not exist in the store.
var ErrNotFound = errors.New("asset not found")

// Store hands out readable byte streams for named, read-only assets.
// Callers own the returned stream and must close it.
type Store interface {
	Open(name string) (io.ReadCloser, error)
}

// FSStore serves assets from an fs.FS.
type FSStore struct {
	fsys fs.FS
}

func NewFSStore(fsys fs.FS) *FSStore {
	return &FSStore{fsys: fsys}
}

// NewDirStore serves assets from a directory on disk.
func NewDirStore(dir string) *FSStore {
	return NewFSStore(os.DirFS(dir))
}

func (s *FSStore) Open(name string) (io.ReadCloser, error) {
	name = strings.TrimLeft(name, "/")
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	f, err := s.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open asset %q: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat asset %q: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %q is a directory", ErrNotFound, name)
	}

	return f, nil
}
