package storageprovider

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/getsentry/stackmerge/internal/storageutil"
)

// Directory implements storageutil.ObjectHandler interface on a plain
// directory. Objects are regular files, readable without any tooling, and
// intermediate directories are created on demand.
type Directory struct {
	Root string
}

func (d *Directory) path(name string) string {
	return filepath.Join(d.Root, filepath.FromSlash(path.Clean("/"+name)))
}

// Put writes a file to the storage provider with name being the path.
func (d *Directory) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	p := d.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.Create(p)
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (d *Directory) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileReader{File: f, size: fi.Size()}, nil
}

// Location returns the file an object is stored in.
func (d *Directory) Location(name string) string {
	return d.path(name)
}

// fileReader implements storageutil.ReadSizeCloser
type fileReader struct {
	*os.File
	size int64
}

func (f *fileReader) Size() int64 {
	return f.size
}
