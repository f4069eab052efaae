package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a handle to one candidate statement. Content is read only when
// the file is submitted.
type File struct {
	name  string
	path  string // empty for in-memory files
	size  int64
	pages int
	data  []byte
}

// FileFromPath stats path and returns a handle to it.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		name: filepath.Base(path),
		path: path,
		size: info.Size(),
	}, nil
}

// FileFromBytes wraps content received in memory, e.g. a browser upload.
func FileFromBytes(name string, data []byte) File {
	return File{
		name: filepath.Base(name),
		size: int64(len(data)),
		data: data,
	}
}

func (f File) Name() string { return f.name }
func (f File) Path() string { return f.path }
func (f File) Size() int64  { return f.size }

// Pages is the page count found when the file was picked, or 0.
func (f File) Pages() int { return f.pages }

func (f File) Open() (io.ReadCloser, error) {
	if f.path == "" {
		return io.NopCloser(bytes.NewReader(f.data)), nil
	}
	return os.Open(f.path)
}
