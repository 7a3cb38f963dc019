// Package storage is the client's working directory: the source of files it
// sends and the destination of files it receives.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidName = errors.New("storage: invalid file name")
	ErrTooLarge    = errors.New("storage: file too large to transfer")
	ErrNotRegular  = errors.New("storage: not a regular file")
)

// maxDedup bounds the search for a free name_(n) variant.
const maxDedup = 10000

// Dir is a working directory.
type Dir struct {
	root string
}

// Open prepares root, creating it if needed.
func Open(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: prepare %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string { return d.root }

// CleanName reduces a peer-supplied or user-typed name to a bare file name.
func CleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.TrimSpace(name)))
	switch base {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// Source opens name for sending and returns its size.
func (d *Dir) Source(name string) (io.ReadCloser, uint32, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(d.root, clean))
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotRegular, clean)
	}
	if st.Size() > math.MaxUint32 {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, clean, st.Size())
	}
	return f, uint32(st.Size()), nil
}

// Create makes a new output file for name in append mode. An existing file
// is never overwritten: name.ext becomes name_(1).ext, name_(2).ext, and so
// on. It returns the writer and the name actually used.
func (d *Dir) Create(name string) (io.WriteCloser, string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, "", err
	}
	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	if stem == "" {
		stem, ext = clean, ""
	}
	candidate := clean
	for i := 1; i <= maxDedup; i++ {
		f, err := os.OpenFile(filepath.Join(d.root, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
		candidate = fmt.Sprintf("%s_(%d)%s", stem, i, ext)
	}
	return nil, "", fmt.Errorf("storage: no free name for %s", clean)
}
