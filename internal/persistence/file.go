// Package persistence owns the on-disk file behind a table: it opens it,
// locks it for the lifetime of the owner, reads it whole and rewrites it in place.
package persistence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrLocked is returned by Open when another owner holds the file.
	ErrLocked = errors.New("file is locked by another owner")
	// ErrClosed is returned by any operation on a closed File.
	ErrClosed = errors.New("file already closed")
)

// File is an exclusively owned, read/write handle on a single file.
type File struct {
	path string

	mu     sync.Mutex
	file   *os.File
	closed bool
	once   sync.Once
}

// Open opens path for reading and writing, creating it (and its parent
// directories) when absent, and takes an exclusive advisory lock on it.
func Open(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lock(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{path: path, file: f}, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// ReadAll returns the whole content of the file.
func (f *File) ReadAll() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f.file)
}

// Rewrite replaces the content of the file with data and syncs it to disk.
func (f *File) Rewrite(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := f.file.Truncate(0); err != nil {
		return err
	}
	if _, err := f.file.WriteAt(data, 0); err != nil {
		return err
	}
	return f.file.Sync()
}

// Close releases the lock and the handle. Only the first call does any work;
// later calls return ErrClosed.
func (f *File) Close() error {
	err := ErrClosed
	f.once.Do(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closed = true
		err = errors.Join(unlock(f.file), f.file.Close())
	})
	return err
}
