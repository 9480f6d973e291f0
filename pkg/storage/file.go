package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FilePerm is the mode new log files are created with.
const FilePerm = 0600

// File is a Backend over a local file. Opening takes an exclusive advisory
// lock so that a second process cannot append to the same log.
type File struct {
	path string
	file *os.File
	size int64
	mu   sync.Mutex
}

// OpenFile opens or creates the file at path, creating parent directories.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, FilePerm)
	if err != nil {
		return nil, err
	}

	if err := lockFile(file); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = unlockFile(file)
		_ = file.Close()
		return nil, err
	}

	return &File{path: path, file: file, size: stat.Size()}, nil
}

// ReadAt reads from the file. It may run concurrently with Append.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file == nil {
		return 0, ErrClosed
	}
	return file.ReadAt(p, off)
}

func (f *File) Append(p []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, ErrClosed
	}

	offset := f.size
	n, err := f.file.WriteAt(p, offset)
	f.size += int64(n)
	if err != nil {
		return offset, err
	}
	return offset, nil
}

func (f *File) Len() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, ErrClosed
	}
	return f.size, nil
}

func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return ErrClosed
	}
	if err := f.file.Truncate(size); err != nil {
		return err
	}
	f.size = size
	return nil
}

func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return ErrClosed
	}
	return f.file.Sync()
}

// Close syncs, unlocks and closes the file. Closing twice is a no-op.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}

	file := f.file
	f.file = nil

	syncErr := file.Sync()
	_ = unlockFile(file)
	if err := file.Close(); err != nil {
		return err
	}
	return syncErr
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}
