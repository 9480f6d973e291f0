// Package storage provides the byte sinks AORA logs are written to.
package storage

import (
	"errors"
	"io"
)

var (
	ErrClosed = errors.New("storage: backend is closed")
	ErrLocked = errors.New("storage: file is locked by another process")
)

// Backend is a seekable, appendable byte sink. Bytes written by Append keep
// their offset for the life of the backend; only Truncate removes them.
type Backend interface {
	io.ReaderAt

	// Append writes p at the current end and returns the offset it starts at.
	// On error some prefix of p may have been written.
	Append(p []byte) (int64, error)

	// Len returns the current length in bytes.
	Len() (int64, error)

	// Truncate discards all bytes at or after size.
	Truncate(size int64) error

	// Sync makes all appended bytes durable.
	Sync() error

	Close() error
}
