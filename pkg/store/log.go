package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/ssargent/aora/pkg/codec"
	"github.com/ssargent/aora/pkg/storage"
)

// Log owns the append-only byte stream of frames on a storage backend
type Log struct {
	backend    storage.Backend
	config     LogConfig
	fsyncTimer *time.Timer
	mutex      sync.Mutex
	tail       int64 // Offset the next frame is written at
	sealed     bool  // Set once recovery is over; forbids Truncate
	broken     bool  // A failed append could not be rolled back
}

// NewLog creates a log over backend. The backend's current length becomes
// the tail; nothing is validated until the log is scanned.
func NewLog(backend storage.Backend, config LogConfig) (*Log, error) {
	if err := config.Format.Validate(); err != nil {
		return nil, err
	}

	tail, err := backend.Len()
	if err != nil {
		return nil, err
	}

	l := &Log{
		backend: backend,
		config:  config,
		tail:    tail,
	}

	// Set up fsync timer if interval is configured
	if config.FsyncInterval > 0 {
		l.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			_ = l.Sync() // Ignore error in timer callback
		})
		l.fsyncTimer.Stop()
	}

	return l, nil
}

// Append frames payload and writes it at the tail, returning where the
// frame starts and its total size. On failure the tail is rolled back so
// the log is left as it was before the call.
func (l *Log) Append(payload []byte) (int64, int64, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.broken {
		return 0, 0, ErrLogBroken
	}

	frame, err := l.config.Format.Encode(payload)
	if err != nil {
		return 0, 0, err
	}

	prev := l.tail
	offset, err := l.backend.Append(frame)
	if err != nil {
		l.rollback(prev)
		return 0, 0, err
	}
	if offset != prev {
		// Someone else wrote to the backend; our offsets are no longer valid.
		l.broken = true
		return 0, 0, fmt.Errorf("log tail moved: expected offset %d, backend wrote at %d", prev, offset)
	}
	l.tail += int64(len(frame))

	if l.config.FsyncInterval == 0 {
		if err := l.backend.Sync(); err != nil {
			l.rollback(prev)
			return 0, 0, err
		}
	} else {
		l.fsyncTimer.Reset(l.config.FsyncInterval)
	}

	return offset, int64(len(frame)), nil
}

// rollback cuts the backend back to prev after a failed append. The caller
// holds the mutex.
func (l *Log) rollback(prev int64) {
	if err := l.backend.Truncate(prev); err != nil {
		l.broken = true
		return
	}
	l.tail = prev
}

// ReadAt decodes the frame at offset, which the index says is size bytes long
func (l *Log) ReadAt(offset, size int64) (codec.Frame, error) {
	frame, err := l.config.Format.Decode(l.backend, offset, offset+size)
	if err != nil {
		return codec.Frame{}, err
	}
	if frame.Size != size {
		return codec.Frame{}, &codec.FrameError{
			Offset: offset,
			Err:    fmt.Errorf("frame size %d does not match index size %d", frame.Size, size),
		}
	}
	return frame, nil
}

// Scan returns an iterator over the frames from offset up to the current tail
func (l *Log) Scan(offset int64) *LogIterator {
	return &LogIterator{
		format:  l.config.Format,
		backend: l.backend,
		offset:  offset,
		limit:   l.Size(),
	}
}

// Truncate discards every byte at or after offset. It is only permitted
// while the log is being recovered.
func (l *Log) Truncate(offset int64) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.sealed {
		return ErrTruncateForbidden
	}
	if offset < 0 || offset > l.tail {
		return fmt.Errorf("truncate offset %d outside log of %d bytes", offset, l.tail)
	}
	if err := l.backend.Truncate(offset); err != nil {
		return err
	}
	l.tail = offset
	return nil
}

// seal ends the recovery window
func (l *Log) seal() {
	l.mutex.Lock()
	l.sealed = true
	l.mutex.Unlock()
}

// Sync forces all appended frames to durable storage
func (l *Log) Sync() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.backend.Sync()
}

// Size returns the offset the next frame will be written at
func (l *Log) Size() int64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.tail
}

// Close syncs and closes the backend
func (l *Log) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.fsyncTimer != nil {
		l.fsyncTimer.Stop()
	}

	syncErr := l.backend.Sync()
	if err := l.backend.Close(); err != nil {
		return err
	}
	return syncErr
}

// LogIterator walks frames in append order. It stops at the end of the
// scanned range, or at the first frame that fails to decode, in which case
// Err reports why and Offset where.
type LogIterator struct {
	format  codec.Format
	backend storage.Backend
	offset  int64
	limit   int64
	frame   codec.Frame
	err     error
	done    bool
}

// Next advances to the next frame
func (it *LogIterator) Next() bool {
	if it.done {
		return false
	}
	if it.offset >= it.limit {
		it.done = true
		return false
	}

	frame, err := it.format.Decode(it.backend, it.offset, it.limit)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.frame = frame
	it.offset = frame.End()
	return true
}

// Frame returns the current frame
func (it *LogIterator) Frame() codec.Frame {
	return it.frame
}

// Offset returns where the next frame starts, or where the failing frame
// starts once Next has returned false with a non-nil Err.
func (it *LogIterator) Offset() int64 {
	return it.offset
}

// Err returns nil at a clean end of the log
func (it *LogIterator) Err() error {
	return it.err
}
