package store

import (
	"log/slog"
	"time"

	"github.com/ssargent/aora/pkg/codec"
)

// IndexEntry represents the location of a record in the log
type IndexEntry struct {
	Offset int64  // Byte offset of the frame
	Size   int64  // Total frame size in bytes, header included
	Seq    uint64 // Position of the frame in append order
}

// LogConfig holds configuration for the log
type LogConfig struct {
	Format        codec.Format  // Frame layout
	FsyncInterval time.Duration // How often to fsync (0 = every append)
}

// Options configures a Store
type Options[K comparable, V any] struct {
	Codec         codec.Codec[V]    // Value codec, required
	Keys          KeyStrategy[K, V] // Key assignment, required
	Format        codec.Format      // Frame layout; zero value means codec.DefaultFormat
	FsyncInterval time.Duration     // 0 syncs every append
	Logger        *slog.Logger      // Recovery notices; nil discards
	Observer      Observer          // Optional operation hooks
}

// Observer receives notifications about store operations. Implementations
// must be safe for concurrent use and must not call back into the store.
type Observer interface {
	ObserveAppend(bytes int64, d time.Duration, err error)
	ObserveGet(found bool, d time.Duration, err error)
	ObserveRecovery(res *RecoveryResult)
	ObserveKeys(n int)
}

// Stats holds statistics about the store
type Stats struct {
	Keys     int    // Distinct keys in the index
	Records  uint64 // Frames in the log, superseded ones included
	DataSize int64  // Log size in bytes
}

// Errors
var (
	ErrClosed            = &KVError{"store is closed"}
	ErrUnrecoverable     = &KVError{"log is corrupt and cannot be recovered"}
	ErrTruncateForbidden = &KVError{"log truncation is only allowed during recovery"}
	ErrLogBroken         = &KVError{"log tail is inconsistent after a failed append; reopen to recover"}
	ErrInvalidOptions    = &KVError{"invalid store options"}
	ErrKeyConflict       = &KVError{"key already holds a different value"}
)

// KVError represents a store error
type KVError struct {
	Message string
}

func (e *KVError) Error() string {
	return e.Message
}
