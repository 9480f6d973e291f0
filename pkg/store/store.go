package store

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/ssargent/aora/pkg/codec"
	"github.com/ssargent/aora/pkg/storage"
)

// Store is an append-only log of records with an in-memory index that
// gives random access to them by key.
//
// A Store is safe for concurrent use: appends are serialized and reads
// share a read lock. Only one Store may own a backend at a time.
type Store[K comparable, V any] struct {
	log      *Log
	index    *Index[K]
	codec    codec.Codec[V]
	keys     KeyStrategy[K, V]
	observer Observer
	logger   *slog.Logger
	recovery *RecoveryResult
	records  uint64 // Frames in the log; the next sequence number
	mutex    sync.RWMutex
	isOpen   bool
}

// Open recovers the log held by backend and returns a store ready for use.
// A torn tail left by an unclean shutdown is truncated; a corrupt frame
// makes Open fail with ErrUnrecoverable. On failure the backend is left
// open so the caller can inspect or close it.
func Open[K comparable, V any](backend storage.Backend, opts Options[K, V]) (*Store[K, V], error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidOptions)
	}
	if opts.Keys == nil {
		return nil, fmt.Errorf("%w: key strategy is required", ErrInvalidOptions)
	}

	format := opts.Format
	if format == (codec.Format{}) {
		format = codec.DefaultFormat
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	log, err := NewLog(backend, LogConfig{Format: format, FsyncInterval: opts.FsyncInterval})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	keys := opts.Keys
	index := NewIndex[K]()
	recovery, err := recoverLog(log, index, func(seq uint64, payload []byte) (K, error) {
		key, _, err := keys.Recover(seq, payload)
		return key, err
	})
	if recovery != nil && opts.Observer != nil {
		opts.Observer.ObserveRecovery(recovery)
	}
	if err != nil {
		return nil, err
	}

	if recovery.Repaired() {
		logger.Info("truncated torn write at end of log",
			"offset", recovery.TornOffset,
			"bytes", recovery.BytesTruncated,
			"records", recovery.RecordsValidated)
	}

	s := &Store[K, V]{
		log:      log,
		index:    index,
		codec:    opts.Codec,
		keys:     keys,
		observer: opts.Observer,
		logger:   logger,
		recovery: recovery,
		records:  recovery.RecordsValidated,
		isOpen:   true,
	}
	if s.observer != nil {
		s.observer.ObserveKeys(index.Len())
	}
	return s, nil
}

// Append encodes v, writes it to the log and returns its key. If a record
// with the same key exists, the new record replaces it in the index.
// Nothing becomes visible unless the write succeeded.
func (s *Store[K, V]) Append(v V) (K, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	start := time.Now()
	key, size, err := s.appendInternal(v, false)
	s.observeAppend(size, time.Since(start), err)
	return key, err
}

// Insert is Append for stores whose keys are derived from content: when the
// key already holds byte-identical content nothing is written, and when it
// holds different content Insert fails with ErrKeyConflict.
func (s *Store[K, V]) Insert(v V) (K, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	start := time.Now()
	key, size, err := s.appendInternal(v, true)
	s.observeAppend(size, time.Since(start), err)
	return key, err
}

// AppendBatch appends values in order. On failure it returns the keys of
// the values appended before the failing one.
func (s *Store[K, V]) AppendBatch(values []V) ([]K, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	keys := make([]K, 0, len(values))
	for i, v := range values {
		start := time.Now()
		key, size, err := s.appendInternal(v, false)
		s.observeAppend(size, time.Since(start), err)
		if err != nil {
			return keys, fmt.Errorf("append value %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// appendInternal writes one record; the caller holds the write lock
func (s *Store[K, V]) appendInternal(v V, unique bool) (K, int64, error) {
	var zero K
	if !s.isOpen {
		return zero, 0, ErrClosed
	}

	encoded, err := s.codec.Encode(v)
	if err != nil {
		return zero, 0, err
	}

	seq := s.records
	key, header, err := s.keys.Assign(seq, v, encoded)
	if err != nil {
		return zero, 0, err
	}

	if unique {
		if entry, ok := s.index.Get(key); ok {
			existing, err := s.readEncoded(entry)
			if err != nil {
				return zero, 0, err
			}
			if !bytes.Equal(existing, encoded) {
				return zero, 0, ErrKeyConflict
			}
			return key, 0, nil
		}
	}

	payload := encoded
	if len(header) > 0 {
		payload = make([]byte, 0, len(header)+len(encoded))
		payload = append(payload, header...)
		payload = append(payload, encoded...)
	}

	offset, size, err := s.log.Append(payload)
	if err != nil {
		return zero, 0, err
	}

	s.index.Put(key, IndexEntry{Offset: offset, Size: size, Seq: seq})
	s.records++
	if s.observer != nil {
		s.observer.ObserveKeys(s.index.Len())
	}
	return key, size, nil
}

// Get returns the value stored under key. A key that was never appended
// yields the zero value and false, not an error.
func (s *Store[K, V]) Get(key K) (V, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	start := time.Now()
	v, found, err := s.getInternal(key)
	if s.observer != nil {
		s.observer.ObserveGet(found, time.Since(start), err)
	}
	return v, found, err
}

func (s *Store[K, V]) getInternal(key K) (V, bool, error) {
	var zero V
	if !s.isOpen {
		return zero, false, ErrClosed
	}

	entry, ok := s.index.Get(key)
	if !ok {
		return zero, false, nil
	}

	v, err := s.readValue(entry)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// readEncoded reads a frame and strips any key header from its payload
func (s *Store[K, V]) readEncoded(entry IndexEntry) ([]byte, error) {
	frame, err := s.log.ReadAt(entry.Offset, entry.Size)
	if err != nil {
		return nil, err
	}

	payload := frame.Payload
	if hs, ok := s.keys.(HeaderSizer); ok {
		n := hs.HeaderSize()
		if len(payload) < n {
			return nil, &codec.DecodeError{
				Offset: entry.Offset,
				Err:    fmt.Errorf("payload of %d bytes is shorter than the %d byte key header", len(payload), n),
			}
		}
		payload = payload[n:]
	}
	return payload, nil
}

func (s *Store[K, V]) readValue(entry IndexEntry) (V, error) {
	var zero V
	encoded, err := s.readEncoded(entry)
	if err != nil {
		return zero, err
	}
	v, err := s.codec.Decode(encoded)
	if err != nil {
		return zero, &codec.DecodeError{Offset: entry.Offset, Err: err}
	}
	return v, nil
}

// Contains reports whether key is in the index
func (s *Store[K, V]) Contains(key K) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.index.Get(key)
	return ok
}

// Lookup returns the log location of key
func (s *Store[K, V]) Lookup(key K) (IndexEntry, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.index.Get(key)
}

// Len returns the number of distinct keys
func (s *Store[K, V]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.index.Len()
}

// IsEmpty reports whether the store holds no keys
func (s *Store[K, V]) IsEmpty() bool {
	return s.Len() == 0
}

// Keys yields keys in insertion order. The sequence works on a snapshot
// taken when iteration starts, so the loop body may append to the store.
func (s *Store[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for key := range s.snapshot().Keys() {
			if !yield(key) {
				return
			}
		}
	}
}

// Entries yields keys and log locations in insertion order, from a
// snapshot taken when iteration starts.
func (s *Store[K, V]) Entries() iter.Seq2[K, IndexEntry] {
	return func(yield func(K, IndexEntry) bool) {
		for key, entry := range s.snapshot().Entries() {
			if !yield(key, entry) {
				return
			}
		}
	}
}

func (s *Store[K, V]) snapshot() *Index[K] {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.index.snapshot()
}

// ForEach calls fn with every key and value in insertion order. It stops
// at the first error, from reading a record or from fn.
func (s *Store[K, V]) ForEach(fn func(key K, value V) error) error {
	for key, entry := range s.Entries() {
		v, err := s.readLocked(entry)
		if err != nil {
			return err
		}
		if err := fn(key, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store[K, V]) readLocked(entry IndexEntry) (V, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isOpen {
		var zero V
		return zero, ErrClosed
	}
	return s.readValue(entry)
}

// Sync forces all appended records to durable storage
func (s *Store[K, V]) Sync() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isOpen {
		return ErrClosed
	}
	return s.log.Sync()
}

// Size returns the log size in bytes
func (s *Store[K, V]) Size() int64 {
	return s.log.Size()
}

// Stats returns store statistics
func (s *Store[K, V]) Stats() Stats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return Stats{
		Keys:     s.index.Len(),
		Records:  s.records,
		DataSize: s.log.Size(),
	}
}

// Recovery returns what recovery did when the store was opened
func (s *Store[K, V]) Recovery() *RecoveryResult {
	return s.recovery
}

// Close syncs and closes the log. The index is discarded with it.
func (s *Store[K, V]) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil
	}
	s.isOpen = false
	s.index.Clear()

	return s.log.Close()
}

func (s *Store[K, V]) observeAppend(size int64, d time.Duration, err error) {
	if s.observer != nil {
		s.observer.ObserveAppend(size, d, err)
	}
}

// SequenceOptions returns options for a store keyed by append sequence
func SequenceOptions[V any](c codec.Codec[V]) Options[uint64, V] {
	return Options[uint64, V]{Codec: c, Keys: SequenceKeys[V]{}}
}
