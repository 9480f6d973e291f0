// Package aura is a persistent map of fixed-size keys to fixed-size values
// that supports insert and update but never delete. It is the mutable
// companion of an append-only record log, for example a table of pointers
// to the latest record of some entity.
package aura

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Errors
var (
	ErrConflict  = errors.New("aura: key already holds a different value")
	ErrNotFound  = errors.New("aura: key not found")
	ErrKeySize   = errors.New("aura: wrong key size")
	ErrValueSize = errors.New("aura: wrong value size")
	ErrClosed    = errors.New("aura: map is closed")
)

// Options configures a Map. A zero size accepts keys or values of any
// length.
type Options struct {
	KeySize   int
	ValueSize int
	NoSync    bool // Skip the WAL fsync on every write
}

// Map is a pebble-backed append-update map. Reads are safe from any
// goroutine; writes are serialized so that check-then-write operations are
// atomic.
type Map struct {
	db     *pebble.DB
	opts   Options
	write  *pebble.WriteOptions
	mutex  sync.RWMutex
	count  int
	closed bool
}

// Open opens or creates the map stored in dir
func Open(dir string, opts Options) (*Map, error) {
	if opts.KeySize < 0 || opts.ValueSize < 0 {
		return nil, fmt.Errorf("aura: negative key or value size")
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	m := &Map{db: db, opts: opts, write: pebble.Sync}
	if opts.NoSync {
		m.write = pebble.NoSync
	}

	count, err := m.scanCount()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.count = count
	return m, nil
}

// scanCount counts the stored keys and checks they match the configured sizes
func (m *Map) scanCount() (int, error) {
	it, err := m.db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n := 0
	for it.First(); it.Valid(); it.Next() {
		if err := m.check(it.Key(), it.Value()); err != nil {
			return 0, fmt.Errorf("existing entry %x: %w", it.Key(), err)
		}
		n++
	}
	return n, it.Error()
}

func (m *Map) check(key, value []byte) error {
	if m.opts.KeySize > 0 && len(key) != m.opts.KeySize {
		return fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), m.opts.KeySize)
	}
	if value != nil && m.opts.ValueSize > 0 && len(value) != m.opts.ValueSize {
		return fmt.Errorf("%w: got %d, want %d", ErrValueSize, len(value), m.opts.ValueSize)
	}
	return nil
}

// get returns a copy of the value stored under key
func (m *Map) get(key []byte) ([]byte, bool, error) {
	value, closer, err := m.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	return bytes.Clone(value), true, nil
}

// InsertOnly stores value under a new key. Inserting the value a key
// already holds is a no-op; inserting a different one fails with
// ErrConflict.
func (m *Map) InsertOnly(key, value []byte) error {
	if err := m.check(key, value); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return ErrClosed
	}

	existing, found, err := m.get(key)
	if err != nil {
		return err
	}
	if found {
		if bytes.Equal(existing, value) {
			return nil
		}
		return ErrConflict
	}

	if err := m.db.Set(key, value, m.write); err != nil {
		return err
	}
	m.count++
	return nil
}

// InsertOrUpdate stores value under key whether or not it exists. It
// reports whether the key was new.
func (m *Map) InsertOrUpdate(key, value []byte) (bool, error) {
	if err := m.check(key, value); err != nil {
		return false, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	_, found, err := m.get(key)
	if err != nil {
		return false, err
	}
	if err := m.db.Set(key, value, m.write); err != nil {
		return false, err
	}
	if !found {
		m.count++
	}
	return !found, nil
}

// UpdateOnly replaces the value of an existing key and fails with
// ErrNotFound if the key is absent.
func (m *Map) UpdateOnly(key, value []byte) error {
	if err := m.check(key, value); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return ErrClosed
	}

	_, found, err := m.get(key)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return m.db.Set(key, value, m.write)
}

// Get returns the value stored under key
func (m *Map) Get(key []byte) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}
	return m.get(key)
}

// Contains reports whether key is present
func (m *Map) Contains(key []byte) (bool, error) {
	_, found, err := m.Get(key)
	return found, err
}

// Len returns the number of keys
func (m *Map) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.count
}

// Keys yields every key in byte order from a point-in-time view taken when
// iteration starts. It yields nothing once the map is closed.
func (m *Map) Keys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		m.mutex.RLock()
		if m.closed {
			m.mutex.RUnlock()
			return
		}
		snap := m.db.NewSnapshot()
		m.mutex.RUnlock()
		defer snap.Close()

		it, err := snap.NewIter(nil)
		if err != nil {
			return
		}
		defer it.Close()

		for it.First(); it.Valid(); it.Next() {
			if !yield(bytes.Clone(it.Key())) {
				return
			}
		}
	}
}

// Close flushes and closes the underlying database
func (m *Map) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
