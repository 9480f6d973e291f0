// Package multimap is a persistent one-to-many index from fixed-size keys
// to ordered sets of fixed-size values. Every new key/value pair is
// appended to a record log; the in-memory view is rebuilt from the log on
// open.
package multimap

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/ssargent/aora/pkg/codec"
	"github.com/ssargent/aora/pkg/storage"
	"github.com/ssargent/aora/pkg/store"
)

// Errors
var (
	ErrKeySize   = errors.New("multimap: wrong key size")
	ErrValueSize = errors.New("multimap: wrong value size")
)

// Options configures a Map
type Options struct {
	KeySize       int // required
	ValueSize     int // required
	Format        codec.Format
	FsyncInterval time.Duration
	Logger        *slog.Logger
	Observer      store.Observer
}

// pair is one persisted association
type pair struct {
	key   []byte
	value []byte
}

// pairCodec stores a pair as key bytes followed by value bytes
type pairCodec struct {
	keySize   int
	valueSize int
}

func (c pairCodec) Encode(p pair) ([]byte, error) {
	out := make([]byte, 0, c.keySize+c.valueSize)
	out = append(out, p.key...)
	return append(out, p.value...), nil
}

func (c pairCodec) Decode(data []byte) (pair, error) {
	if len(data) != c.keySize+c.valueSize {
		return pair{}, fmt.Errorf("pair of %d bytes, want %d", len(data), c.keySize+c.valueSize)
	}
	return pair{key: data[:c.keySize], value: data[c.keySize:]}, nil
}

// entry holds the values of one key in insertion order
type entry struct {
	key    []byte
	values [][]byte
	seen   map[string]struct{}
}

func entryLess(a, b *entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Map is a one-to-many index. It is safe for concurrent use.
type Map struct {
	log   *store.Store[uint64, pair]
	opts  Options
	tree  *btree.BTreeG[*entry]
	mutex sync.RWMutex
}

// Open replays the log held by backend and returns the index. On failure
// the backend is left open.
func Open(backend storage.Backend, opts Options) (*Map, error) {
	if opts.KeySize <= 0 || opts.ValueSize <= 0 {
		return nil, fmt.Errorf("multimap: key and value sizes must be positive")
	}

	pc := pairCodec{keySize: opts.KeySize, valueSize: opts.ValueSize}
	log, err := store.Open(backend, store.Options[uint64, pair]{
		Codec:         pc,
		Keys:          store.SequenceKeys[pair]{},
		Format:        opts.Format,
		FsyncInterval: opts.FsyncInterval,
		Logger:        opts.Logger,
		Observer:      opts.Observer,
	})
	if err != nil {
		return nil, err
	}

	m := &Map{
		log:  log,
		opts: opts,
		tree: btree.NewG(32, entryLess),
	}

	err = log.ForEach(func(_ uint64, p pair) error {
		m.insert(p.key, p.value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay multimap log: %w", err)
	}
	return m, nil
}

// insert adds value to the set of key and reports whether it was new. The
// caller holds the write lock or has exclusive access.
func (m *Map) insert(key, value []byte) bool {
	e, ok := m.tree.Get(&entry{key: key})
	if !ok {
		e = &entry{key: bytes.Clone(key), seen: make(map[string]struct{})}
		m.tree.ReplaceOrInsert(e)
	}
	if _, dup := e.seen[string(value)]; dup {
		return false
	}
	e.seen[string(value)] = struct{}{}
	e.values = append(e.values, bytes.Clone(value))
	return true
}

func (m *Map) check(key, value []byte) error {
	if len(key) != m.opts.KeySize {
		return fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), m.opts.KeySize)
	}
	if value != nil && len(value) != m.opts.ValueSize {
		return fmt.Errorf("%w: got %d, want %d", ErrValueSize, len(value), m.opts.ValueSize)
	}
	return nil
}

// Push adds value to the set of key. Pushing a value the key already holds
// writes nothing and returns false.
func (m *Map) Push(key, value []byte) (bool, error) {
	if err := m.check(key, value); err != nil {
		return false, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if e, ok := m.tree.Get(&entry{key: key}); ok {
		if _, dup := e.seen[string(value)]; dup {
			return false, nil
		}
	}

	if _, err := m.log.Append(pair{key: key, value: value}); err != nil {
		return false, err
	}
	return m.insert(key, value), nil
}

// Get returns the values of key in the order they were pushed
func (m *Map) Get(key []byte) [][]byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	e, ok := m.tree.Get(&entry{key: key})
	if !ok {
		return nil
	}
	out := make([][]byte, len(e.values))
	for i, v := range e.values {
		out[i] = bytes.Clone(v)
	}
	return out
}

// ValueLen returns the number of values held by key
func (m *Map) ValueLen(key []byte) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if e, ok := m.tree.Get(&entry{key: key}); ok {
		return len(e.values)
	}
	return 0
}

// ContainsKey reports whether key holds at least one value
func (m *Map) ContainsKey(key []byte) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.tree.Has(&entry{key: key})
}

// Keys yields keys in byte order from a snapshot taken when iteration
// starts
func (m *Map) Keys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		m.mutex.RLock()
		keys := make([][]byte, 0, m.tree.Len())
		m.tree.Ascend(func(e *entry) bool {
			keys = append(keys, e.key)
			return true
		})
		m.mutex.RUnlock()

		for _, k := range keys {
			if !yield(bytes.Clone(k)) {
				return
			}
		}
	}
}

// Len returns the number of distinct keys
func (m *Map) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.tree.Len()
}

// Sync forces pushed pairs to durable storage
func (m *Map) Sync() error {
	return m.log.Sync()
}

// Close closes the underlying log
func (m *Map) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.tree.Clear(false)
	return m.log.Close()
}
