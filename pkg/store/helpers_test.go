package store

import (
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ssargent/aora/pkg/codec"
	"github.com/ssargent/aora/pkg/storage"
)

var errInjected = errors.New("injected backend failure")

// faultyBackend wraps a memory backend and fails on demand
type faultyBackend struct {
	*storage.Memory

	mu           sync.Mutex
	appendErr    error // returned by Append
	partialBytes int   // bytes written before appendErr, -1 writes everything
	syncErr      error
	truncateErr  error
	syncs        int
	truncates    []int64
}

func newFaultyBackend(data []byte) *faultyBackend {
	return &faultyBackend{Memory: storage.NewMemory(data), partialBytes: 0}
}

func (f *faultyBackend) Append(p []byte) (int64, error) {
	f.mu.Lock()
	appendErr, partial := f.appendErr, f.partialBytes
	f.mu.Unlock()

	if appendErr == nil {
		return f.Memory.Append(p)
	}
	if partial < 0 || partial > len(p) {
		partial = len(p)
	}
	off, err := f.Memory.Append(p[:partial])
	if err != nil {
		return off, err
	}
	return off, appendErr
}

func (f *faultyBackend) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	if f.syncErr != nil {
		return f.syncErr
	}
	return f.Memory.Sync()
}

func (f *faultyBackend) Truncate(size int64) error {
	f.mu.Lock()
	f.truncates = append(f.truncates, size)
	truncateErr := f.truncateErr
	f.mu.Unlock()
	if truncateErr != nil {
		return truncateErr
	}
	return f.Memory.Truncate(size)
}

func (f *faultyBackend) set(fn func(f *faultyBackend)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *faultyBackend) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

// recordingObserver counts store notifications
type recordingObserver struct {
	mu         sync.Mutex
	appends    int
	appendErrs int
	gets       int
	hits       int
	recoveries []*RecoveryResult
	keys       int
}

func (o *recordingObserver) ObserveAppend(_ int64, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appends++
	if err != nil {
		o.appendErrs++
	}
}

func (o *recordingObserver) ObserveGet(found bool, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gets++
	if found {
		o.hits++
	}
}

func (o *recordingObserver) ObserveRecovery(res *RecoveryResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recoveries = append(o.recoveries, res)
}

func (o *recordingObserver) ObserveKeys(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keys = n
}

// openStrings opens a sequence-keyed string store over backend
func openStrings(t *testing.T, backend storage.Backend) *Store[uint64, string] {
	t.Helper()
	s, err := Open(backend, SequenceOptions[string](codec.String{}))
	require.NoError(t, err)
	return s
}

// frames builds a log image holding the given payloads
func frames(t *testing.T, format codec.Format, payloads ...string) []byte {
	t.Helper()
	var out []byte
	for _, p := range payloads {
		var err error
		out, err = format.AppendFrame(out, []byte(p))
		require.NoError(t, err)
	}
	return out
}

func collectEntries[K comparable](seq iter.Seq2[K, IndexEntry]) ([]K, []IndexEntry) {
	var keys []K
	var entries []IndexEntry
	for k, e := range seq {
		keys = append(keys, k)
		entries = append(entries, e)
	}
	return keys, entries
}
