package store

import (
	"errors"
	"iter"

	"github.com/ssargent/aora/pkg/codec"
)

// Index maps keys to frame locations and remembers the order keys were
// first inserted in. Overwriting a key updates its entry in place.
//
// Index does no locking of its own; the Store serializes access.
type Index[K comparable] struct {
	slots map[K]int // key -> position in order
	order []indexSlot[K]
}

type indexSlot[K comparable] struct {
	key   K
	entry IndexEntry
}

// RebuildResult describes the outcome of replaying a log into an index
type RebuildResult struct {
	Frames     uint64 // Complete frames replayed
	End        int64  // Offset after the last complete frame
	Torn       bool   // The log ends in a truncated frame
	TornOffset int64  // Where the truncated frame starts, if Torn
}

// KeyRecoverer reconstructs the key of frame number seq from its payload
type KeyRecoverer[K comparable] func(seq uint64, payload []byte) (K, error)

// NewIndex creates an empty index
func NewIndex[K comparable]() *Index[K] {
	return &Index[K]{slots: make(map[K]int)}
}

// Put adds or updates the entry for key. It reports whether an earlier
// entry was replaced; a replaced key keeps its enumeration position.
func (idx *Index[K]) Put(key K, entry IndexEntry) bool {
	if pos, ok := idx.slots[key]; ok {
		idx.order[pos].entry = entry
		return true
	}
	idx.slots[key] = len(idx.order)
	idx.order = append(idx.order, indexSlot[K]{key: key, entry: entry})
	return false
}

// Get retrieves the index entry for a key
func (idx *Index[K]) Get(key K) (IndexEntry, bool) {
	pos, ok := idx.slots[key]
	if !ok {
		return IndexEntry{}, false
	}
	return idx.order[pos].entry, true
}

// Len returns the number of keys in the index
func (idx *Index[K]) Len() int {
	return len(idx.order)
}

// Clear removes all entries from the index
func (idx *Index[K]) Clear() {
	idx.slots = make(map[K]int)
	idx.order = nil
}

// Keys yields keys in insertion order
func (idx *Index[K]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, slot := range idx.order {
			if !yield(slot.key) {
				return
			}
		}
	}
}

// Entries yields keys and their locations in insertion order
func (idx *Index[K]) Entries() iter.Seq2[K, IndexEntry] {
	return func(yield func(K, IndexEntry) bool) {
		for _, slot := range idx.order {
			if !yield(slot.key, slot.entry) {
				return
			}
		}
	}
}

// snapshot copies the slots so callers can iterate without holding a lock
func (idx *Index[K]) snapshot() *Index[K] {
	return &Index[K]{order: append([]indexSlot[K](nil), idx.order...)}
}

// RebuildFrom clears the index and replays every complete frame of the log
// in order. A truncated tail ends the replay and is reported in the result;
// any other failure, a digest mismatch included, is returned as an error
// together with the partial result.
func (idx *Index[K]) RebuildFrom(log *Log, recoverKey KeyRecoverer[K]) (RebuildResult, error) {
	idx.Clear()

	var res RebuildResult
	it := log.Scan(0)
	for it.Next() {
		frame := it.Frame()
		key, err := recoverKey(res.Frames, frame.Payload)
		if err != nil {
			return res, &codec.DecodeError{Offset: frame.Offset, Err: err}
		}
		idx.Put(key, IndexEntry{Offset: frame.Offset, Size: frame.Size, Seq: res.Frames})
		res.Frames++
		res.End = frame.End()
	}

	if err := it.Err(); err != nil {
		if errors.Is(err, codec.ErrTruncated) {
			res.Torn = true
			res.TornOffset = it.Offset()
			return res, nil
		}
		return res, err
	}

	return res, nil
}
