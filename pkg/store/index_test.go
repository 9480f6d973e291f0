package store

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/aora/pkg/codec"
	"github.com/ssargent/aora/pkg/storage"
)

func TestIndex_PutGet(t *testing.T) {
	idx := NewIndex[string]()

	assert.False(t, idx.Put("a", IndexEntry{Offset: 0, Size: 10}))
	assert.False(t, idx.Put("b", IndexEntry{Offset: 10, Size: 12}))

	entry, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, IndexEntry{Offset: 0, Size: 10}, entry)

	_, ok = idx.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_OverwriteKeepsPosition(t *testing.T) {
	idx := NewIndex[string]()
	idx.Put("a", IndexEntry{Offset: 0, Seq: 0})
	idx.Put("b", IndexEntry{Offset: 10, Seq: 1})

	replaced := idx.Put("a", IndexEntry{Offset: 20, Seq: 2})
	assert.True(t, replaced)
	assert.Equal(t, 2, idx.Len())

	keys, entries := collectEntries(idx.Entries())
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, int64(20), entries[0].Offset)
	assert.Equal(t, uint64(2), entries[0].Seq)
}

func TestIndex_IterationIsRestartableAndStoppable(t *testing.T) {
	idx := NewIndex[int]()
	for i := range 5 {
		idx.Put(i, IndexEntry{Offset: int64(i)})
	}

	first := slices.Collect(idx.Keys())
	second := slices.Collect(idx.Keys())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, first)
	assert.Equal(t, first, second)

	var seen []int
	for k := range idx.Keys() {
		if k == 2 {
			break
		}
		seen = append(seen, k)
	}
	assert.Equal(t, []int{0, 1}, seen)
}

func TestIndex_SnapshotIsIndependent(t *testing.T) {
	idx := NewIndex[int]()
	idx.Put(1, IndexEntry{Offset: 1})

	snap := idx.snapshot()
	idx.Put(2, IndexEntry{Offset: 2})
	idx.Put(1, IndexEntry{Offset: 99})

	keys, entries := collectEntries(snap.Entries())
	assert.Equal(t, []int{1}, keys)
	assert.Equal(t, int64(1), entries[0].Offset)
}

func TestIndex_Clear(t *testing.T) {
	idx := NewIndex[int]()
	idx.Put(1, IndexEntry{})
	idx.Clear()

	assert.Equal(t, 0, idx.Len())
	_, ok := idx.Get(1)
	assert.False(t, ok)
	assert.Empty(t, slices.Collect(idx.Keys()))
}

func TestIndex_RebuildFrom(t *testing.T) {
	format := codec.DefaultFormat
	data := frames(t, format, "x", "y", "x")
	payloadKey := func(_ uint64, payload []byte) (string, error) {
		return string(payload), nil
	}

	t.Run("clean log", func(t *testing.T) {
		log, err := NewLog(storage.NewMemory(data), LogConfig{Format: format})
		require.NoError(t, err)

		idx := NewIndex[string]()
		idx.Put("stale", IndexEntry{})

		res, err := idx.RebuildFrom(log, payloadKey)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), res.Frames)
		assert.Equal(t, int64(len(data)), res.End)
		assert.False(t, res.Torn)

		keys, entries := collectEntries(idx.Entries())
		assert.Equal(t, []string{"x", "y"}, keys)
		assert.Equal(t, uint64(2), entries[0].Seq, "last write wins")
		assert.Equal(t, 2*format.FrameSize(1), entries[0].Offset)
	})

	t.Run("torn tail", func(t *testing.T) {
		torn := append(append([]byte(nil), data...), 0x05, 0x00)
		log, err := NewLog(storage.NewMemory(torn), LogConfig{Format: format})
		require.NoError(t, err)

		idx := NewIndex[string]()
		res, err := idx.RebuildFrom(log, payloadKey)
		require.NoError(t, err)
		assert.True(t, res.Torn)
		assert.Equal(t, int64(len(data)), res.TornOffset)
		assert.Equal(t, uint64(3), res.Frames)
	})

	t.Run("digest mismatch", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[format.FrameSize(1)+int64(format.HeaderSize())] ^= 0xFF

		log, err := NewLog(storage.NewMemory(corrupt), LogConfig{Format: format})
		require.NoError(t, err)

		idx := NewIndex[string]()
		res, err := idx.RebuildFrom(log, payloadKey)
		require.ErrorIs(t, err, codec.ErrDigestMismatch)
		assert.Equal(t, uint64(1), res.Frames)
	})

	t.Run("key recovery failure", func(t *testing.T) {
		log, err := NewLog(storage.NewMemory(data), LogConfig{Format: format})
		require.NoError(t, err)

		idx := NewIndex[string]()
		_, err = idx.RebuildFrom(log, func(seq uint64, payload []byte) (string, error) {
			if seq == 1 {
				return "", errors.New("bad key")
			}
			return string(payload), nil
		})

		var decodeErr *codec.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, format.FrameSize(1), decodeErr.Offset)
	})
}
