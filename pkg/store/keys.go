package store

import (
	"fmt"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/aora/pkg/codec"
)

// KeyStrategy decides the key of every record and how to find it again
// when the index is rebuilt from the log.
//
// Assign is called with the record's sequence number and its encoded value.
// Any header it returns is stored in the payload ahead of the encoded value.
// Recover receives the full payload of frame seq and returns the key and the
// encoded value with the header stripped.
type KeyStrategy[K comparable, V any] interface {
	Assign(seq uint64, value V, encoded []byte) (key K, header []byte, err error)
	Recover(seq uint64, payload []byte) (key K, encoded []byte, err error)
}

// HeaderSizer is implemented by strategies that store a fixed-size key
// header ahead of the encoded value. Reads use it to skip the header
// without running Recover.
type HeaderSizer interface {
	HeaderSize() int
}

// SequenceKeys keys every record by its position in the log. Keys are never
// reused, so nothing is ever overwritten. This is the default strategy.
type SequenceKeys[V any] struct{}

func (SequenceKeys[V]) Assign(seq uint64, _ V, _ []byte) (uint64, []byte, error) {
	return seq, nil, nil
}

func (SequenceKeys[V]) Recover(seq uint64, payload []byte) (uint64, []byte, error) {
	return seq, payload, nil
}

// ContentKeys keys every record by a hash of its encoded value. Appending
// the same value twice writes a second frame under the same key.
type ContentKeys[K comparable, V any] struct {
	Hash func(encoded []byte) K
}

func (c ContentKeys[K, V]) Assign(_ uint64, _ V, encoded []byte) (K, []byte, error) {
	return c.Hash(encoded), nil, nil
}

func (c ContentKeys[K, V]) Recover(_ uint64, payload []byte) (K, []byte, error) {
	return c.Hash(payload), payload, nil
}

// Blake2bKeys returns content keys using the 32-byte BLAKE2b digest
func Blake2bKeys[V any]() ContentKeys[[32]byte, V] {
	return ContentKeys[[32]byte, V]{Hash: codec.Blake2b256}
}

// XXH3Keys returns content keys using the 64-bit XXH3 hash
func XXH3Keys[V any]() ContentKeys[uint64, V] {
	return ContentKeys[uint64, V]{Hash: codec.XXH3}
}

// DerivedKeys computes the key from the value itself, for example an ID
// field. Rebuilding the index decodes every record to find its key.
type DerivedKeys[K comparable, V any] struct {
	Codec codec.Codec[V]
	Key   func(V) K
}

func (d DerivedKeys[K, V]) Assign(_ uint64, value V, _ []byte) (K, []byte, error) {
	return d.Key(value), nil, nil
}

func (d DerivedKeys[K, V]) Recover(_ uint64, payload []byte) (K, []byte, error) {
	v, err := d.Codec.Decode(payload)
	if err != nil {
		var zero K
		return zero, nil, err
	}
	return d.Key(v), payload, nil
}

// KSUIDKeys generates a time-ordered KSUID for every record and stores its
// 20 bytes ahead of the encoded value.
type KSUIDKeys[V any] struct{}

func (KSUIDKeys[V]) Assign(_ uint64, _ V, _ []byte) (ksuid.KSUID, []byte, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return ksuid.Nil, nil, err
	}
	return id, id.Bytes(), nil
}

func (KSUIDKeys[V]) Recover(_ uint64, payload []byte) (ksuid.KSUID, []byte, error) {
	if len(payload) < ksuidLen {
		return ksuid.Nil, nil, fmt.Errorf("payload of %d bytes is shorter than a KSUID header", len(payload))
	}
	id, err := ksuid.FromBytes(payload[:ksuidLen])
	if err != nil {
		return ksuid.Nil, nil, err
	}
	return id, payload[ksuidLen:], nil
}

func (KSUIDKeys[V]) HeaderSize() int {
	return ksuidLen
}

const ksuidLen = 20
