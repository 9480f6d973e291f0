package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Blake2b256 is the content address of data: its 32-byte BLAKE2b digest.
func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// XXH3 is a fast 64-bit content address. It is not collision resistant and
// suits caches rather than tamper-evident logs.
func XXH3(data []byte) uint64 {
	return xxh3.Hash(data)
}

// ParseHash256 decodes a hex encoded 32-byte key.
func ParseHash256(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("hash must be %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}

// U64LE is the 8-byte little-endian form of a uint64 key.
func U64LE(v uint64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b
}

// FromU64LE is the inverse of U64LE.
func FromU64LE(b [8]byte) uint64 {
	return binary.LittleEndian.Uint64(b[:])
}

// U64BE is the 8-byte big-endian form of a uint64 key. Big-endian keys sort
// bytewise in numeric order.
func U64BE(v uint64) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b
}

// FromU64BE is the inverse of U64BE.
func FromU64BE(b [8]byte) uint64 {
	return binary.BigEndian.Uint64(b[:])
}
