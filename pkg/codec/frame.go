package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/zeebo/xxh3"
)

// Digest selects the integrity checksum stored in every frame header.
type Digest uint8

const (
	DigestNone  Digest = iota // no checksum, truncation detection only
	DigestCRC32               // CRC32-IEEE, 4 bytes
	DigestXXH3                // XXH3-64, 8 bytes
)

// Size returns the number of bytes the digest occupies in a frame header.
func (d Digest) Size() int {
	switch d {
	case DigestCRC32:
		return 4
	case DigestXXH3:
		return 8
	default:
		return 0
	}
}

func (d Digest) String() string {
	switch d {
	case DigestNone:
		return "none"
	case DigestCRC32:
		return "crc32"
	case DigestXXH3:
		return "xxh3"
	default:
		return fmt.Sprintf("digest(%d)", uint8(d))
	}
}

// ParseDigest maps a configuration name to a Digest.
func ParseDigest(name string) (Digest, error) {
	switch name {
	case "none", "":
		return DigestNone, nil
	case "crc32":
		return DigestCRC32, nil
	case "xxh3":
		return DigestXXH3, nil
	default:
		return 0, fmt.Errorf("unknown digest %q", name)
	}
}

// sum writes the digest of payload into dst, which must be d.Size() bytes long.
func (d Digest) sum(dst, payload []byte) {
	switch d {
	case DigestCRC32:
		binary.LittleEndian.PutUint32(dst, crc32.ChecksumIEEE(payload))
	case DigestXXH3:
		binary.LittleEndian.PutUint64(dst, xxh3.Hash(payload))
	}
}

// Frame errors. Decode wraps them in a *FrameError carrying the offset.
var (
	ErrTruncated      = errors.New("frame truncated")
	ErrDigestMismatch = errors.New("frame digest mismatch")
	ErrFrameTooLarge  = errors.New("payload exceeds frame length width")
	ErrInvalidFormat  = errors.New("invalid frame format")
)

// FrameError reports a frame that could not be decoded at Offset.
type FrameError struct {
	Offset int64
	Err    error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame at offset %d: %v", e.Offset, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Format describes the on-disk layout of a frame:
//
//	[length: LengthSize bytes LE][digest: Digest.Size() bytes][payload: length bytes]
type Format struct {
	LengthSize int // 4 or 8
	Digest     Digest
}

// DefaultFormat is a 4-byte length prefix followed by a CRC32 of the payload.
var DefaultFormat = Format{LengthSize: 4, Digest: DigestCRC32}

// Validate checks that the format can be used to encode frames.
func (f Format) Validate() error {
	if f.LengthSize != 4 && f.LengthSize != 8 {
		return fmt.Errorf("%w: length size %d", ErrInvalidFormat, f.LengthSize)
	}
	if f.Digest > DigestXXH3 {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, f.Digest)
	}
	return nil
}

// HeaderSize returns the number of bytes preceding the payload.
func (f Format) HeaderSize() int {
	return f.LengthSize + f.Digest.Size()
}

// FrameSize returns the total on-disk size of a frame carrying n payload bytes.
func (f Format) FrameSize(n int) int64 {
	return int64(f.HeaderSize()) + int64(n)
}

func (f Format) maxPayload() uint64 {
	if f.LengthSize == 4 {
		return math.MaxUint32
	}
	return math.MaxInt64
}

// Encode returns payload framed according to f.
func (f Format) Encode(payload []byte) ([]byte, error) {
	return f.AppendFrame(make([]byte, 0, f.FrameSize(len(payload))), payload)
}

// AppendFrame appends the framed payload to dst.
func (f Format) AppendFrame(dst, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > f.maxPayload() {
		return dst, ErrFrameTooLarge
	}

	start := len(dst)
	dst = append(dst, make([]byte, f.HeaderSize())...)
	hdr := dst[start:]
	if f.LengthSize == 4 {
		binary.LittleEndian.PutUint32(hdr, uint32(len(payload)))
	} else {
		binary.LittleEndian.PutUint64(hdr, uint64(len(payload)))
	}
	f.Digest.sum(hdr[f.LengthSize:], payload)

	return append(dst, payload...), nil
}

// Frame is one decoded record as found in the log.
type Frame struct {
	Offset  int64  // where the frame starts
	Size    int64  // header + payload
	Payload []byte // verified payload bytes
}

// End returns the offset immediately after the frame.
func (fr Frame) End() int64 {
	return fr.Offset + fr.Size
}

// Decode reads the frame starting at offset. limit is the number of bytes
// readable in r; anything the header promises beyond limit is reported as
// ErrTruncated without being read.
func (f Format) Decode(r io.ReaderAt, offset, limit int64) (Frame, error) {
	hdrSize := int64(f.HeaderSize())
	if limit-offset < hdrSize {
		return Frame{}, &FrameError{Offset: offset, Err: ErrTruncated}
	}

	hdr := make([]byte, hdrSize)
	if err := readFull(r, hdr, offset); err != nil {
		return Frame{}, frameReadError(offset, err)
	}

	var length uint64
	if f.LengthSize == 4 {
		length = uint64(binary.LittleEndian.Uint32(hdr))
	} else {
		length = binary.LittleEndian.Uint64(hdr)
	}
	if length > uint64(limit-offset-hdrSize) {
		return Frame{}, &FrameError{Offset: offset, Err: ErrTruncated}
	}

	payload := make([]byte, length)
	if err := readFull(r, payload, offset+hdrSize); err != nil {
		return Frame{}, frameReadError(offset, err)
	}

	if n := f.Digest.Size(); n > 0 {
		want := hdr[f.LengthSize:]
		got := make([]byte, n)
		f.Digest.sum(got, payload)
		if string(want) != string(got) {
			return Frame{}, &FrameError{Offset: offset, Err: ErrDigestMismatch}
		}
	}

	return Frame{Offset: offset, Size: hdrSize + int64(length), Payload: payload}, nil
}

// readFull fills p from r at off. A short read is reported as io.ErrUnexpectedEOF.
func readFull(r io.ReaderAt, p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func frameReadError(offset int64, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &FrameError{Offset: offset, Err: ErrTruncated}
	}
	return err
}
