// Package codec provides the frame layout and value codecs for AORA logs.
//
// # Frame Format
//
// Every record appended to a log is wrapped in a self-describing frame:
//
//	[Length(4|8)][Digest(0|4|8)][Payload]
//
// Fields:
//   - Length: unsigned payload length, little-endian, 4 bytes by default
//   - Digest: optional checksum over the payload (CRC32-IEEE or XXH3-64)
//   - Payload: bytes produced by a value Codec
//
// The total frame size is Format.HeaderSize() + Length, so the boundary of
// the next frame is known without reading past the current one. A log file
// is the plain concatenation of frames starting at offset 0.
//
// # Failure Modes
//
// Format.Decode distinguishes two conditions:
//   - ErrTruncated: the log ends before the frame does. This is the torn
//     write left behind by an unclean shutdown and is repaired on open.
//   - ErrDigestMismatch: the frame is complete but its checksum is wrong.
//     This is corruption of already durable data and is never repaired.
//
// Both are wrapped in a *FrameError carrying the frame offset, so callers
// use errors.Is to classify them.
//
// # Usage
//
//	f := codec.DefaultFormat
//
//	frame, err := f.Encode([]byte("payload"))
//	if err != nil {
//	    return err
//	}
//
//	decoded, err := f.Decode(bytes.NewReader(frame), 0, int64(len(frame)))
//	if errors.Is(err, codec.ErrDigestMismatch) {
//	    return err // corrupted
//	}
//
// # Value Codecs
//
// Codec[V] turns values into payload bytes. Bytes, String, JSON and Zstd
// are provided. Codecs must be deterministic because content-addressed keys
// are computed over the encoded bytes.
//
// # Keys
//
// Blake2b256 and XXH3 compute content addresses; U64LE/U64BE convert
// sequence numbers to fixed-width byte keys.
package codec
