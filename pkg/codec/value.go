package codec

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Codec converts values to and from the payload bytes stored in frames.
// Encoding must be deterministic: the same value always yields the same bytes.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// DecodeError reports a structurally valid payload the codec could not interpret.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Bytes stores byte slices as-is.
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, error) { return v, nil }

func (Bytes) Decode(data []byte) ([]byte, error) { return data, nil }

// String stores strings as their UTF-8 bytes.
type String struct{}

func (String) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (String) Decode(data []byte) (string, error) { return string(data), nil }

// JSON stores values as JSON documents. Map keys are sorted by the encoder,
// which keeps the encoding deterministic for maps as well as structs.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Zstd compresses the output of an inner codec. The encoder runs with a
// single goroutine and no CRC so that identical input gives identical output.
type Zstd[V any] struct {
	Inner Codec[V]
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderCRC(false))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func (z Zstd[V]) Encode(v V) ([]byte, error) {
	raw, err := z.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func (z Zstd[V]) Decode(data []byte) (V, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("zstd: %w", err)
	}
	return z.Inner.Decode(raw)
}
