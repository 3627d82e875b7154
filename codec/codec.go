// Package codec provides the pluggable block compressors used by the
// segment writer and readers. A compressed segment records the codec id
// in its header; readers resolve it through ByID.
package codec

import (
	"fmt"

	"github.com/FLOX-Foundation/floxlog/format"
)

// Compressor compresses whole blocks of serialized frames. Compress and
// Decompress reuse dst when it has capacity; callers must not retain the
// input across calls.
type Compressor interface {
	ID() format.CodecID
	Name() string
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte, rawSize int) ([]byte, error)
}

// ByID resolves the codec recorded in a segment header.
func ByID(id format.CodecID) (Compressor, error) {
	switch id {
	case format.CodecNone:
		return None{}, nil
	case format.CodecSnappy:
		return Snappy{}, nil
	case format.CodecZstd:
		return Zstd{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec id %d", id)
}

// ByName resolves a codec from the configuration surface. The empty
// string selects the no-op codec.
func ByName(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return None{}, nil
	case "snappy":
		return Snappy{}, nil
	case "zstd":
		return Zstd{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}

// None is the passthrough codec used by uncompressed segments.
type None struct{}

func (None) ID() format.CodecID { return format.CodecNone }
func (None) Name() string       { return "none" }

func (None) Compress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (None) Decompress(dst, src []byte, _ int) ([]byte, error) {
	return append(dst[:0], src...), nil
}
