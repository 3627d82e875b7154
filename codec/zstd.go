package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/FLOX-Foundation/floxlog/format"
)

// A single encoder/decoder pair is shared by all Zstd values. Both are
// safe for concurrent use via EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// Zstd trades compression speed for a better ratio than snappy; the
// usual pick for archived recordings.
type Zstd struct{}

func (Zstd) ID() format.CodecID { return format.CodecZstd }
func (Zstd) Name() string       { return "zstd" }

func (Zstd) Compress(dst, src []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(src, dst[:0]), nil
}

func (Zstd) Decompress(dst, src []byte, rawSize int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("codec: zstd decode: %w", err)
	}
	if rawSize > 0 && len(out) != rawSize {
		return nil, fmt.Errorf("codec: zstd decode: raw size %d, block header declares %d", len(out), rawSize)
	}
	return out, nil
}
