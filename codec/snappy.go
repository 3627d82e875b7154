package codec

import (
	"fmt"

	"github.com/klauspost/compress/snappy"

	"github.com/FLOX-Foundation/floxlog/format"
)

// Snappy uses the snappy block format. It is the default codec for
// recording hot paths: cheap to compress, cheap to seek-decompress.
type Snappy struct{}

func (Snappy) ID() format.CodecID { return format.CodecSnappy }
func (Snappy) Name() string       { return "snappy" }

func (Snappy) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst[:0], src), nil
}

func (Snappy) Decompress(dst, src []byte, rawSize int) ([]byte, error) {
	out, err := snappy.Decode(dst[:0], src)
	if err != nil {
		return nil, fmt.Errorf("codec: snappy decode: %w", err)
	}
	if rawSize > 0 && len(out) != rawSize {
		return nil, fmt.Errorf("codec: snappy decode: raw size %d, block header declares %d", len(out), rawSize)
	}
	return out, nil
}
