package segment

import (
	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/models"
)

// Reader is the capability shared by the sequential iterator and the
// mapped reader. Implementations are single-threaded, synchronous APIs;
// a closed segment file is immutable and safe for unlimited concurrent
// Readers, each with its own cursor.
type Reader interface {
	Header() format.SegmentHeader
	Path() string
	Next(*models.Event) error
	SeekToTimestamp(int64) error
	ForEach(models.EventHandler) error
	Close() error
}

// ReaderOptions selects the backing implementation.
type ReaderOptions struct {
	// Mapped requests the zero-copy mapped reader. Compressed segments
	// silently fall back to the iterator, which handles block decoding.
	Mapped    bool
	VerifyCRC bool
}

// OpenReader inspects the segment and returns the appropriate Reader.
func OpenReader(path string, opts ReaderOptions) (Reader, error) {
	if opts.Mapped {
		r, err := OpenMapped(path)
		if err == nil {
			return r, nil
		}
		if err != ErrCompressedSegment {
			return nil, err
		}
	}
	return OpenIterator(path, IterOptions{VerifyCRC: opts.VerifyCRC})
}
