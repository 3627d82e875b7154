package segment

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/FLOX-Foundation/floxlog/codec"
	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/metrics"
	"github.com/FLOX-Foundation/floxlog/models"
)

// IterOptions controls per-read behavior of the sequential iterator.
type IterOptions struct {
	// VerifyCRC checks every frame payload against its header checksum.
	VerifyCRC bool
}

// Iterator reads one segment in file order. In compressed mode it
// decodes one block at a time, serving frames from the decompressed
// buffer until exhausted. Reads never cross into the index region.
type Iterator struct {
	f    *os.File
	path string
	hdr  format.SegmentHeader
	opts IterOptions
	comp codec.Compressor

	valid   bool
	offset  int64 // next file offset to read (frame or block header)
	dataEnd int64 // start of the index region, or file size

	// compressed-mode state
	blockBuf  []byte
	blockPos  int
	blockLeft int
	compBuf   []byte

	frameBuf   []byte
	payloadBuf []byte

	index  []format.IndexEntry
	idxHdr format.IndexHeader
}

// OpenIterator validates the segment header and positions the cursor at
// the start of the event region.
func OpenIterator(path string, opts IterOptions) (*Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	it := &Iterator{
		f:        f,
		path:     path,
		opts:     opts,
		offset:   format.SegmentHeaderSize,
		frameBuf: make([]byte, format.FrameHeaderSize),
	}

	var hbuf [format.SegmentHeaderSize]byte
	if _, err := f.ReadAt(hbuf[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSegment, path, err)
	}
	hdr, err := format.UnmarshalSegmentHeader(hbuf[:])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSegment, path, err)
	}
	it.hdr = hdr
	it.valid = true

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	it.dataEnd = fi.Size()
	if hdr.HasIndex() && int64(hdr.IndexOffset) <= fi.Size() {
		it.dataEnd = int64(hdr.IndexOffset)
	}

	it.comp, err = codec.ByID(hdr.Codec)
	if err != nil {
		f.Close()
		return nil, err
	}
	return it, nil
}

// Valid reflects header validation.
func (it *Iterator) Valid() bool { return it.valid }

// Header returns the segment header.
func (it *Iterator) Header() format.SegmentHeader { return it.hdr }

// Path returns the segment file path.
func (it *Iterator) Path() string { return it.path }

// Next decodes the next event in file order into out. It returns io.EOF
// at the end of the event region and never silently skips a corrupt
// frame: a checksum or truncation error ends iteration of this segment.
func (it *Iterator) Next(out *models.Event) error {
	if !it.valid {
		return ErrInvalidSegment
	}
	if it.hdr.Compressed() {
		return it.nextCompressed(out)
	}
	return it.nextFrame(out)
}

func (it *Iterator) nextFrame(out *models.Event) error {
	if it.offset+format.FrameHeaderSize > it.dataEnd {
		return io.EOF
	}
	if _, err := it.f.ReadAt(it.frameBuf, it.offset); err != nil {
		return fmt.Errorf("failed to read frame header at %d: %w", it.offset, err)
	}
	fh, err := format.UnmarshalFrameHeader(it.frameBuf)
	if err != nil {
		return err
	}
	end := it.offset + format.FrameHeaderSize + int64(fh.PayloadSize)
	if end > it.dataEnd {
		return fmt.Errorf("%w: frame at %d runs past event region", ErrTruncated, it.offset)
	}

	it.payloadBuf = grow(it.payloadBuf, int(fh.PayloadSize))
	if _, err := it.f.ReadAt(it.payloadBuf, it.offset+format.FrameHeaderSize); err != nil {
		return fmt.Errorf("failed to read payload at %d: %w", it.offset, err)
	}
	if it.opts.VerifyCRC && format.Checksum(it.payloadBuf) != fh.Checksum {
		metrics.ChecksumErrors.Inc()
		return fmt.Errorf("%w: frame at %d", ErrChecksum, it.offset)
	}
	if err := decodePayload(fh.EventType, it.payloadBuf, out); err != nil {
		return err
	}
	it.offset = end
	metrics.EventsRead.Inc()
	return nil
}

func (it *Iterator) nextCompressed(out *models.Event) error {
	if it.blockLeft == 0 {
		if err := it.loadBlock(); err != nil {
			return err
		}
	}

	if it.blockPos+format.FrameHeaderSize > len(it.blockBuf) {
		return fmt.Errorf("%w: frame header past block end", ErrTruncated)
	}
	fh, err := format.UnmarshalFrameHeader(it.blockBuf[it.blockPos:])
	if err != nil {
		return err
	}
	start := it.blockPos + format.FrameHeaderSize
	end := start + int(fh.PayloadSize)
	if end > len(it.blockBuf) {
		return fmt.Errorf("%w: payload past block end", ErrTruncated)
	}
	payload := it.blockBuf[start:end]
	if it.opts.VerifyCRC && format.Checksum(payload) != fh.Checksum {
		metrics.ChecksumErrors.Inc()
		return fmt.Errorf("%w: frame in block at %d", ErrChecksum, it.offset)
	}
	if err := decodePayload(fh.EventType, payload, out); err != nil {
		return err
	}
	it.blockPos = end
	it.blockLeft--
	metrics.EventsRead.Inc()
	return nil
}

func (it *Iterator) loadBlock() error {
	if it.offset+format.BlockHeaderSize > it.dataEnd {
		return io.EOF
	}
	var hbuf [format.BlockHeaderSize]byte
	if _, err := it.f.ReadAt(hbuf[:], it.offset); err != nil {
		return fmt.Errorf("failed to read block header at %d: %w", it.offset, err)
	}
	bh, err := format.UnmarshalBlockHeader(hbuf[:])
	if err != nil {
		return err
	}
	end := it.offset + format.BlockHeaderSize + int64(bh.CompressedSize)
	if end > it.dataEnd {
		return fmt.Errorf("%w: block at %d runs past event region", ErrTruncated, it.offset)
	}

	it.compBuf = grow(it.compBuf, int(bh.CompressedSize))
	if _, err := it.f.ReadAt(it.compBuf, it.offset+format.BlockHeaderSize); err != nil {
		return fmt.Errorf("failed to read block at %d: %w", it.offset, err)
	}
	it.blockBuf, err = it.comp.Decompress(it.blockBuf, it.compBuf, int(bh.RawSize))
	if err != nil {
		return fmt.Errorf("failed to decompress block at %d: %w", it.offset, err)
	}
	it.blockPos = 0
	it.blockLeft = int(bh.EventCount)
	it.offset = end
	return nil
}

// LoadIndex reads and CRC-validates the trailing index. ErrNoIndex when
// the segment was written without one.
func (it *Iterator) LoadIndex() error {
	if !it.hdr.HasIndex() {
		return ErrNoIndex
	}
	if it.index != nil {
		return nil
	}

	var hbuf [format.IndexHeaderSize]byte
	if _, err := it.f.ReadAt(hbuf[:], int64(it.hdr.IndexOffset)); err != nil {
		return fmt.Errorf("failed to read index header: %w", err)
	}
	ih, err := format.UnmarshalIndexHeader(hbuf[:])
	if err != nil {
		return err
	}

	raw := make([]byte, int(ih.EntryCount)*format.IndexEntrySize)
	if _, err := it.f.ReadAt(raw, int64(it.hdr.IndexOffset)+format.IndexHeaderSize); err != nil {
		return fmt.Errorf("failed to read index entries: %w", err)
	}
	if format.Checksum(raw) != ih.Checksum {
		metrics.ChecksumErrors.Inc()
		return ErrIndexChecksum
	}
	entries, err := format.UnmarshalIndexEntries(raw, int(ih.EntryCount))
	if err != nil {
		return err
	}
	it.idxHdr = ih
	it.index = entries
	return nil
}

// SeekToTimestamp repositions the cursor at the last index entry with
// timestamp <= ts, or the start of data when none qualifies. The index
// is sparse: the caller must still skip events earlier than ts.
func (it *Iterator) SeekToTimestamp(ts int64) error {
	if err := it.LoadIndex(); err != nil && err != ErrNoIndex {
		return err
	}
	it.blockLeft = 0
	it.blockPos = 0

	if len(it.index) == 0 || it.index[0].TsNs > ts {
		it.offset = format.SegmentHeaderSize
		return nil
	}
	// First entry with TsNs > ts; seek to its predecessor.
	i := sort.Search(len(it.index), func(i int) bool { return it.index[i].TsNs > ts })
	it.offset = int64(it.index[i-1].Offset)
	return nil
}

// ForEach delivers events in file order until EOF, an error, or the
// handler returns false.
func (it *Iterator) ForEach(h models.EventHandler) error {
	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !h(&ev) {
			return nil
		}
	}
}

// ForEachFrom seeks to ts and delivers events with timestamp >= ts.
func (it *Iterator) ForEachFrom(ts int64, h models.EventHandler) error {
	if err := it.SeekToTimestamp(ts); err != nil {
		return err
	}
	return it.ForEach(func(ev *models.Event) bool {
		if ev.Timestamp() < ts {
			return true
		}
		return h(ev)
	})
}

// Close releases the file handle.
func (it *Iterator) Close() error {
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}
