package segment

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/metrics"
	"github.com/FLOX-Foundation/floxlog/models"
)

// MappedReader is the zero-copy reader over one uncompressed segment.
// The whole file is mapped read-only; frames are scanned in place and
// multi-byte fields are copied out into aligned locals before use (the
// mapping offers no alignment guarantee). Compressed segments are
// rejected; the OpenReader factory falls back to the iterator for them.
type MappedReader struct {
	f    *os.File
	m    mmap.MMap
	path string
	hdr  format.SegmentHeader

	data []byte // event region [header end, index offset | file end)
	pos  int    // cursor into data

	index []format.IndexEntry
}

// OpenMapped maps the segment at path. ErrCompressedSegment is returned
// for block-mode segments.
func OpenMapped(path string) (*MappedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap %s: %w", path, err)
	}

	r := &MappedReader{f: f, m: m, path: path}
	hdr, err := format.UnmarshalSegmentHeader(m)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSegment, path, err)
	}
	if hdr.Compressed() {
		r.Close()
		return nil, ErrCompressedSegment
	}
	r.hdr = hdr

	end := len(m)
	if hdr.HasIndex() && int(hdr.IndexOffset) <= end {
		end = int(hdr.IndexOffset)
	}
	if end < format.SegmentHeaderSize {
		r.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidSegment, path)
	}
	r.data = m[format.SegmentHeaderSize:end]
	return r, nil
}

// Header returns the segment header.
func (r *MappedReader) Header() format.SegmentHeader { return r.hdr }

// Path returns the segment file path.
func (r *MappedReader) Path() string { return r.path }

// Data exposes the raw event region for specialized scans.
func (r *MappedReader) Data() []byte { return r.data }

// CurrentFrame returns the frame header and payload view at the cursor
// without advancing. ok is false at the end of the event region.
func (r *MappedReader) CurrentFrame() (fh format.FrameHeader, payload []byte, ok bool) {
	if r.pos+format.FrameHeaderSize > len(r.data) {
		return fh, nil, false
	}
	fh, err := format.UnmarshalFrameHeader(r.data[r.pos:])
	if err != nil {
		return fh, nil, false
	}
	start := r.pos + format.FrameHeaderSize
	end := start + int(fh.PayloadSize)
	if end > len(r.data) {
		return fh, nil, false
	}
	return fh, r.data[start:end], true
}

// AdvanceFrame moves the cursor past the current frame.
func (r *MappedReader) AdvanceFrame() bool {
	fh, _, ok := r.CurrentFrame()
	if !ok {
		return false
	}
	r.pos += format.FrameHeaderSize + int(fh.PayloadSize)
	return true
}

// Next copies the frame at the cursor into out and advances.
func (r *MappedReader) Next(out *models.Event) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	fh, payload, ok := r.CurrentFrame()
	if !ok {
		if r.pos+format.FrameHeaderSize > len(r.data) {
			return io.EOF
		}
		return fmt.Errorf("%w: frame at %d", ErrTruncated, r.pos)
	}
	if format.Checksum(payload) != fh.Checksum {
		metrics.ChecksumErrors.Inc()
		return fmt.Errorf("%w: frame at %d", ErrChecksum, r.pos)
	}
	if err := decodePayload(fh.EventType, payload, out); err != nil {
		return err
	}
	r.pos += format.FrameHeaderSize + int(fh.PayloadSize)
	metrics.EventsRead.Inc()
	return nil
}

// NextTrade scans forward to the next trade frame and copies it into
// out, skipping book frames without decoding them. Used by tight loops
// that only care about prints.
func (r *MappedReader) NextTrade(out *format.TradeRecord) error {
	for {
		fh, payload, ok := r.CurrentFrame()
		if !ok {
			return io.EOF
		}
		r.pos += format.FrameHeaderSize + int(fh.PayloadSize)
		if fh.EventType != format.EventTrade {
			continue
		}
		rec, err := format.UnmarshalTradeRecord(payload)
		if err != nil {
			return err
		}
		*out = rec
		metrics.EventsRead.Inc()
		return nil
	}
}

// LoadIndex parses the trailing index from the mapping.
func (r *MappedReader) LoadIndex() error {
	if !r.hdr.HasIndex() {
		return ErrNoIndex
	}
	if r.index != nil {
		return nil
	}
	off := int(r.hdr.IndexOffset)
	if off+format.IndexHeaderSize > len(r.m) {
		return fmt.Errorf("%w: index trailer past file end", ErrTruncated)
	}
	ih, err := format.UnmarshalIndexHeader(r.m[off:])
	if err != nil {
		return err
	}
	start := off + format.IndexHeaderSize
	end := start + int(ih.EntryCount)*format.IndexEntrySize
	if end > len(r.m) {
		return fmt.Errorf("%w: index entries past file end", ErrTruncated)
	}
	raw := r.m[start:end]
	if format.Checksum(raw) != ih.Checksum {
		metrics.ChecksumErrors.Inc()
		return ErrIndexChecksum
	}
	r.index, err = format.UnmarshalIndexEntries(raw, int(ih.EntryCount))
	return err
}

// SeekToTimestamp uses the same sparse-index algorithm as the iterator,
// resolving directly to a mapped offset.
func (r *MappedReader) SeekToTimestamp(ts int64) error {
	if err := r.LoadIndex(); err != nil && err != ErrNoIndex {
		return err
	}
	if len(r.index) == 0 || r.index[0].TsNs > ts {
		r.pos = 0
		return nil
	}
	i := sort.Search(len(r.index), func(i int) bool { return r.index[i].TsNs > ts })
	off := int64(r.index[i-1].Offset) - format.SegmentHeaderSize
	if off < 0 || off > int64(len(r.data)) {
		return fmt.Errorf("%w: index offset %d outside event region", ErrTruncated, r.index[i-1].Offset)
	}
	r.pos = int(off)
	return nil
}

// ForEach delivers events in file order until EOF, an error, or the
// handler returns false.
func (r *MappedReader) ForEach(h models.EventHandler) error {
	var ev models.Event
	for {
		err := r.Next(&ev)
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

// Close unmaps and closes the file.
func (r *MappedReader) Close() error {
	var err error
	if r.m != nil {
		err = r.m.Unmap()
		r.m = nil
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
		r.f = nil
	}
	return err
}
