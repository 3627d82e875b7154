package segment

import (
	"fmt"
	"io"
	"os"

	"github.com/FLOX-Foundation/floxlog/codec"
	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// IndexBuilder retroactively adds, removes or rebuilds the sparse index
// trailer of a closed segment. It is the only tool besides the Repairer
// that modifies a closed segment, and it only ever touches the trailer
// and the header's index fields.
type IndexBuilder struct {
	// Interval is the uncompressed-mode sampling interval;
	// DefaultIndexInterval if zero. Compressed segments are sampled once
	// per block regardless.
	Interval int
}

// HasIndex reports whether the segment carries an index trailer.
func (b *IndexBuilder) HasIndex(path string) (bool, error) {
	hdr, err := ReadHeader(path)
	if err != nil {
		return false, err
	}
	return hdr.HasIndex(), nil
}

// RemoveIndex truncates the index trailer and clears the header flag.
// A segment without an index is left untouched.
func (b *IndexBuilder) RemoveIndex(path string) error {
	hdr, err := ReadHeader(path)
	if err != nil {
		return err
	}
	if !hdr.HasIndex() {
		return nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(int64(hdr.IndexOffset)); err != nil {
		return fmt.Errorf("failed to truncate index trailer: %w", err)
	}
	hdr.Flags &^= format.FlagHasIndex
	hdr.IndexOffset = 0
	var buf [format.SegmentHeaderSize]byte
	if err := hdr.Marshal(buf[:]); err != nil {
		return err
	}
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("failed to rewrite header: %w", err)
	}
	return f.Sync()
}

// BuildForSegment scans the segment once, samples index entries at the
// configured interval (per block in compressed mode), appends the index
// trailer and updates the header. An existing index is rebuilt.
func (b *IndexBuilder) BuildForSegment(path string) error {
	hdr, err := ReadHeader(path)
	if err != nil {
		return err
	}
	if hdr.HasIndex() {
		if err := b.RemoveIndex(path); err != nil {
			return err
		}
		hdr.Flags &^= format.FlagHasIndex
		hdr.IndexOffset = 0
	}
	interval := b.Interval
	if interval <= 0 {
		interval = DefaultIndexInterval
	}

	var entries []format.IndexEntry
	events := 0
	err = scanRaw(path, hdr, func(offset int64, firstTs int64, n int) bool {
		if hdr.Compressed() {
			// one entry per block
			entries = append(entries, format.IndexEntry{TsNs: firstTs, Offset: uint64(offset)})
		} else if events%interval == 0 {
			entries = append(entries, format.IndexEntry{TsNs: firstTs, Offset: uint64(offset)})
		}
		events += n
		return true
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Warn("segment %s has no events; not writing an index", path)
		return nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	idxOff := fi.Size()

	raw := format.MarshalIndexEntries(entries)
	ihInterval := interval
	if hdr.Compressed() {
		ihInterval = 0
	}
	ih := format.IndexHeader{
		EntryCount: uint32(len(entries)),
		Interval:   uint32(ihInterval),
		FirstNs:    entries[0].TsNs,
		LastNs:     entries[len(entries)-1].TsNs,
		Checksum:   format.Checksum(raw),
	}
	var ihBuf [format.IndexHeaderSize]byte
	if err := ih.Marshal(ihBuf[:]); err != nil {
		return err
	}
	if _, err := f.WriteAt(ihBuf[:], idxOff); err != nil {
		return fmt.Errorf("failed to write index header: %w", err)
	}
	if _, err := f.WriteAt(raw, idxOff+format.IndexHeaderSize); err != nil {
		return fmt.Errorf("failed to write index entries: %w", err)
	}

	hdr.Flags |= format.FlagHasIndex
	hdr.IndexOffset = uint64(idxOff)
	var buf [format.SegmentHeaderSize]byte
	if err := hdr.Marshal(buf[:]); err != nil {
		return err
	}
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("failed to rewrite header: %w", err)
	}
	return f.Sync()
}

// scanRaw walks the event region without decoding payloads. For
// uncompressed segments fn is called once per frame with n=1; for
// compressed segments once per block with the block's first event
// timestamp and event count. Offsets are file offsets of the frame or
// block header. Returning false from fn stops the scan.
func scanRaw(path string, hdr format.SegmentHeader, fn func(offset int64, firstTs int64, n int) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	dataEnd := fi.Size()
	if hdr.HasIndex() && int64(hdr.IndexOffset) <= dataEnd {
		dataEnd = int64(hdr.IndexOffset)
	}

	comp, err := codec.ByID(hdr.Codec)
	if err != nil {
		return err
	}

	offset := int64(format.SegmentHeaderSize)
	var payload, blockBuf, compBuf []byte
	var fbuf [format.FrameHeaderSize]byte
	var bbuf [format.BlockHeaderSize]byte

	for offset < dataEnd {
		if hdr.Compressed() {
			if offset+format.BlockHeaderSize > dataEnd {
				return fmt.Errorf("%w: block header at %d", ErrTruncated, offset)
			}
			if _, err := f.ReadAt(bbuf[:], offset); err != nil {
				return err
			}
			bh, err := format.UnmarshalBlockHeader(bbuf[:])
			if err != nil {
				return err
			}
			end := offset + format.BlockHeaderSize + int64(bh.CompressedSize)
			if end > dataEnd {
				return fmt.Errorf("%w: block at %d", ErrTruncated, offset)
			}
			compBuf = grow(compBuf, int(bh.CompressedSize))
			if _, err := f.ReadAt(compBuf, offset+format.BlockHeaderSize); err != nil {
				return err
			}
			blockBuf, err = comp.Decompress(blockBuf, compBuf, int(bh.RawSize))
			if err != nil {
				return err
			}
			if len(blockBuf) < format.FrameHeaderSize+8 {
				return fmt.Errorf("%w: empty block at %d", ErrTruncated, offset)
			}
			ts, err := payloadTimestamp(blockBuf[format.FrameHeaderSize:])
			if err != nil {
				return err
			}
			if !fn(offset, ts, int(bh.EventCount)) {
				return nil
			}
			offset = end
		} else {
			if offset+format.FrameHeaderSize > dataEnd {
				return fmt.Errorf("%w: frame header at %d", ErrTruncated, offset)
			}
			if _, err := f.ReadAt(fbuf[:], offset); err != nil {
				return err
			}
			fh, err := format.UnmarshalFrameHeader(fbuf[:])
			if err != nil {
				return err
			}
			end := offset + format.FrameHeaderSize + int64(fh.PayloadSize)
			if end > dataEnd {
				return fmt.Errorf("%w: frame at %d", ErrTruncated, offset)
			}
			payload = grow(payload, int(fh.PayloadSize))
			if _, err := f.ReadAt(payload, offset+format.FrameHeaderSize); err != nil {
				return err
			}
			ts, err := payloadTimestamp(payload)
			if err != nil {
				return err
			}
			if !fn(offset, ts, 1) {
				return nil
			}
			offset = end
		}
	}
	if offset != dataEnd {
		return io.ErrUnexpectedEOF
	}
	return nil
}
