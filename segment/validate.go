package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/FLOX-Foundation/floxlog/codec"
	"github.com/FLOX-Foundation/floxlog/format"
)

// IssueKind classifies a validation finding.
type IssueKind int

const (
	IssueFileNotFound IssueKind = iota
	IssueBadHeader
	IssueTruncatedFrame
	IssueFrameCRC
	IssueBlockTruncated
	IssueCountMismatch
	IssueIndexCRC
	IssueIndexOrder
)

func (k IssueKind) String() string {
	switch k {
	case IssueFileNotFound:
		return "file_not_found"
	case IssueBadHeader:
		return "bad_header"
	case IssueTruncatedFrame:
		return "truncated_frame"
	case IssueFrameCRC:
		return "frame_crc_mismatch"
	case IssueBlockTruncated:
		return "block_truncated"
	case IssueCountMismatch:
		return "event_count_mismatch"
	case IssueIndexCRC:
		return "index_crc_mismatch"
	case IssueIndexOrder:
		return "index_not_monotonic"
	}
	return fmt.Sprintf("issue(%d)", int(k))
}

// Issue is one defect found in a segment.
type Issue struct {
	Kind   IssueKind
	Offset int64
	Detail string
}

func (i Issue) String() string {
	if i.Detail == "" {
		return fmt.Sprintf("%s at offset %d", i.Kind, i.Offset)
	}
	return fmt.Sprintf("%s at offset %d: %s", i.Kind, i.Offset, i.Detail)
}

// ValidationResult is the structured outcome of validating one segment.
// It is a report, not an error: corrupt segments produce a populated
// issue list, never a panic.
type ValidationResult struct {
	Path         string
	OK           bool
	Header       format.SegmentHeader
	HeaderOK     bool
	ActualEvents uint64
	Issues       []Issue
}

func (r *ValidationResult) add(kind IssueKind, offset int64, detail string) {
	r.Issues = append(r.Issues, Issue{Kind: kind, Offset: offset, Detail: detail})
}

// Validate re-scans a segment verifying header validity, every frame's
// CRC, the declared event count and, when present, the index trailer.
// A frame-level corruption ends the event scan (the region past it is
// unreadable by contract) and suppresses the count comparison, which
// would only restate the same defect.
func Validate(path string) ValidationResult {
	res := ValidationResult{Path: path}

	fi, err := os.Stat(path)
	if err != nil {
		res.add(IssueFileNotFound, 0, err.Error())
		return res
	}

	hdr, err := ReadHeader(path)
	if err != nil {
		res.add(IssueBadHeader, 0, err.Error())
		return res
	}
	res.Header = hdr
	res.HeaderOK = true

	scanClean := validateEvents(path, hdr, fi.Size(), &res)
	if scanClean && res.ActualEvents != hdr.EventCount {
		res.add(IssueCountMismatch, 0,
			fmt.Sprintf("header declares %d events, scan found %d", hdr.EventCount, res.ActualEvents))
	}

	if hdr.HasIndex() {
		validateIndex(path, hdr, fi.Size(), &res)
	}

	res.OK = len(res.Issues) == 0
	return res
}

func validateEvents(path string, hdr format.SegmentHeader, size int64, res *ValidationResult) (clean bool) {
	f, err := os.Open(path)
	if err != nil {
		res.add(IssueFileNotFound, 0, err.Error())
		return false
	}
	defer f.Close()

	dataEnd := size
	if hdr.HasIndex() && int64(hdr.IndexOffset) <= size {
		dataEnd = int64(hdr.IndexOffset)
	}
	comp, err := codec.ByID(hdr.Codec)
	if err != nil {
		res.add(IssueBadHeader, 0, err.Error())
		return false
	}

	var payload, blockBuf, compBuf []byte
	var fbuf [format.FrameHeaderSize]byte
	var bbuf [format.BlockHeaderSize]byte
	offset := int64(format.SegmentHeaderSize)

	checkFrames := func(b []byte, base int64) bool {
		pos := 0
		for pos < len(b) {
			if pos+format.FrameHeaderSize > len(b) {
				res.add(IssueTruncatedFrame, base+int64(pos), "frame header past end")
				return false
			}
			fh, _ := format.UnmarshalFrameHeader(b[pos:])
			start := pos + format.FrameHeaderSize
			end := start + int(fh.PayloadSize)
			if end > len(b) {
				res.add(IssueTruncatedFrame, base+int64(pos), "payload past end")
				return false
			}
			if format.Checksum(b[start:end]) != fh.Checksum {
				res.add(IssueFrameCRC, base+int64(pos), "")
				return false
			}
			res.ActualEvents++
			pos = end
		}
		return true
	}

	for offset < dataEnd {
		if hdr.Compressed() {
			if offset+format.BlockHeaderSize > dataEnd {
				res.add(IssueBlockTruncated, offset, "block header past event region")
				return false
			}
			if _, err := f.ReadAt(bbuf[:], offset); err != nil {
				res.add(IssueBlockTruncated, offset, err.Error())
				return false
			}
			bh, _ := format.UnmarshalBlockHeader(bbuf[:])
			end := offset + format.BlockHeaderSize + int64(bh.CompressedSize)
			if end > dataEnd {
				res.add(IssueBlockTruncated, offset, "block body past event region")
				return false
			}
			compBuf = grow(compBuf, int(bh.CompressedSize))
			if _, err := f.ReadAt(compBuf, offset+format.BlockHeaderSize); err != nil {
				res.add(IssueBlockTruncated, offset, err.Error())
				return false
			}
			blockBuf, err = comp.Decompress(blockBuf, compBuf, int(bh.RawSize))
			if err != nil {
				res.add(IssueBlockTruncated, offset, err.Error())
				return false
			}
			if !checkFrames(blockBuf, offset) {
				return false
			}
			offset = end
		} else {
			if offset+format.FrameHeaderSize > dataEnd {
				res.add(IssueTruncatedFrame, offset, "frame header past event region")
				return false
			}
			if _, err := f.ReadAt(fbuf[:], offset); err != nil {
				res.add(IssueTruncatedFrame, offset, err.Error())
				return false
			}
			fh, _ := format.UnmarshalFrameHeader(fbuf[:])
			end := offset + format.FrameHeaderSize + int64(fh.PayloadSize)
			if end > dataEnd {
				res.add(IssueTruncatedFrame, offset, "payload past event region")
				return false
			}
			payload = grow(payload, int(fh.PayloadSize))
			if _, err := f.ReadAt(payload, offset+format.FrameHeaderSize); err != nil {
				res.add(IssueTruncatedFrame, offset, err.Error())
				return false
			}
			if format.Checksum(payload) != fh.Checksum {
				res.add(IssueFrameCRC, offset, "")
				return false
			}
			res.ActualEvents++
			offset = end
		}
	}
	return true
}

func validateIndex(path string, hdr format.SegmentHeader, size int64, res *ValidationResult) {
	f, err := os.Open(path)
	if err != nil {
		res.add(IssueFileNotFound, 0, err.Error())
		return
	}
	defer f.Close()

	off := int64(hdr.IndexOffset)
	if off+format.IndexHeaderSize > size {
		res.add(IssueIndexCRC, off, "index trailer past file end")
		return
	}
	var hbuf [format.IndexHeaderSize]byte
	if _, err := f.ReadAt(hbuf[:], off); err != nil {
		res.add(IssueIndexCRC, off, err.Error())
		return
	}
	ih, err := format.UnmarshalIndexHeader(hbuf[:])
	if err != nil {
		res.add(IssueIndexCRC, off, err.Error())
		return
	}

	raw := make([]byte, int(ih.EntryCount)*format.IndexEntrySize)
	if _, err := f.ReadAt(raw, off+format.IndexHeaderSize); err != nil {
		res.add(IssueIndexCRC, off, err.Error())
		return
	}
	if format.Checksum(raw) != ih.Checksum {
		res.add(IssueIndexCRC, off, "")
		return
	}
	entries, err := format.UnmarshalIndexEntries(raw, int(ih.EntryCount))
	if err != nil {
		res.add(IssueIndexCRC, off, err.Error())
		return
	}
	if !sort.SliceIsSorted(entries, func(i, j int) bool { return entries[i].TsNs < entries[j].TsNs }) {
		res.add(IssueIndexOrder, off, "")
	}
}

// ValidateDir validates every segment in a directory, accumulating
// per-file results rather than aborting the batch.
func ValidateDir(dir string) ([]ValidationResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+format.FileExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	results := make([]ValidationResult, 0, len(paths))
	for _, p := range paths {
		results = append(results, Validate(p))
	}
	return results, nil
}
