// Package format defines the on-disk layout of floxlog segment files:
// the segment header, per-event frame headers, compressed block headers,
// the fixed-width trade/book payload records and the sparse index trailer.
// All multi-byte fields are little-endian and are marshaled through
// bounds-checked byte-slice readers - the mapped reader copies fields out
// of the mapping rather than reinterpreting unaligned memory.
package format

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic reads as "FLOX" in the first four bytes of a segment file.
	Magic uint32 = 0x584F4C46

	// Version is the current segment format version. A reader refuses
	// segments written under a different major version.
	Version uint16 = 1

	// FileExt is the extension of segment files in a data directory.
	FileExt = ".floxlog"
)

// Fixed struct sizes, in bytes.
const (
	SegmentHeaderSize    = 64
	FrameHeaderSize      = 16
	BlockHeaderSize      = 16
	TradeRecordSize      = 40
	BookRecordHeaderSize = 24
	BookLevelSize        = 16
	IndexEntrySize       = 16
	IndexHeaderSize      = 32
)

// Segment header flag bits.
const (
	FlagCompressed uint16 = 1 << 0
	FlagHasIndex   uint16 = 1 << 1
)

// EventType tags the payload carried by a frame.
type EventType uint16

const (
	EventInvalid EventType = iota
	EventTrade
	EventBookSnapshot
	EventBookDelta
)

func (t EventType) String() string {
	switch t {
	case EventTrade:
		return "trade"
	case EventBookSnapshot:
		return "book_snapshot"
	case EventBookDelta:
		return "book_delta"
	}
	return fmt.Sprintf("invalid(%d)", uint16(t))
}

// CodecID identifies the compression codec used for block-mode segments.
type CodecID uint8

const (
	CodecNone CodecID = iota
	CodecSnappy
	CodecZstd
)

// Trade sides.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

var (
	ErrShortBuffer = errors.New("format: buffer too short")
	ErrBadMagic    = errors.New("format: bad segment magic")
	ErrBadVersion  = errors.New("format: unsupported segment version")
)

// SegmentHeader occupies the first SegmentHeaderSize bytes of every
// segment file. First/Last/EventCount are finalized when the writer
// closes the segment; until then they reflect the last header rewrite.
type SegmentHeader struct {
	Version     uint16
	Flags       uint16
	Codec       CodecID
	ExchangeID  uint32
	CreatedNs   int64
	FirstNs     int64
	LastNs      int64
	EventCount  uint64
	IndexOffset uint64
}

func (h *SegmentHeader) Compressed() bool { return h.Flags&FlagCompressed != 0 }
func (h *SegmentHeader) HasIndex() bool   { return h.Flags&FlagHasIndex != 0 && h.IndexOffset != 0 }

// Valid reports whether the header carries the segment magic and a
// supported version. A segment failing this check is corrupt and is
// never partially trusted.
func (h *SegmentHeader) Valid() bool {
	return h.Version == Version
}

func (h *SegmentHeader) Marshal(dst []byte) error {
	if len(dst) < SegmentHeaderSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst[0:], Magic)
	binary.LittleEndian.PutUint16(dst[4:], h.Version)
	binary.LittleEndian.PutUint16(dst[6:], h.Flags)
	dst[8] = byte(h.Codec)
	dst[9], dst[10], dst[11] = 0, 0, 0
	binary.LittleEndian.PutUint32(dst[12:], h.ExchangeID)
	binary.LittleEndian.PutUint64(dst[16:], uint64(h.CreatedNs))
	binary.LittleEndian.PutUint64(dst[24:], uint64(h.FirstNs))
	binary.LittleEndian.PutUint64(dst[32:], uint64(h.LastNs))
	binary.LittleEndian.PutUint64(dst[40:], h.EventCount)
	binary.LittleEndian.PutUint64(dst[48:], h.IndexOffset)
	for i := 56; i < SegmentHeaderSize; i++ {
		dst[i] = 0
	}
	return nil
}

// UnmarshalSegmentHeader decodes and validates a segment header.
// ErrBadMagic / ErrBadVersion mark the segment as structurally corrupt.
func UnmarshalSegmentHeader(b []byte) (SegmentHeader, error) {
	var h SegmentHeader
	if len(b) < SegmentHeaderSize {
		return h, ErrShortBuffer
	}
	if binary.LittleEndian.Uint32(b[0:]) != Magic {
		return h, ErrBadMagic
	}
	h.Version = binary.LittleEndian.Uint16(b[4:])
	h.Flags = binary.LittleEndian.Uint16(b[6:])
	h.Codec = CodecID(b[8])
	h.ExchangeID = binary.LittleEndian.Uint32(b[12:])
	h.CreatedNs = int64(binary.LittleEndian.Uint64(b[16:]))
	h.FirstNs = int64(binary.LittleEndian.Uint64(b[24:]))
	h.LastNs = int64(binary.LittleEndian.Uint64(b[32:]))
	h.EventCount = binary.LittleEndian.Uint64(b[40:])
	h.IndexOffset = binary.LittleEndian.Uint64(b[48:])
	if !h.Valid() {
		return h, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	return h, nil
}

// FrameHeader precedes each event payload in uncompressed layout, and
// each event inside a decompressed block in compressed layout.
type FrameHeader struct {
	PayloadSize   uint32
	Checksum      uint32 // CRC32 (IEEE) of the payload bytes
	EventType     EventType
	RecordVersion uint16
}

func (h *FrameHeader) Marshal(dst []byte) error {
	if len(dst) < FrameHeaderSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst[0:], h.PayloadSize)
	binary.LittleEndian.PutUint32(dst[4:], h.Checksum)
	binary.LittleEndian.PutUint16(dst[8:], uint16(h.EventType))
	binary.LittleEndian.PutUint16(dst[10:], h.RecordVersion)
	binary.LittleEndian.PutUint32(dst[12:], 0)
	return nil
}

func UnmarshalFrameHeader(b []byte) (FrameHeader, error) {
	var h FrameHeader
	if len(b) < FrameHeaderSize {
		return h, ErrShortBuffer
	}
	h.PayloadSize = binary.LittleEndian.Uint32(b[0:])
	h.Checksum = binary.LittleEndian.Uint32(b[4:])
	h.EventType = EventType(binary.LittleEndian.Uint16(b[8:]))
	h.RecordVersion = binary.LittleEndian.Uint16(b[10:])
	return h, nil
}

// BlockHeader precedes a compressed run of frames. A segment is either
// fully framed or fully blocked; the two layouts never interleave.
type BlockHeader struct {
	CompressedSize uint32
	RawSize        uint32
	EventCount     uint32
}

func (h *BlockHeader) Marshal(dst []byte) error {
	if len(dst) < BlockHeaderSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst[0:], h.CompressedSize)
	binary.LittleEndian.PutUint32(dst[4:], h.RawSize)
	binary.LittleEndian.PutUint32(dst[8:], h.EventCount)
	binary.LittleEndian.PutUint32(dst[12:], 0)
	return nil
}

func UnmarshalBlockHeader(b []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(b) < BlockHeaderSize {
		return h, ErrShortBuffer
	}
	h.CompressedSize = binary.LittleEndian.Uint32(b[0:])
	h.RawSize = binary.LittleEndian.Uint32(b[4:])
	h.EventCount = binary.LittleEndian.Uint32(b[8:])
	return h, nil
}

// TradeRecord is the fixed-width trade payload. Price and quantity are
// fixed-point raw integers; scaling is an exchange-level concern outside
// the log format.
type TradeRecord struct {
	ExchangeTsNs int64
	ReceiptTsNs  int64
	SymbolID     uint32
	Side         uint8
	PriceRaw     int64
	QtyRaw       int64
}

func (r *TradeRecord) Marshal(dst []byte) error {
	if len(dst) < TradeRecordSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst[0:], uint64(r.ExchangeTsNs))
	binary.LittleEndian.PutUint64(dst[8:], uint64(r.ReceiptTsNs))
	binary.LittleEndian.PutUint32(dst[16:], r.SymbolID)
	dst[20] = r.Side
	dst[21], dst[22], dst[23] = 0, 0, 0
	binary.LittleEndian.PutUint64(dst[24:], uint64(r.PriceRaw))
	binary.LittleEndian.PutUint64(dst[32:], uint64(r.QtyRaw))
	return nil
}

func UnmarshalTradeRecord(b []byte) (TradeRecord, error) {
	var r TradeRecord
	if len(b) < TradeRecordSize {
		return r, ErrShortBuffer
	}
	r.ExchangeTsNs = int64(binary.LittleEndian.Uint64(b[0:]))
	r.ReceiptTsNs = int64(binary.LittleEndian.Uint64(b[8:]))
	r.SymbolID = binary.LittleEndian.Uint32(b[16:])
	r.Side = b[20]
	r.PriceRaw = int64(binary.LittleEndian.Uint64(b[24:]))
	r.QtyRaw = int64(binary.LittleEndian.Uint64(b[32:]))
	return r, nil
}

// BookRecordHeader precedes BidCount+AskCount BookLevel entries, bids
// first, in a book snapshot or delta payload.
type BookRecordHeader struct {
	ExchangeTsNs int64
	ReceiptTsNs  int64
	SymbolID     uint32
	BidCount     uint16
	AskCount     uint16
}

func (h *BookRecordHeader) Marshal(dst []byte) error {
	if len(dst) < BookRecordHeaderSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst[0:], uint64(h.ExchangeTsNs))
	binary.LittleEndian.PutUint64(dst[8:], uint64(h.ReceiptTsNs))
	binary.LittleEndian.PutUint32(dst[16:], h.SymbolID)
	binary.LittleEndian.PutUint16(dst[20:], h.BidCount)
	binary.LittleEndian.PutUint16(dst[22:], h.AskCount)
	return nil
}

func UnmarshalBookRecordHeader(b []byte) (BookRecordHeader, error) {
	var h BookRecordHeader
	if len(b) < BookRecordHeaderSize {
		return h, ErrShortBuffer
	}
	h.ExchangeTsNs = int64(binary.LittleEndian.Uint64(b[0:]))
	h.ReceiptTsNs = int64(binary.LittleEndian.Uint64(b[8:]))
	h.SymbolID = binary.LittleEndian.Uint32(b[16:])
	h.BidCount = binary.LittleEndian.Uint16(b[20:])
	h.AskCount = binary.LittleEndian.Uint16(b[22:])
	return h, nil
}

// BookLevel is one (price, quantity) pair of a book record.
type BookLevel struct {
	PriceRaw int64
	QtyRaw   int64
}

func (l *BookLevel) Marshal(dst []byte) error {
	if len(dst) < BookLevelSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst[0:], uint64(l.PriceRaw))
	binary.LittleEndian.PutUint64(dst[8:], uint64(l.QtyRaw))
	return nil
}

func UnmarshalBookLevel(b []byte) (BookLevel, error) {
	var l BookLevel
	if len(b) < BookLevelSize {
		return l, ErrShortBuffer
	}
	l.PriceRaw = int64(binary.LittleEndian.Uint64(b[0:]))
	l.QtyRaw = int64(binary.LittleEndian.Uint64(b[8:]))
	return l, nil
}

// BookPayloadSize returns the payload byte size of a book record with
// the given level counts.
func BookPayloadSize(bids, asks int) int {
	return BookRecordHeaderSize + (bids+asks)*BookLevelSize
}

// IndexEntry is one sparse index sample. In uncompressed layout Offset
// points at a frame header; in compressed layout it points at a block
// header and TsNs is the first event timestamp in that block. Entries
// are sorted ascending by TsNs.
type IndexEntry struct {
	TsNs   int64
	Offset uint64
}

// IndexHeader starts the index trailer at SegmentHeader.IndexOffset.
// Checksum is a CRC32 over the raw entry array bytes.
type IndexHeader struct {
	EntryCount uint32
	Interval   uint32
	FirstNs    int64
	LastNs     int64
	Checksum   uint32
}

func (h *IndexHeader) Marshal(dst []byte) error {
	if len(dst) < IndexHeaderSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst[0:], h.EntryCount)
	binary.LittleEndian.PutUint32(dst[4:], h.Interval)
	binary.LittleEndian.PutUint64(dst[8:], uint64(h.FirstNs))
	binary.LittleEndian.PutUint64(dst[16:], uint64(h.LastNs))
	binary.LittleEndian.PutUint32(dst[24:], h.Checksum)
	binary.LittleEndian.PutUint32(dst[28:], 0)
	return nil
}

func UnmarshalIndexHeader(b []byte) (IndexHeader, error) {
	var h IndexHeader
	if len(b) < IndexHeaderSize {
		return h, ErrShortBuffer
	}
	h.EntryCount = binary.LittleEndian.Uint32(b[0:])
	h.Interval = binary.LittleEndian.Uint32(b[4:])
	h.FirstNs = int64(binary.LittleEndian.Uint64(b[8:]))
	h.LastNs = int64(binary.LittleEndian.Uint64(b[16:]))
	h.Checksum = binary.LittleEndian.Uint32(b[24:])
	return h, nil
}

// MarshalIndexEntries encodes the entry array in trailer order.
func MarshalIndexEntries(entries []IndexEntry) []byte {
	out := make([]byte, len(entries)*IndexEntrySize)
	for i, e := range entries {
		binary.LittleEndian.PutUint64(out[i*IndexEntrySize:], uint64(e.TsNs))
		binary.LittleEndian.PutUint64(out[i*IndexEntrySize+8:], e.Offset)
	}
	return out
}

func UnmarshalIndexEntries(b []byte, count int) ([]IndexEntry, error) {
	if len(b) < count*IndexEntrySize {
		return nil, ErrShortBuffer
	}
	entries := make([]IndexEntry, count)
	for i := range entries {
		entries[i].TsNs = int64(binary.LittleEndian.Uint64(b[i*IndexEntrySize:]))
		entries[i].Offset = binary.LittleEndian.Uint64(b[i*IndexEntrySize+8:])
	}
	return entries, nil
}
