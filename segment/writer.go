package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/FLOX-Foundation/floxlog/codec"
	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/metrics"
	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// WriterConfig is the writer's configuration surface.
type WriterConfig struct {
	// Dir is the data directory segments are created in.
	Dir string
	// ExchangeID is stamped into every segment header.
	ExchangeID uint32
	// MaxSegmentBytes triggers rotation; DefaultMaxSegmentBytes if zero.
	MaxSegmentBytes int64
	// Compression selects the block codec ("", "none", "snappy", "zstd").
	Compression string
	// CreateIndex embeds a sparse index trailer in each segment.
	CreateIndex bool
	// IndexInterval is the uncompressed-mode sampling interval in events.
	IndexInterval int
	// BlockEvents is the compressed-mode block size in events.
	BlockEvents int
	// OutputFilename fixes the name of the first segment only; rotated
	// segments fall back to SegmentNamer or timestamp naming.
	OutputFilename string
	// SegmentNamer, when set, names every rotated segment.
	SegmentNamer func(seq int) string
	// Metadata, when attached, is persisted alongside the data on Close.
	Metadata *models.Metadata
}

// WriterStats summarizes a writer's lifetime output.
type WriterStats struct {
	Segments     int
	Events       uint64
	BytesWritten uint64
}

// Writer appends trade and book frames to the active segment, rotating
// to a new file at the size threshold. It owns its file handle
// exclusively and is not safe for concurrent use.
type Writer struct {
	cfg        WriterConfig
	comp       codec.Compressor
	compressed bool

	f         *os.File
	path      string
	hdr       format.SegmentHeader
	size      int64
	segEvents uint64
	index     []format.IndexEntry

	block        *bytebufferpool.ByteBuffer
	blockEvents  int
	blockFirstNs int64

	payload []byte
	frame   []byte
	compBuf []byte

	firstNs int64
	lastNs  int64

	seq    int
	stats  WriterStats
	closed bool
}

// NewWriter opens the first segment and returns a ready writer.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.MaxSegmentBytes <= 0 {
		cfg.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if cfg.IndexInterval <= 0 {
		cfg.IndexInterval = DefaultIndexInterval
	}
	if cfg.BlockEvents <= 0 {
		cfg.BlockEvents = DefaultBlockEvents
	}
	comp, err := codec.ByName(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.Dir, err)
	}

	w := &Writer{
		cfg:        cfg,
		comp:       comp,
		compressed: comp.ID() != format.CodecNone,
		frame:      make([]byte, format.FrameHeaderSize),
	}
	if w.compressed {
		w.block = bytebufferpool.Get()
	}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) segmentName() string {
	if w.seq == 0 && w.cfg.OutputFilename != "" {
		return w.cfg.OutputFilename
	}
	if w.cfg.SegmentNamer != nil {
		return w.cfg.SegmentNamer(w.seq)
	}
	for {
		name := fmt.Sprintf("%d%s", time.Now().UTC().UnixNano(), format.FileExt)
		if _, err := os.Stat(filepath.Join(w.cfg.Dir, name)); os.IsNotExist(err) {
			return name
		}
	}
}

func (w *Writer) openSegment() error {
	name := w.segmentName()
	path := filepath.Join(w.cfg.Dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create segment %s: %w", path, err)
	}

	w.f = f
	w.path = path
	w.hdr = format.SegmentHeader{
		Version:    format.Version,
		Codec:      w.comp.ID(),
		ExchangeID: w.cfg.ExchangeID,
		CreatedNs:  time.Now().UTC().UnixNano(),
	}
	if w.compressed {
		w.hdr.Flags |= format.FlagCompressed
	}

	var buf [format.SegmentHeaderSize]byte
	if err := w.hdr.Marshal(buf[:]); err != nil {
		return err
	}
	if _, err := w.f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("failed to write segment header: %w", err)
	}
	w.size = format.SegmentHeaderSize
	w.segEvents = 0
	w.index = w.index[:0]
	w.blockEvents = 0
	if w.block != nil {
		w.block.Reset()
	}
	w.seq++
	w.stats.Segments++
	return nil
}

// WriteTrade appends one trade event.
func (w *Writer) WriteTrade(rec *format.TradeRecord) error {
	if w.closed {
		return ErrWriterClosed
	}
	w.payload = grow(w.payload, format.TradeRecordSize)
	if err := rec.Marshal(w.payload); err != nil {
		return err
	}
	return w.writeEvent(format.EventTrade, w.payload, rec.ExchangeTsNs)
}

// WriteBookSnapshot appends a full book snapshot.
func (w *Writer) WriteBookSnapshot(hdr *format.BookRecordHeader, bids, asks []format.BookLevel) error {
	return w.writeBook(format.EventBookSnapshot, hdr, bids, asks)
}

// WriteBookDelta appends an incremental book update.
func (w *Writer) WriteBookDelta(hdr *format.BookRecordHeader, bids, asks []format.BookLevel) error {
	return w.writeBook(format.EventBookDelta, hdr, bids, asks)
}

// WriteEvent appends an already-decoded event; used by the segment ops
// when copying between segments.
func (w *Writer) WriteEvent(ev *models.Event) error {
	switch ev.Type {
	case format.EventTrade:
		return w.WriteTrade(&ev.Trade)
	case format.EventBookSnapshot, format.EventBookDelta:
		hdr := ev.Book.Hdr
		return w.writeBook(ev.Type, &hdr, ev.Book.Bids, ev.Book.Asks)
	}
	return fmt.Errorf("%w: %d", ErrUnknownEventType, ev.Type)
}

func (w *Writer) writeBook(t format.EventType, hdr *format.BookRecordHeader, bids, asks []format.BookLevel) error {
	if w.closed {
		return ErrWriterClosed
	}
	hdr.BidCount = uint16(len(bids))
	hdr.AskCount = uint16(len(asks))
	n := format.BookPayloadSize(len(bids), len(asks))
	w.payload = grow(w.payload, n)
	if err := hdr.Marshal(w.payload); err != nil {
		return err
	}
	off := format.BookRecordHeaderSize
	for i := range bids {
		if err := bids[i].Marshal(w.payload[off:]); err != nil {
			return err
		}
		off += format.BookLevelSize
	}
	for i := range asks {
		if err := asks[i].Marshal(w.payload[off:]); err != nil {
			return err
		}
		off += format.BookLevelSize
	}
	return w.writeEvent(t, w.payload, hdr.ExchangeTsNs)
}

func (w *Writer) writeEvent(t format.EventType, payload []byte, ts int64) error {
	frameSize := int64(format.FrameHeaderSize + len(payload))

	// Flush a full block before accepting the next event so a failed
	// flush never loses an already-accepted event.
	if w.compressed && w.blockEvents >= w.cfg.BlockEvents {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}

	projected := w.size + frameSize
	if w.compressed {
		projected += int64(w.block.Len()) + format.BlockHeaderSize
	}
	if projected > w.cfg.MaxSegmentBytes && w.segEvents > 0 {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	fh := format.FrameHeader{
		PayloadSize:   uint32(len(payload)),
		Checksum:      format.Checksum(payload),
		EventType:     t,
		RecordVersion: 1,
	}
	if err := fh.Marshal(w.frame); err != nil {
		return err
	}

	if w.compressed {
		if w.blockEvents == 0 {
			w.blockFirstNs = ts
		}
		w.block.B = append(w.block.B, w.frame...)
		w.block.B = append(w.block.B, payload...)
		w.blockEvents++
	} else {
		if w.cfg.CreateIndex && w.segEvents%uint64(w.cfg.IndexInterval) == 0 {
			w.index = append(w.index, format.IndexEntry{TsNs: ts, Offset: uint64(w.size)})
		}
		if _, err := w.f.WriteAt(w.frame, w.size); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
		if _, err := w.f.WriteAt(payload, w.size+format.FrameHeaderSize); err != nil {
			return fmt.Errorf("failed to write payload: %w", err)
		}
		w.size += frameSize
	}

	if w.segEvents == 0 || ts < w.hdr.FirstNs {
		w.hdr.FirstNs = ts
	}
	if ts > w.hdr.LastNs {
		w.hdr.LastNs = ts
	}
	if w.stats.Events == 0 || ts < w.firstNs {
		w.firstNs = ts
	}
	if ts > w.lastNs {
		w.lastNs = ts
	}
	w.segEvents++
	w.hdr.EventCount = w.segEvents
	w.stats.Events++
	w.stats.BytesWritten += uint64(frameSize)
	metrics.EventsWritten.Inc()
	metrics.BytesWritten.Add(float64(frameSize))
	return nil
}

func (w *Writer) flushBlock() error {
	if w.blockEvents == 0 {
		return nil
	}
	var err error
	w.compBuf, err = w.comp.Compress(w.compBuf, w.block.B)
	if err != nil {
		return fmt.Errorf("failed to compress block: %w", err)
	}

	bh := format.BlockHeader{
		CompressedSize: uint32(len(w.compBuf)),
		RawSize:        uint32(w.block.Len()),
		EventCount:     uint32(w.blockEvents),
	}
	var hbuf [format.BlockHeaderSize]byte
	if err := bh.Marshal(hbuf[:]); err != nil {
		return err
	}
	if _, err := w.f.WriteAt(hbuf[:], w.size); err != nil {
		return fmt.Errorf("failed to write block header: %w", err)
	}
	if _, err := w.f.WriteAt(w.compBuf, w.size+format.BlockHeaderSize); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}

	if w.cfg.CreateIndex {
		w.index = append(w.index, format.IndexEntry{TsNs: w.blockFirstNs, Offset: uint64(w.size)})
	}
	w.size += format.BlockHeaderSize + int64(len(w.compBuf))
	w.block.Reset()
	w.blockEvents = 0
	metrics.BlocksCompressed.Inc()
	return nil
}

func (w *Writer) rotate() error {
	if err := w.closeSegment(); err != nil {
		return err
	}
	metrics.SegmentsRotated.Inc()
	log.Debug("rotating segment after %d events, %d bytes", w.segEvents, w.size)
	return w.openSegment()
}

func (w *Writer) closeSegment() error {
	if w.f == nil {
		return nil
	}
	if err := w.flushBlock(); err != nil {
		return err
	}

	if w.cfg.CreateIndex && len(w.index) > 0 {
		raw := format.MarshalIndexEntries(w.index)
		interval := w.cfg.IndexInterval
		if w.compressed {
			interval = w.cfg.BlockEvents
		}
		ih := format.IndexHeader{
			EntryCount: uint32(len(w.index)),
			Interval:   uint32(interval),
			FirstNs:    w.index[0].TsNs,
			LastNs:     w.index[len(w.index)-1].TsNs,
			Checksum:   format.Checksum(raw),
		}
		var ihBuf [format.IndexHeaderSize]byte
		if err := ih.Marshal(ihBuf[:]); err != nil {
			return err
		}
		if _, err := w.f.WriteAt(ihBuf[:], w.size); err != nil {
			return fmt.Errorf("failed to write index header: %w", err)
		}
		if _, err := w.f.WriteAt(raw, w.size+format.IndexHeaderSize); err != nil {
			return fmt.Errorf("failed to write index entries: %w", err)
		}
		w.hdr.Flags |= format.FlagHasIndex
		w.hdr.IndexOffset = uint64(w.size)
		w.size += format.IndexHeaderSize + int64(len(raw))
	}

	var buf [format.SegmentHeaderSize]byte
	if err := w.hdr.Marshal(buf[:]); err != nil {
		return err
	}
	if _, err := w.f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("failed to finalize segment header: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// AddSymbol registers a symbol mapping in the attached recording
// metadata, creating the sidecar lazily when none was attached.
func (w *Writer) AddSymbol(id uint32, name string) {
	if w.cfg.Metadata == nil {
		w.cfg.Metadata = models.NewMetadata("")
	}
	w.cfg.Metadata.AddSymbol(id, name)
}

// Flush forces pending file I/O to durable storage. A partially filled
// compression block stays buffered until it fills or the writer closes.
func (w *Writer) Flush() error {
	if w.closed || w.f == nil {
		return ErrWriterClosed
	}
	return w.f.Sync()
}

// Close finalizes the current segment (flushes any partial block, writes
// the index trailer, rewrites the header with final counts) and persists
// attached recording metadata.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.closeSegment()
	if w.block != nil {
		bytebufferpool.Put(w.block)
		w.block = nil
	}

	if w.cfg.Metadata != nil {
		m := w.cfg.Metadata
		m.FirstNs = w.firstNs
		m.LastNs = w.lastNs
		m.Compressed = w.compressed
		m.Indexed = w.cfg.CreateIndex
		if mdErr := m.Save(w.cfg.Dir); mdErr != nil {
			log.Error("failed to persist recording metadata: %v", mdErr)
			if err == nil {
				err = mdErr
			}
		}
	}
	return err
}

// Stats returns lifetime writer counters.
func (w *Writer) Stats() WriterStats {
	return w.stats
}

// CurrentSegment returns the path of the active (or last) segment file.
func (w *Writer) CurrentSegment() string {
	return w.path
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
