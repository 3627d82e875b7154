// Package segment implements the core of the log engine: the segment
// writer, the sequential iterator, the memory-mapped reader, the
// parallel multi-segment reader and the index/validation/repair tooling.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/models"
)

// Defaults for the writer configuration surface.
const (
	DefaultMaxSegmentBytes = int64(256) << 20
	DefaultIndexInterval   = 1000
	DefaultBlockEvents     = 1000
)

var (
	ErrInvalidSegment    = errors.New("segment: invalid segment file")
	ErrChecksum          = errors.New("segment: payload checksum mismatch")
	ErrTruncated         = errors.New("segment: truncated event region")
	ErrNoIndex           = errors.New("segment: segment has no index")
	ErrIndexChecksum     = errors.New("segment: index checksum mismatch")
	ErrCompressedSegment = errors.New("segment: segment is compressed")
	ErrWriterClosed      = errors.New("segment: writer is closed")
	ErrUnknownEventType  = errors.New("segment: unknown event type")
	ErrPayloadSize       = errors.New("segment: payload size does not match record layout")
)

// ReadHeader opens path just long enough to decode and validate its
// segment header.
func ReadHeader(path string) (format.SegmentHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return format.SegmentHeader{}, err
	}
	defer f.Close()

	var buf [format.SegmentHeaderSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return format.SegmentHeader{}, fmt.Errorf("%w: %s: %v", ErrInvalidSegment, path, err)
	}
	hdr, err := format.UnmarshalSegmentHeader(buf[:])
	if err != nil {
		return hdr, fmt.Errorf("%w: %s: %v", ErrInvalidSegment, path, err)
	}
	return hdr, nil
}

// decodePayload decodes one verified payload into out. Bids/Asks slices
// are reused across calls when out is reused.
func decodePayload(t format.EventType, payload []byte, out *models.Event) error {
	out.Type = t
	switch t {
	case format.EventTrade:
		if len(payload) != format.TradeRecordSize {
			return fmt.Errorf("%w: trade payload %d bytes", ErrPayloadSize, len(payload))
		}
		rec, err := format.UnmarshalTradeRecord(payload)
		if err != nil {
			return err
		}
		out.Trade = rec
		out.Book.Bids = out.Book.Bids[:0]
		out.Book.Asks = out.Book.Asks[:0]
		return nil

	case format.EventBookSnapshot, format.EventBookDelta:
		hdr, err := format.UnmarshalBookRecordHeader(payload)
		if err != nil {
			return err
		}
		want := format.BookPayloadSize(int(hdr.BidCount), int(hdr.AskCount))
		if len(payload) != want {
			return fmt.Errorf("%w: book payload %d bytes, header declares %d", ErrPayloadSize, len(payload), want)
		}
		out.Book.Hdr = hdr
		out.Book.Bids = out.Book.Bids[:0]
		out.Book.Asks = out.Book.Asks[:0]
		off := format.BookRecordHeaderSize
		for i := 0; i < int(hdr.BidCount); i++ {
			l, err := format.UnmarshalBookLevel(payload[off:])
			if err != nil {
				return err
			}
			out.Book.Bids = append(out.Book.Bids, l)
			off += format.BookLevelSize
		}
		for i := 0; i < int(hdr.AskCount); i++ {
			l, err := format.UnmarshalBookLevel(payload[off:])
			if err != nil {
				return err
			}
			out.Book.Asks = append(out.Book.Asks, l)
			off += format.BookLevelSize
		}
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownEventType, t)
}

// payloadTimestamp reads the exchange timestamp without a full decode.
// Both trade and book payloads lead with ExchangeTsNs.
func payloadTimestamp(payload []byte) (int64, error) {
	if len(payload) < 8 {
		return 0, format.ErrShortBuffer
	}
	return int64(binary.LittleEndian.Uint64(payload)), nil
}

// Filter is the shared time-window / symbol-set predicate. The window
// is inclusive on both ends; ToNs == 0 means unbounded; an empty symbol
// set means no symbol filtering. An inverted window simply matches
// nothing.
type Filter struct {
	FromNs  int64
	ToNs    int64
	Symbols map[uint32]struct{}
}

// NewFilter builds a filter from the configuration surface.
func NewFilter(fromNs, toNs int64, symbols []uint32) Filter {
	f := Filter{FromNs: fromNs, ToNs: toNs}
	if len(symbols) > 0 {
		f.Symbols = make(map[uint32]struct{}, len(symbols))
		for _, s := range symbols {
			f.Symbols[s] = struct{}{}
		}
	}
	return f
}

// Match reports whether an event with the given timestamp and symbol id
// passes the filter.
func (f *Filter) Match(ts int64, symbolID uint32) bool {
	if ts < f.FromNs {
		return false
	}
	if f.ToNs != 0 && ts > f.ToNs {
		return false
	}
	if f.Symbols != nil {
		if _, ok := f.Symbols[symbolID]; !ok {
			return false
		}
	}
	return true
}

// MatchEvent applies Match to a decoded event.
func (f *Filter) MatchEvent(ev *models.Event) bool {
	return f.Match(ev.Timestamp(), ev.SymbolID())
}

// Overlaps reports whether a segment covering [firstNs, lastNs] can
// contain matching events.
func (f *Filter) Overlaps(firstNs, lastNs int64) bool {
	if f.ToNs != 0 && firstNs > f.ToNs {
		return false
	}
	return lastNs >= f.FromNs
}
