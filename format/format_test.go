package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The CRC routine must match the canonical IEEE vector before any
// segment-level test can be trusted.
func TestChecksumCanonicalVector(t *testing.T) {
	assert.Equal(t, uint32(0x3610A686), Checksum([]byte("hello")))
}

func TestSegmentHeaderRoundTrip(t *testing.T) {
	h := SegmentHeader{
		Version:     Version,
		Flags:       FlagCompressed | FlagHasIndex,
		Codec:       CodecSnappy,
		ExchangeID:  42,
		CreatedNs:   1700000000000000000,
		FirstNs:     1700000000000000001,
		LastNs:      1700000001000000000,
		EventCount:  12345,
		IndexOffset: 98765,
	}
	buf := make([]byte, SegmentHeaderSize)
	require.NoError(t, h.Marshal(buf))

	got, err := UnmarshalSegmentHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.Compressed())
	assert.True(t, got.HasIndex())
}

func TestSegmentHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, SegmentHeaderSize)
	h := SegmentHeader{Version: Version}
	require.NoError(t, h.Marshal(buf))
	buf[0] ^= 0xFF

	_, err := UnmarshalSegmentHeader(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestSegmentHeaderRejectsBadVersion(t *testing.T) {
	buf := make([]byte, SegmentHeaderSize)
	h := SegmentHeader{Version: Version}
	require.NoError(t, h.Marshal(buf))
	buf[4] = 0xEE
	buf[5] = 0xEE

	_, err := UnmarshalSegmentHeader(buf)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := FrameHeader{PayloadSize: 40, Checksum: 0xDEADBEEF, EventType: EventTrade, RecordVersion: 1}
	buf := make([]byte, FrameHeaderSize)
	require.NoError(t, h.Marshal(buf))

	got, err := UnmarshalFrameHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestTradeRecordRoundTrip(t *testing.T) {
	r := TradeRecord{
		ExchangeTsNs: 1e9,
		ReceiptTsNs:  1e9 + 250,
		SymbolID:     7,
		Side:         SideSell,
		PriceRaw:     6512345000,
		QtyRaw:       -250000,
	}
	buf := make([]byte, TradeRecordSize)
	require.NoError(t, r.Marshal(buf))

	got, err := UnmarshalTradeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestBookRecordRoundTrip(t *testing.T) {
	h := BookRecordHeader{ExchangeTsNs: 5e9, ReceiptTsNs: 5e9 + 100, SymbolID: 3, BidCount: 2, AskCount: 1}
	buf := make([]byte, BookPayloadSize(2, 1))
	require.NoError(t, h.Marshal(buf))
	levels := []BookLevel{{100, 10}, {99, 20}, {101, 5}}
	for i, l := range levels {
		require.NoError(t, l.Marshal(buf[BookRecordHeaderSize+i*BookLevelSize:]))
	}

	gotH, err := UnmarshalBookRecordHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, gotH)
	for i := range levels {
		gotL, err := UnmarshalBookLevel(buf[BookRecordHeaderSize+i*BookLevelSize:])
		require.NoError(t, err)
		assert.Equal(t, levels[i], gotL)
	}
}

func TestIndexEntriesRoundTrip(t *testing.T) {
	entries := []IndexEntry{{TsNs: 1, Offset: 64}, {TsNs: 1000, Offset: 4096}, {TsNs: 2000, Offset: 8192}}
	raw := MarshalIndexEntries(entries)
	require.Len(t, raw, len(entries)*IndexEntrySize)

	got, err := UnmarshalIndexEntries(raw, len(entries))
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	ih := IndexHeader{EntryCount: 3, Interval: 1000, FirstNs: 1, LastNs: 2000, Checksum: Checksum(raw)}
	buf := make([]byte, IndexHeaderSize)
	require.NoError(t, ih.Marshal(buf))
	gotIh, err := UnmarshalIndexHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, ih, gotIh)
}

func TestShortBuffers(t *testing.T) {
	var sh SegmentHeader
	assert.ErrorIs(t, sh.Marshal(make([]byte, 10)), ErrShortBuffer)
	_, err := UnmarshalSegmentHeader(make([]byte, 10))
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = UnmarshalTradeRecord(make([]byte, TradeRecordSize-1))
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = UnmarshalIndexEntries(make([]byte, 15), 1)
	assert.ErrorIs(t, err, ErrShortBuffer)
}
