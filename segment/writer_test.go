package segment

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/models"
)

func testTrade(i int) format.TradeRecord {
	return format.TradeRecord{
		ExchangeTsNs: 1e9 + int64(i)*1e6,
		ReceiptTsNs:  1e9 + int64(i)*1e6 + 500,
		SymbolID:     uint32(i%3 + 1),
		Side:         uint8(i % 2),
		PriceRaw:     1000000 + int64(i),
		QtyRaw:       int64(i + 1),
	}
}

// writeTrades writes n sequential trades and closes the writer.
func writeTrades(t *testing.T, cfg WriterConfig, n int) *Writer {
	t.Helper()
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		tr := testTrade(i)
		require.NoError(t, w.WriteTrade(&tr))
	}
	require.NoError(t, w.Close())
	return w
}

func readAll(t *testing.T, path string, opts IterOptions) []models.Event {
	t.Helper()
	it, err := OpenIterator(path, opts)
	require.NoError(t, err)
	defer it.Close()

	var out []models.Event
	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, cloneEvent(&ev))
	}
	return out
}

func TestRoundTripUncompressed(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt}, 50)
	path := filepath.Join(dir, "seg"+format.FileExt)

	hdr, err := ReadHeader(path)
	require.NoError(t, err)
	assert.True(t, hdr.Valid())
	assert.False(t, hdr.Compressed())
	assert.Equal(t, uint64(50), hdr.EventCount)
	assert.Equal(t, int64(1e9), hdr.FirstNs)
	assert.Equal(t, int64(1e9+49e6), hdr.LastNs)

	events := readAll(t, path, IterOptions{VerifyCRC: true})
	require.Len(t, events, 50)
	for i, ev := range events {
		assert.Equal(t, format.EventTrade, ev.Type)
		assert.Equal(t, testTrade(i), ev.Trade)
	}
}

func TestRoundTripCompressed(t *testing.T) {
	for _, codecName := range []string{"snappy", "zstd"} {
		t.Run(codecName, func(t *testing.T) {
			dir := t.TempDir()
			writeTrades(t, WriterConfig{
				Dir:            dir,
				OutputFilename: "seg" + format.FileExt,
				Compression:    codecName,
				BlockEvents:    16, // several blocks plus a partial tail
				CreateIndex:    true,
			}, 100)
			path := filepath.Join(dir, "seg"+format.FileExt)

			hdr, err := ReadHeader(path)
			require.NoError(t, err)
			assert.True(t, hdr.Compressed())
			assert.True(t, hdr.HasIndex())
			assert.Equal(t, uint64(100), hdr.EventCount)

			events := readAll(t, path, IterOptions{VerifyCRC: true})
			require.Len(t, events, 100)
			for i, ev := range events {
				assert.Equal(t, testTrade(i), ev.Trade)
			}
		})
	}
}

func TestRoundTripBookEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt})
	require.NoError(t, err)

	hdr := format.BookRecordHeader{ExchangeTsNs: 2e9, ReceiptTsNs: 2e9 + 10, SymbolID: 5}
	bids := []format.BookLevel{{PriceRaw: 100, QtyRaw: 1}, {PriceRaw: 99, QtyRaw: 2}}
	asks := []format.BookLevel{{PriceRaw: 101, QtyRaw: 3}}
	require.NoError(t, w.WriteBookSnapshot(&hdr, bids, asks))

	dHdr := format.BookRecordHeader{ExchangeTsNs: 2e9 + 100, ReceiptTsNs: 2e9 + 110, SymbolID: 5}
	require.NoError(t, w.WriteBookDelta(&dHdr, nil, []format.BookLevel{{PriceRaw: 101, QtyRaw: 0}}))
	require.NoError(t, w.Close())

	events := readAll(t, filepath.Join(dir, "seg"+format.FileExt), IterOptions{VerifyCRC: true})
	require.Len(t, events, 2)

	assert.Equal(t, format.EventBookSnapshot, events[0].Type)
	assert.Equal(t, uint16(2), events[0].Book.Hdr.BidCount)
	assert.Equal(t, bids, events[0].Book.Bids)
	assert.Equal(t, asks, events[0].Book.Asks)

	assert.Equal(t, format.EventBookDelta, events[1].Type)
	assert.Empty(t, events[1].Book.Bids)
	assert.Equal(t, int64(0), events[1].Book.Asks[0].QtyRaw)
}

// A segment capped at 2048 bytes rotates under 100 trades while the
// combined event count stays exactly 100.
func TestRotationPreservesEvents(t *testing.T) {
	dir := t.TempDir()
	w := writeTrades(t, WriterConfig{Dir: dir, MaxSegmentBytes: 2048}, 100)
	assert.Greater(t, w.Stats().Segments, 1)
	assert.Equal(t, uint64(100), w.Stats().Events)

	paths, err := filepath.Glob(filepath.Join(dir, "*"+format.FileExt))
	require.NoError(t, err)
	require.Greater(t, len(paths), 1)

	var total uint64
	for _, p := range paths {
		hdr, err := ReadHeader(p)
		require.NoError(t, err)
		total += hdr.EventCount
		fi, err := os.Stat(p)
		require.NoError(t, err)
		assert.LessOrEqual(t, fi.Size(), int64(2048)+format.SegmentHeaderSize)
	}
	assert.Equal(t, uint64(100), total)
}

// Canonical boundary-inclusivity scenario: 1000 trades one millisecond
// apart starting at 1s; the window [1.5s, 1.7s] is inclusive on both
// ends and must yield exactly 201 events.
func TestTimeWindowInclusivity(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt})
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		tr := testTrade(i)
		require.NoError(t, w.WriteTrade(&tr))
	}
	require.NoError(t, w.Close())

	filter := NewFilter(int64(1.5e9), int64(1.7e9), nil)
	var got []int64
	it, err := OpenIterator(filepath.Join(dir, "seg"+format.FileExt), IterOptions{})
	require.NoError(t, err)
	defer it.Close()
	require.NoError(t, it.ForEach(func(ev *models.Event) bool {
		if filter.MatchEvent(ev) {
			got = append(got, ev.Timestamp())
		}
		return true
	}))

	require.Len(t, got, 201)
	assert.Equal(t, int64(1.5e9), got[0])
	assert.Equal(t, int64(1.7e9), got[200])
}

func TestSymbolFilter(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt}, 90)

	filter := NewFilter(0, 0, []uint32{2})
	n := 0
	it, err := OpenIterator(filepath.Join(dir, "seg"+format.FileExt), IterOptions{})
	require.NoError(t, err)
	defer it.Close()
	require.NoError(t, it.ForEach(func(ev *models.Event) bool {
		if filter.MatchEvent(ev) {
			assert.Equal(t, uint32(2), ev.SymbolID())
			n++
		}
		return true
	}))
	assert.Equal(t, 30, n)
}

func TestInvertedWindowYieldsNothing(t *testing.T) {
	f := NewFilter(100, 50, nil)
	assert.False(t, f.Match(75, 1))
	assert.False(t, f.Match(50, 1))
	assert.False(t, f.Match(100, 1))
}

func TestWriterFailsAfterClose(t *testing.T) {
	dir := t.TempDir()
	w := writeTrades(t, WriterConfig{Dir: dir}, 1)
	tr := testTrade(2)
	assert.ErrorIs(t, w.WriteTrade(&tr), ErrWriterClosed)
	assert.ErrorIs(t, w.Flush(), ErrWriterClosed)
	assert.NoError(t, w.Close())
}

func TestWriterPersistsMetadata(t *testing.T) {
	dir := t.TempDir()
	md := models.NewMetadata("deribit")
	w, err := NewWriter(WriterConfig{Dir: dir, Metadata: md, Compression: "snappy", CreateIndex: true})
	require.NoError(t, err)
	w.AddSymbol(1, "BTC-PERP")
	tr := testTrade(0)
	require.NoError(t, w.WriteTrade(&tr))
	require.NoError(t, w.Close())

	got, err := models.LoadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, "deribit", got.Exchange)
	assert.Equal(t, "BTC-PERP", got.Symbols[1])
	assert.Equal(t, int64(1e9), got.FirstNs)
	assert.True(t, got.Compressed)
	assert.True(t, got.Indexed)
}

func TestIteratorRefusesIndexRegion(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{
		Dir: dir, OutputFilename: "seg" + format.FileExt,
		CreateIndex: true, IndexInterval: 10,
	}, 100)
	path := filepath.Join(dir, "seg"+format.FileExt)

	hdr, err := ReadHeader(path)
	require.NoError(t, err)
	require.True(t, hdr.HasIndex())

	// The iterator must stop exactly at the index offset, yielding the
	// declared number of events despite trailing index bytes.
	events := readAll(t, path, IterOptions{VerifyCRC: true})
	assert.Len(t, events, 100)
}

func TestSegmentNamer(t *testing.T) {
	dir := t.TempDir()
	var names []string
	w, err := NewWriter(WriterConfig{
		Dir:             dir,
		MaxSegmentBytes: 1024,
		SegmentNamer: func(seq int) string {
			name := filepath.Base(dir) + "-" + string(rune('a'+seq)) + format.FileExt
			names = append(names, name)
			return name
		},
	})
	require.NoError(t, err)
	for i := 0; i < 60; i++ {
		tr := testTrade(i)
		require.NoError(t, w.WriteTrade(&tr))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, w.Stats().Segments, len(names))
	for _, n := range names {
		_, err := os.Stat(filepath.Join(dir, n))
		assert.NoError(t, err)
	}
}
