package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLOX-Foundation/floxlog/catalog"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixNano()

const hour = int64(time.Hour)

// testManifest is four hour-aligned segments; segment "c" is twice the
// size of the others.
func testManifest() *catalog.Manifest {
	seg := func(path string, idx int, events uint64, bytes int64) catalog.SegmentInfo {
		return catalog.SegmentInfo{
			Path:       path,
			FirstNs:    base + int64(idx)*hour,
			LastNs:     base + int64(idx+1)*hour - 1,
			EventCount: events,
			SizeBytes:  bytes,
		}
	}
	return &catalog.Manifest{
		Dir: "/data/rec",
		Segments: []catalog.SegmentInfo{
			seg("/data/rec/a.floxlog", 0, 1000, 64000),
			seg("/data/rec/b.floxlog", 1, 1000, 64000),
			seg("/data/rec/c.floxlog", 2, 2000, 128000),
			seg("/data/rec/d.floxlog", 3, 1000, 64000),
		},
		FirstNs:     base,
		LastNs:      base + 4*hour - 1,
		SymbolIDs:   []uint32{1, 2, 3},
		TotalEvents: 5000,
		TotalBytes:  320000,
	}
}

func TestPartitionByTimeTilesTheRange(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)
	parts, err := p.PartitionByTime(4)
	require.NoError(t, err)
	require.Len(t, parts, 4)

	assert.Equal(t, base, parts[0].FromNs)
	assert.Equal(t, base+4*hour-1, parts[3].ToNs)
	for i := 1; i < len(parts); i++ {
		assert.Equal(t, parts[i-1].ToNs+1, parts[i].FromNs, "partitions must tile without gaps")
	}

	// hour-aligned windows land exactly on the segments
	wantEvents := []uint64{1000, 1000, 2000, 1000}
	var total uint64
	for i, part := range parts {
		assert.Equal(t, uint32(i), part.Index)
		assert.Equal(t, wantEvents[i], part.EstimatedEvents)
		assert.Len(t, part.SegmentPaths, 1)
		total += part.EstimatedEvents
	}
	assert.Equal(t, uint64(5000), total)
}

func TestPartitionByTimeProratesPartialOverlap(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)
	parts, err := p.PartitionByTime(8)
	require.NoError(t, err)
	require.Len(t, parts, 8)

	// half-hour windows see half of each segment
	assert.Equal(t, uint64(500), parts[0].EstimatedEvents)
	assert.Equal(t, uint64(1000), parts[4].EstimatedEvents)

	var total uint64
	for _, part := range parts {
		total += part.EstimatedEvents
	}
	assert.Equal(t, uint64(5000), total)
}

func TestWarmupExtendsReadsBackwards(t *testing.T) {
	p := NewPartitioner(testManifest(), 30*time.Minute)
	parts, err := p.PartitionByTime(4)
	require.NoError(t, err)

	// the first window cannot reach before the recording
	assert.Equal(t, base, parts[0].WarmupFromNs)

	// later windows pull in the previous segment for warmup
	assert.Equal(t, parts[1].FromNs-30*int64(time.Minute), parts[1].WarmupFromNs)
	assert.Equal(t, []string{"/data/rec/a.floxlog", "/data/rec/b.floxlog"}, parts[1].SegmentPaths)

	// estimates cover the window only, not the warmup tail
	assert.Equal(t, uint64(1000), parts[1].EstimatedEvents)
}

func TestPartitionByDuration(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)
	parts, err := p.PartitionByDuration(90 * time.Minute)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, base+90*int64(time.Minute)-1, parts[0].ToNs)
	// the final window is truncated to the recording's end
	assert.Equal(t, base+4*hour-1, parts[2].ToNs)
	assert.Less(t, parts[2].ToNs-parts[2].FromNs+1, 90*int64(time.Minute))
}

func TestPartitionByCalendar(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)

	parts, err := p.PartitionByCalendar(Hour)
	require.NoError(t, err)
	require.Len(t, parts, 4)
	for i, part := range parts {
		assert.Equal(t, base+int64(i)*hour, part.FromNs)
	}

	parts, err = p.PartitionByCalendar(Day)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, base, parts[0].FromNs)
	assert.Equal(t, base+4*hour-1, parts[0].ToNs)
}

func TestPartitionByCalendarUnalignedStart(t *testing.T) {
	m := testManifest()
	m.FirstNs = base + 45*int64(time.Minute)
	m.Segments[0].FirstNs = m.FirstNs

	p := NewPartitioner(m, 0)
	parts, err := p.PartitionByCalendar(Hour)
	require.NoError(t, err)
	require.Len(t, parts, 4)
	// first window runs from the recording start to the next boundary
	assert.Equal(t, m.FirstNs, parts[0].FromNs)
	assert.Equal(t, base+hour-1, parts[0].ToNs)
	assert.Equal(t, base+hour, parts[1].FromNs)
}

func TestPartitionBySymbol(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)
	parts, err := p.PartitionBySymbol([][]uint32{{1}, {2, 3}})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	for _, part := range parts {
		assert.Equal(t, base, part.FromNs)
		assert.Equal(t, base+4*hour-1, part.ToNs)
		assert.Len(t, part.SegmentPaths, 4)
	}
	assert.Equal(t, []uint32{1}, parts[0].SymbolIDs)
	assert.Equal(t, []uint32{2, 3}, parts[1].SymbolIDs)
}

func TestPartitionPerSymbol(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)
	parts, err := p.PartitionPerSymbol()
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for i, part := range parts {
		assert.Equal(t, []uint32{uint32(i + 1)}, part.SymbolIDs)
	}
}

func TestPartitionByEventCount(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)

	parts, err := p.PartitionByEventCount(2000)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, []string{"/data/rec/a.floxlog", "/data/rec/b.floxlog"}, parts[0].SegmentPaths)
	assert.Equal(t, uint64(2000), parts[0].EstimatedEvents)
	assert.Equal(t, []string{"/data/rec/c.floxlog"}, parts[1].SegmentPaths)
	assert.Equal(t, []string{"/data/rec/d.floxlog"}, parts[2].SegmentPaths)

	// a budget smaller than any segment still yields whole segments
	parts, err = p.PartitionByEventCount(500)
	require.NoError(t, err)
	assert.Len(t, parts, 4)
}

func TestPartitionerRejectsBadArguments(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)

	_, err := p.PartitionByTime(0)
	assert.ErrorIs(t, err, ErrBadPartitionCount)
	_, err = p.PartitionByDuration(0)
	assert.ErrorIs(t, err, ErrBadDuration)
	_, err = p.PartitionByEventCount(0)
	assert.ErrorIs(t, err, ErrBadEventBudget)
	_, err = p.PartitionBySymbol(nil)
	assert.ErrorIs(t, err, ErrNoSymbols)

	empty := testManifest()
	empty.SymbolIDs = nil
	_, err = NewPartitioner(empty, 0).PartitionPerSymbol()
	assert.ErrorIs(t, err, ErrNoSymbols)
}

func TestPartitionMarshalRoundTrip(t *testing.T) {
	p := NewPartitioner(testManifest(), 15*time.Minute)
	parts, err := p.PartitionByTime(3)
	require.NoError(t, err)
	parts[1].SymbolIDs = []uint32{2, 3}

	for _, part := range parts {
		buf := part.Marshal()
		assert.Len(t, buf, part.MarshaledSize())
		got, err := UnmarshalPartition(buf)
		require.NoError(t, err)
		assert.Equal(t, part, got)
	}

	_, err = UnmarshalPartition(parts[0].Marshal()[:10])
	assert.ErrorIs(t, err, ErrShortPartition)
	_, err = UnmarshalPartition(parts[1].Marshal()[:partitionFixedSize+2])
	assert.ErrorIs(t, err, ErrShortPartition)
}

func TestPartitionDescribe(t *testing.T) {
	p := NewPartitioner(testManifest(), 0)
	parts, err := p.PartitionByTime(2)
	require.NoError(t, err)

	desc, err := parts[0].Describe()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(desc), "2024-03-01T00:00:00Z"))
	assert.True(t, strings.Contains(string(desc), "\"segment_paths\""))
	assert.Contains(t, parts[0].String(), "partition 0")
}
