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

// collectFrom seeks to ts and returns all timestamps >= ts.
func collectFrom(t *testing.T, path string, ts int64) []int64 {
	t.Helper()
	it, err := OpenIterator(path, IterOptions{VerifyCRC: true})
	require.NoError(t, err)
	defer it.Close()

	var got []int64
	require.NoError(t, it.ForEachFrom(ts, func(ev *models.Event) bool {
		got = append(got, ev.Timestamp())
		return true
	}))
	return got
}

func fullScanFrom(t *testing.T, path string, ts int64) []int64 {
	t.Helper()
	var got []int64
	for _, ev := range readAll(t, path, IterOptions{VerifyCRC: true}) {
		if ev.Timestamp() >= ts {
			got = append(got, ev.Timestamp())
		}
	}
	return got
}

// Seeking then scanning must never miss an event the unindexed full
// scan would have found.
func TestSeekMatchesFullScan(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  WriterConfig
	}{
		{"uncompressed", WriterConfig{CreateIndex: true, IndexInterval: 7}},
		{"compressed", WriterConfig{CreateIndex: true, Compression: "snappy", BlockEvents: 13}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			tc.cfg.Dir = dir
			tc.cfg.OutputFilename = "seg" + format.FileExt
			writeTrades(t, tc.cfg, 200)
			path := filepath.Join(dir, "seg"+format.FileExt)

			for _, ts := range []int64{0, 1e9, 1e9 + 1, int64(1e9 + 57e6), int64(1e9 + 123e6 + 1), int64(1e9 + 199e6), int64(1e9 + 300e6)} {
				assert.Equal(t, fullScanFrom(t, path, ts), collectFrom(t, path, ts), "seek ts=%d", ts)
			}
		})
	}
}

func TestSeekWithoutIndexFallsBackToFullScan(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt}, 50)
	path := filepath.Join(dir, "seg"+format.FileExt)

	got := collectFrom(t, path, int64(1e9+25e6))
	assert.Len(t, got, 25)
	assert.Equal(t, int64(1e9+25e6), got[0])
}

func TestIndexBuilderAddRemoveRebuild(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt}, 120)
	path := filepath.Join(dir, "seg"+format.FileExt)

	b := IndexBuilder{Interval: 10}
	has, err := b.HasIndex(path)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, b.BuildForSegment(path))
	has, err = b.HasIndex(path)
	require.NoError(t, err)
	assert.True(t, has)

	seekTs := int64(1e9 + 60e6)
	want := collectFrom(t, path, seekTs)

	// remove then rebuild reproduces equivalent seek behavior
	require.NoError(t, b.RemoveIndex(path))
	has, err = b.HasIndex(path)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, b.BuildForSegment(path))
	assert.Equal(t, want, collectFrom(t, path, seekTs))

	// rebuilding an already-indexed segment is idempotent
	require.NoError(t, b.BuildForSegment(path))
	assert.Equal(t, want, collectFrom(t, path, seekTs))

	res := Validate(path)
	assert.True(t, res.OK, "issues: %v", res.Issues)
}

func TestIndexBuilderCompressedSegment(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{
		Dir: dir, OutputFilename: "seg" + format.FileExt,
		Compression: "zstd", BlockEvents: 25,
	}, 100)
	path := filepath.Join(dir, "seg"+format.FileExt)

	b := IndexBuilder{}
	require.NoError(t, b.BuildForSegment(path))

	it, err := OpenIterator(path, IterOptions{})
	require.NoError(t, err)
	defer it.Close()
	require.NoError(t, it.LoadIndex())
	// one entry per flushed block
	assert.Len(t, it.index, 4)
	assert.Equal(t, collectFrom(t, path, int64(1e9+50e6)), fullScanFrom(t, path, int64(1e9+50e6)))
}

func TestValidateCleanSegment(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{
		Dir: dir, OutputFilename: "seg" + format.FileExt,
		CreateIndex: true, IndexInterval: 10,
	}, 100)

	res := Validate(filepath.Join(dir, "seg"+format.FileExt))
	assert.True(t, res.OK)
	assert.Equal(t, uint64(100), res.ActualEvents)
	assert.Empty(t, res.Issues)
}

func TestValidateMissingFile(t *testing.T) {
	res := Validate(filepath.Join(t.TempDir(), "nope"+format.FileExt))
	require.False(t, res.OK)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueFileNotFound, res.Issues[0].Kind)
}

func TestValidateDetectsFrameCorruption(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt}, 20)
	path := filepath.Join(dir, "seg"+format.FileExt)

	// flip one payload byte in the middle of the event region
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	off := int64(format.SegmentHeaderSize + 5*(format.FrameHeaderSize+format.TradeRecordSize) + format.FrameHeaderSize + 24)
	var b [1]byte
	_, err = f.ReadAt(b[:], off)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b[:], off)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res := Validate(path)
	require.False(t, res.OK)
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, IssueFrameCRC, res.Issues[0].Kind)
	// the scan stops at the corruption; five events were verified
	assert.Equal(t, uint64(5), res.ActualEvents)

	// the iterator refuses the corrupt frame rather than returning data
	it, err := OpenIterator(path, IterOptions{VerifyCRC: true})
	require.NoError(t, err)
	defer it.Close()
	var ev models.Event
	for i := 0; i < 5; i++ {
		require.NoError(t, it.Next(&ev))
	}
	assert.ErrorIs(t, it.Next(&ev), ErrChecksum)

	// corruption is not a repairable defect
	rep := Repairer{}
	_, err = rep.Repair(res)
	assert.Error(t, err)
}

func TestRepairerFixesCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt}, 30)
	path := filepath.Join(dir, "seg"+format.FileExt)

	// forge a wrong event count in the header
	hdr, err := ReadHeader(path)
	require.NoError(t, err)
	hdr.EventCount = 999
	var buf [format.SegmentHeaderSize]byte
	require.NoError(t, hdr.Marshal(buf[:]))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(buf[:], 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res := Validate(path)
	require.False(t, res.OK)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueCountMismatch, res.Issues[0].Kind)
	assert.Equal(t, uint64(30), res.ActualEvents)

	rep := Repairer{Backup: true}
	fixed, err := rep.Repair(res)
	require.NoError(t, err)
	assert.True(t, fixed)

	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)

	res = Validate(path)
	assert.True(t, res.OK, "issues: %v", res.Issues)
	hdr, err = ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), hdr.EventCount)
}

func TestRepairNoopOnValidSegment(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, OutputFilename: "seg" + format.FileExt}, 10)
	res := Validate(filepath.Join(dir, "seg"+format.FileExt))
	require.True(t, res.OK)

	rep := Repairer{}
	fixed, err := rep.Repair(res)
	require.NoError(t, err)
	assert.False(t, fixed)
}

func TestValidateDir(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{Dir: dir, MaxSegmentBytes: 2048}, 100)

	results, err := ValidateDir(dir)
	require.NoError(t, err)
	require.Greater(t, len(results), 1)
	var total uint64
	for _, r := range results {
		assert.True(t, r.OK, "%s: %v", r.Path, r.Issues)
		total += r.ActualEvents
	}
	assert.Equal(t, uint64(100), total)
}

func TestLoadIndexChecksumFailure(t *testing.T) {
	dir := t.TempDir()
	writeTrades(t, WriterConfig{
		Dir: dir, OutputFilename: "seg" + format.FileExt,
		CreateIndex: true, IndexInterval: 5,
	}, 50)
	path := filepath.Join(dir, "seg"+format.FileExt)

	hdr, err := ReadHeader(path)
	require.NoError(t, err)
	require.True(t, hdr.HasIndex())

	// flip a byte inside the entry array
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	off := int64(hdr.IndexOffset) + format.IndexHeaderSize + 3
	var b [1]byte
	_, err = f.ReadAt(b[:], off)
	require.NoError(t, err)
	b[0] ^= 0x55
	_, err = f.WriteAt(b[:], off)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	it, err := OpenIterator(path, IterOptions{})
	require.NoError(t, err)
	defer it.Close()
	assert.ErrorIs(t, it.LoadIndex(), ErrIndexChecksum)

	res := Validate(path)
	require.False(t, res.OK)
	found := false
	for _, issue := range res.Issues {
		if issue.Kind == IssueIndexCRC {
			found = true
		}
	}
	assert.True(t, found)

	// events themselves still read fine when the caller skips the index
	var n int
	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 50, n)
}
