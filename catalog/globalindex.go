package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// GlobalIndexFilename is the binary sidecar mapping segment names to
// their time ranges. Like the manifest it is derived data.
const GlobalIndexFilename = "index.floxidx"

const (
	globalIndexMagic   = uint32(0x49584C46) // "FLXI" little-endian
	globalIndexVersion = uint16(1)
)

var (
	ErrNoGlobalIndex      = errors.New("catalog: directory has no global index")
	ErrGlobalIndexCorrupt = errors.New("catalog: global index is corrupt")
	ErrGlobalIndexStale   = errors.New("catalog: global index is older than the segments")
	ErrGlobalIndexVersion = errors.New("catalog: unsupported global index version")
)

// GlobalIndexEntry summarizes one segment inside the global index.
type GlobalIndexEntry struct {
	Name       string
	FirstNs    int64
	LastNs     int64
	EventCount uint64
}

// GlobalIndex routes time-range queries to segment files by name without
// opening any of them.
type GlobalIndex struct {
	Dir     string
	Entries []GlobalIndexEntry
}

// BuildGlobalIndex scans dir and writes index.floxidx. Entries are
// sorted by FirstNs; unreadable segments are skipped with a warning.
func BuildGlobalIndex(dir string) (*GlobalIndex, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+format.FileExt))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSegments, dir)
	}

	gi := &GlobalIndex{Dir: dir}
	for _, p := range paths {
		hdr, err := segment.ReadHeader(p)
		if err != nil {
			log.Warn("global index: skipping %s: %v", p, err)
			continue
		}
		gi.Entries = append(gi.Entries, GlobalIndexEntry{
			Name:       filepath.Base(p),
			FirstNs:    hdr.FirstNs,
			LastNs:     hdr.LastNs,
			EventCount: hdr.EventCount,
		})
	}
	if len(gi.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSegments, dir)
	}
	sort.Slice(gi.Entries, func(i, j int) bool {
		return gi.Entries[i].FirstNs < gi.Entries[j].FirstNs
	})

	if err := gi.save(); err != nil {
		return nil, err
	}
	return gi, nil
}

// LoadGlobalIndex reads and validates index.floxidx. A stale index (any
// segment newer than the sidecar) fails with ErrGlobalIndexStale so the
// caller can rebuild.
func LoadGlobalIndex(dir string) (*GlobalIndex, error) {
	path := filepath.Join(dir, GlobalIndexFilename)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoGlobalIndex, dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*"+format.FileExt))
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		sfi, err := os.Stat(p)
		if err == nil && sfi.ModTime().After(fi.ModTime()) {
			return nil, fmt.Errorf("%w: %s", ErrGlobalIndexStale, p)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	gi := &GlobalIndex{Dir: dir}
	if err := gi.unmarshal(data); err != nil {
		return nil, err
	}
	if len(gi.Entries) != len(paths) {
		return nil, fmt.Errorf("%w: entry count %d, segment count %d",
			ErrGlobalIndexStale, len(gi.Entries), len(paths))
	}
	return gi, nil
}

// SegmentsInRange returns the paths of segments overlapping the
// inclusive window [fromNs, toNs]; toNs == 0 means unbounded.
func (g *GlobalIndex) SegmentsInRange(fromNs, toNs int64) []string {
	f := segment.Filter{FromNs: fromNs, ToNs: toNs}
	var out []string
	for _, e := range g.Entries {
		if f.Overlaps(e.FirstNs, e.LastNs) {
			out = append(out, filepath.Join(g.Dir, e.Name))
		}
	}
	return out
}

// TotalEvents sums the per-segment event counts.
func (g *GlobalIndex) TotalEvents() uint64 {
	var n uint64
	for _, e := range g.Entries {
		n += e.EventCount
	}
	return n
}

// Layout: magic u32, version u16, reserved u16, count u32, then per
// entry: name length u16 + name bytes, FirstNs i64, LastNs i64,
// EventCount u64; trailing CRC32 over everything after the magic.
func (g *GlobalIndex) marshal() []byte {
	size := 12
	for _, e := range g.Entries {
		size += 2 + len(e.Name) + 24
	}
	buf := make([]byte, size, size+4)
	binary.LittleEndian.PutUint32(buf[0:4], globalIndexMagic)
	binary.LittleEndian.PutUint16(buf[4:6], globalIndexVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(g.Entries)))
	off := 12
	for _, e := range g.Entries {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(e.Name)))
		off += 2
		copy(buf[off:], e.Name)
		off += len(e.Name)
		binary.LittleEndian.PutUint64(buf[off:], uint64(e.FirstNs))
		binary.LittleEndian.PutUint64(buf[off+8:], uint64(e.LastNs))
		binary.LittleEndian.PutUint64(buf[off+16:], e.EventCount)
		off += 24
	}
	crc := format.Checksum(buf[4:])
	buf = buf[:size+4]
	binary.LittleEndian.PutUint32(buf[size:], crc)
	return buf
}

func (g *GlobalIndex) unmarshal(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("%w: too short", ErrGlobalIndexCorrupt)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != globalIndexMagic {
		return fmt.Errorf("%w: bad magic", ErrGlobalIndexCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != globalIndexVersion {
		return fmt.Errorf("%w: %d", ErrGlobalIndexVersion, v)
	}
	body, tail := data[:len(data)-4], data[len(data)-4:]
	if format.Checksum(body[4:]) != binary.LittleEndian.Uint32(tail) {
		return fmt.Errorf("%w: checksum mismatch", ErrGlobalIndexCorrupt)
	}

	count := int(binary.LittleEndian.Uint32(body[8:12]))
	off := 12
	g.Entries = make([]GlobalIndexEntry, 0, count)
	for i := 0; i < count; i++ {
		if off+2 > len(body) {
			return fmt.Errorf("%w: truncated entry %d", ErrGlobalIndexCorrupt, i)
		}
		nameLen := int(binary.LittleEndian.Uint16(body[off:]))
		off += 2
		if off+nameLen+24 > len(body) {
			return fmt.Errorf("%w: truncated entry %d", ErrGlobalIndexCorrupt, i)
		}
		e := GlobalIndexEntry{
			Name:       string(body[off : off+nameLen]),
			FirstNs:    int64(binary.LittleEndian.Uint64(body[off+nameLen:])),
			LastNs:     int64(binary.LittleEndian.Uint64(body[off+nameLen+8:])),
			EventCount: binary.LittleEndian.Uint64(body[off+nameLen+16:]),
		}
		off += nameLen + 24
		g.Entries = append(g.Entries, e)
	}
	return nil
}

func (g *GlobalIndex) save() error {
	return os.WriteFile(filepath.Join(g.Dir, GlobalIndexFilename), g.marshal(), 0o644)
}
