// Package catalog summarizes a directory of segment files: the manifest
// (cached directory summary) and the global index sidecar used to route
// time-range queries to segments without opening them.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// ManifestFilename is the msgpack cache sidecar. It holds derived data
// only and is rebuilt whenever it falls behind the segment files.
const ManifestFilename = "manifest.floxman"

// symbolScanEvents bounds the per-segment prefix scan used to discover
// symbol ids. The manifest symbol set is approximate by contract; exact
// membership requires a full read.
const symbolScanEvents = 256

var ErrNoSegments = errors.New("catalog: directory contains no segment files")

// SegmentInfo is the per-segment summary, derived entirely from the
// segment header and the file size.
type SegmentInfo struct {
	Path        string `msgpack:"path"`
	FirstNs     int64  `msgpack:"first_ns"`
	LastNs      int64  `msgpack:"last_ns"`
	EventCount  uint64 `msgpack:"events"`
	Compressed  bool   `msgpack:"compressed"`
	HasIndex    bool   `msgpack:"has_index"`
	IndexOffset uint64 `msgpack:"index_offset"`
	SizeBytes   int64  `msgpack:"size"`
}

// Manifest summarizes one recording directory. Segments are sorted by
// FirstNs. The caller owns the manifest; nothing in the package keeps
// global state.
type Manifest struct {
	Dir         string        `msgpack:"dir"`
	Segments    []SegmentInfo `msgpack:"segments"`
	FirstNs     int64         `msgpack:"first_ns"`
	LastNs      int64         `msgpack:"last_ns"`
	SymbolIDs   []uint32      `msgpack:"symbol_ids"`
	TotalEvents uint64        `msgpack:"total_events"`
	TotalBytes  int64         `msgpack:"total_bytes"`
	BuiltAt     time.Time     `msgpack:"built_at"`
}

// BuildManifest scans dir, summarizes every readable segment and writes
// the msgpack cache. Unreadable files are skipped with a warning so one
// bad segment cannot hide the rest of the recording.
func BuildManifest(dir string) (*Manifest, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+format.FileExt))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSegments, dir)
	}

	m := &Manifest{Dir: dir, BuiltAt: time.Now().UTC()}
	symbols := make(map[uint32]struct{})
	for _, p := range paths {
		hdr, err := segment.ReadHeader(p)
		if err != nil {
			log.Warn("manifest: skipping %s: %v", p, err)
			continue
		}
		fi, err := os.Stat(p)
		if err != nil {
			log.Warn("manifest: skipping %s: %v", p, err)
			continue
		}
		m.Segments = append(m.Segments, SegmentInfo{
			Path:        p,
			FirstNs:     hdr.FirstNs,
			LastNs:      hdr.LastNs,
			EventCount:  hdr.EventCount,
			Compressed:  hdr.Compressed(),
			HasIndex:    hdr.HasIndex(),
			IndexOffset: hdr.IndexOffset,
			SizeBytes:   fi.Size(),
		})
		scanSymbols(p, symbols)
	}
	if len(m.Segments) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSegments, dir)
	}

	sort.Slice(m.Segments, func(i, j int) bool {
		return m.Segments[i].FirstNs < m.Segments[j].FirstNs
	})
	m.FirstNs = m.Segments[0].FirstNs
	for _, s := range m.Segments {
		if s.LastNs > m.LastNs {
			m.LastNs = s.LastNs
		}
		m.TotalEvents += s.EventCount
		m.TotalBytes += s.SizeBytes
	}

	// metadata.json, when present, knows the full instrument catalogue
	if md, err := models.LoadMetadata(dir); err == nil {
		for id := range md.Symbols {
			symbols[id] = struct{}{}
		}
	}
	m.SymbolIDs = make([]uint32, 0, len(symbols))
	for id := range symbols {
		m.SymbolIDs = append(m.SymbolIDs, id)
	}
	sort.Slice(m.SymbolIDs, func(i, j int) bool { return m.SymbolIDs[i] < m.SymbolIDs[j] })

	if err := m.Save(); err != nil {
		log.Warn("manifest: failed to write cache for %s: %v", dir, err)
	}
	return m, nil
}

// LoadManifest returns the cached manifest when it is at least as new as
// every segment file, otherwise rebuilds it.
func LoadManifest(dir string) (*Manifest, error) {
	cachePath := filepath.Join(dir, ManifestFilename)
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return BuildManifest(dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*"+format.FileExt))
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil || fi.ModTime().After(cacheInfo.ModTime()) {
			return BuildManifest(dir)
		}
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		return BuildManifest(dir)
	}
	m := new(Manifest)
	if err := msgpack.Unmarshal(data, m); err != nil {
		log.Warn("manifest: cache for %s is unreadable, rebuilding: %v", dir, err)
		return BuildManifest(dir)
	}
	if len(m.Segments) != len(paths) {
		return BuildManifest(dir)
	}
	return m, nil
}

// Save writes the msgpack cache next to the segments.
func (m *Manifest) Save() error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.Dir, ManifestFilename), data, 0o644)
}

// SegmentsInRange returns the segments whose time span overlaps the
// inclusive window [fromNs, toNs]. toNs == 0 means unbounded.
func (m *Manifest) SegmentsInRange(fromNs, toNs int64) []SegmentInfo {
	f := segment.Filter{FromNs: fromNs, ToNs: toNs}
	var out []SegmentInfo
	for _, s := range m.Segments {
		if f.Overlaps(s.FirstNs, s.LastNs) {
			out = append(out, s)
		}
	}
	return out
}

// HasSymbol reports whether id was observed in the bounded symbol scan
// or the metadata sidecar.
func (m *Manifest) HasSymbol(id uint32) bool {
	i := sort.Search(len(m.SymbolIDs), func(i int) bool { return m.SymbolIDs[i] >= id })
	return i < len(m.SymbolIDs) && m.SymbolIDs[i] == id
}

// scanSymbols reads the first events of a segment and records their
// symbol ids. Failures are ignored: the symbol set is best effort.
func scanSymbols(path string, into map[uint32]struct{}) {
	it, err := segment.OpenIterator(path, segment.IterOptions{})
	if err != nil {
		return
	}
	defer it.Close()

	var ev models.Event
	for i := 0; i < symbolScanEvents; i++ {
		if err := it.Next(&ev); err != nil {
			return
		}
		into[ev.SymbolID()] = struct{}{}
	}
}
