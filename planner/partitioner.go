// Package planner slices a recording into partitions for distributed
// replay: by time, wall-clock duration, calendar boundary, symbol or
// event count. Partitions carry segment paths and prorated size
// estimates so a scheduler can bin-pack them without opening files.
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/FLOX-Foundation/floxlog/catalog"
)

// CalendarUnit selects the boundary for PartitionByCalendar.
type CalendarUnit int

const (
	Hour CalendarUnit = iota
	Day
	Week
	Month
)

func (u CalendarUnit) String() string {
	switch u {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	}
	return fmt.Sprintf("calendar-unit(%d)", int(u))
}

var (
	ErrBadPartitionCount = errors.New("planner: partition count must be positive")
	ErrBadDuration       = errors.New("planner: partition duration must be positive")
	ErrNoSymbols         = errors.New("planner: manifest has no symbols to partition by")
	ErrBadEventBudget    = errors.New("planner: event budget must be positive")
)

// Partition is one unit of replay work. The window [FromNs, ToNs] is
// inclusive; WarmupFromNs extends the read (not the window) backwards so
// a consumer can rebuild book state before FromNs. Estimates are
// prorated from segment headers and approximate by contract.
type Partition struct {
	Index           uint32   `json:"index"`
	FromNs          int64    `json:"from_ns"`
	ToNs            int64    `json:"to_ns"`
	WarmupFromNs    int64    `json:"warmup_from_ns"`
	SymbolIDs       []uint32 `json:"symbol_ids,omitempty"`
	SegmentPaths    []string `json:"segment_paths"`
	EstimatedEvents uint64   `json:"estimated_events"`
	EstimatedBytes  int64    `json:"estimated_bytes"`
}

// Partitioner derives partitions from a manifest. Warmup, when set,
// pushes each partition's read start back by that duration.
type Partitioner struct {
	Manifest *catalog.Manifest
	Warmup   time.Duration
}

// NewPartitioner wraps m with the given warmup.
func NewPartitioner(m *catalog.Manifest, warmup time.Duration) *Partitioner {
	return &Partitioner{Manifest: m, Warmup: warmup}
}

// PartitionByTime splits the manifest range into n equal windows.
func (p *Partitioner) PartitionByTime(n int) ([]Partition, error) {
	if n <= 0 {
		return nil, ErrBadPartitionCount
	}
	span := p.Manifest.LastNs - p.Manifest.FirstNs + 1
	if int64(n) > span {
		n = int(span)
	}
	step := span / int64(n)

	parts := make([]Partition, 0, n)
	from := p.Manifest.FirstNs
	for i := 0; i < n; i++ {
		to := from + step - 1
		if i == n-1 {
			to = p.Manifest.LastNs
		}
		parts = append(parts, p.build(uint32(i), from, to, nil))
		from = to + 1
	}
	return parts, nil
}

// PartitionByDuration tiles the range with fixed wall-clock windows; the
// final window is truncated to the manifest's LastNs.
func (p *Partitioner) PartitionByDuration(d time.Duration) ([]Partition, error) {
	if d <= 0 {
		return nil, ErrBadDuration
	}
	var parts []Partition
	from := p.Manifest.FirstNs
	for i := uint32(0); from <= p.Manifest.LastNs; i++ {
		to := from + d.Nanoseconds() - 1
		if to > p.Manifest.LastNs {
			to = p.Manifest.LastNs
		}
		parts = append(parts, p.build(i, from, to, nil))
		from = to + 1
	}
	return parts, nil
}

// PartitionByCalendar tiles the range on UTC calendar boundaries. The
// first window starts at the manifest's FirstNs, not the boundary before
// it, so partitions never reach outside the recording.
func (p *Partitioner) PartitionByCalendar(unit CalendarUnit) ([]Partition, error) {
	var parts []Partition
	from := p.Manifest.FirstNs
	for i := uint32(0); from <= p.Manifest.LastNs; i++ {
		boundary := nextBoundary(time.Unix(0, from).UTC(), unit).UnixNano()
		to := boundary - 1
		if to > p.Manifest.LastNs {
			to = p.Manifest.LastNs
		}
		parts = append(parts, p.build(i, from, to, nil))
		from = to + 1
	}
	return parts, nil
}

// PartitionBySymbol makes one partition per group, each spanning the
// whole recording and restricted to the group's symbol ids.
func (p *Partitioner) PartitionBySymbol(groups [][]uint32) ([]Partition, error) {
	if len(groups) == 0 {
		return nil, ErrNoSymbols
	}
	parts := make([]Partition, 0, len(groups))
	for i, g := range groups {
		part := p.build(uint32(i), p.Manifest.FirstNs, p.Manifest.LastNs, g)
		// events split across groups; a per-group share is the best guess
		part.EstimatedEvents /= uint64(len(groups))
		part.EstimatedBytes /= int64(len(groups))
		parts = append(parts, part)
	}
	return parts, nil
}

// PartitionPerSymbol assigns every manifest symbol its own partition.
func (p *Partitioner) PartitionPerSymbol() ([]Partition, error) {
	if len(p.Manifest.SymbolIDs) == 0 {
		return nil, ErrNoSymbols
	}
	groups := make([][]uint32, len(p.Manifest.SymbolIDs))
	for i, id := range p.Manifest.SymbolIDs {
		groups[i] = []uint32{id}
	}
	return p.PartitionBySymbol(groups)
}

// PartitionByEventCount accumulates whole segments until adding the
// next would exceed maxEvents. A segment larger than the budget still
// gets its own partition.
func (p *Partitioner) PartitionByEventCount(maxEvents uint64) ([]Partition, error) {
	if maxEvents == 0 {
		return nil, ErrBadEventBudget
	}
	var parts []Partition
	var cur []catalog.SegmentInfo
	var curEvents uint64
	flush := func() {
		if len(cur) == 0 {
			return
		}
		part := Partition{
			Index:  uint32(len(parts)),
			FromNs: cur[0].FirstNs,
			ToNs:   cur[len(cur)-1].LastNs,
		}
		part.WarmupFromNs = p.warmupFrom(part.FromNs)
		for _, s := range cur {
			part.SegmentPaths = append(part.SegmentPaths, s.Path)
			part.EstimatedEvents += s.EventCount
			part.EstimatedBytes += s.SizeBytes
		}
		parts = append(parts, part)
		cur, curEvents = nil, 0
	}
	for _, s := range p.Manifest.Segments {
		if len(cur) > 0 && curEvents+s.EventCount > maxEvents {
			flush()
		}
		cur = append(cur, s)
		curEvents += s.EventCount
	}
	flush()
	return parts, nil
}

// build assembles one partition over the inclusive window [from, to].
func (p *Partitioner) build(index uint32, from, to int64, symbols []uint32) Partition {
	part := Partition{
		Index:        index,
		FromNs:       from,
		ToNs:         to,
		WarmupFromNs: p.warmupFrom(from),
		SymbolIDs:    symbols,
	}
	for _, s := range p.Manifest.SegmentsInRange(part.WarmupFromNs, to) {
		part.SegmentPaths = append(part.SegmentPaths, s.Path)
	}
	part.EstimatedEvents, part.EstimatedBytes = p.estimateStats(from, to)
	return part
}

func (p *Partitioner) warmupFrom(from int64) int64 {
	w := from - p.Warmup.Nanoseconds()
	if w < p.Manifest.FirstNs {
		w = p.Manifest.FirstNs
	}
	return w
}

// estimateStats prorates each overlapping segment's events and bytes by
// its time overlap with [from, to].
func (p *Partitioner) estimateStats(from, to int64) (uint64, int64) {
	var events float64
	var bytes float64
	for _, s := range p.Manifest.SegmentsInRange(from, to) {
		span := s.LastNs - s.FirstNs + 1
		lo, hi := s.FirstNs, s.LastNs
		if from > lo {
			lo = from
		}
		if to < hi {
			hi = to
		}
		frac := float64(hi-lo+1) / float64(span)
		events += frac * float64(s.EventCount)
		bytes += frac * float64(s.SizeBytes)
	}
	return uint64(events + 0.5), int64(bytes + 0.5)
}

// nextBoundary returns the first calendar boundary strictly after t.
func nextBoundary(t time.Time, unit CalendarUnit) time.Time {
	switch unit {
	case Hour:
		return t.Truncate(time.Hour).Add(time.Hour)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	case Week:
		// weeks begin on Monday
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (8 - int(d.Weekday())) % 7
		if offset == 0 {
			offset = 7
		}
		return d.AddDate(0, 0, offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	}
	return t.Truncate(time.Hour).Add(time.Hour)
}
