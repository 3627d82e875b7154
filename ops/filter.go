package ops

import (
	"io"

	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// FilterConfig drives Filter: copy Input to Output keeping only the
// events Keep accepts.
type FilterConfig struct {
	Input string
	// Output is the destination segment file path.
	Output string
	Keep   func(*models.Event) bool
	// Compression of the output; empty keeps the input's codec.
	Compression string
	CreateIndex bool
	VerifyCRC   bool
}

// Filter rewrites a segment with a caller-supplied predicate.
func Filter(cfg FilterConfig) Report {
	var r Report
	r.SegmentsIn = 1
	if cfg.Keep == nil {
		r.errorf("filter: no predicate given")
		return r
	}
	if cfg.Compression == "" {
		name, err := codecNameOf(cfg.Input)
		if err != nil {
			r.errorf("filter: %s: %v", cfg.Input, err)
			return r
		}
		cfg.Compression = name
	}

	dir, name := splitOutputPath(cfg.Output)
	w, err := segment.NewWriter(segment.WriterConfig{
		Dir:             dir,
		OutputFilename:  name,
		MaxSegmentBytes: unboundedSegment,
		Compression:     cfg.Compression,
		CreateIndex:     cfg.CreateIndex,
	})
	if err != nil {
		r.errorf("filter: %v", err)
		return r
	}

	it, err := segment.OpenIterator(cfg.Input, segment.IterOptions{VerifyCRC: cfg.VerifyCRC})
	if err != nil {
		r.errorf("filter: %s: %v", cfg.Input, err)
		w.Close()
		return r
	}
	defer it.Close()

	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			break
		}
		if err != nil {
			r.errorf("filter: %s: %v", cfg.Input, err)
			break
		}
		if !cfg.Keep(&ev) {
			continue
		}
		if err := w.WriteEvent(&ev); err != nil {
			r.errorf("filter: write: %v", err)
			break
		}
		r.EventsWritten++
	}

	if err := w.Close(); err != nil {
		r.errorf("filter: close: %v", err)
	}
	r.SegmentsOut = w.Stats().Segments
	r.BytesWritten = w.Stats().BytesWritten
	log.Info("filtered %s: kept %d events", cfg.Input, r.EventsWritten)
	return r
}

// ExtractSymbols copies only the given symbol ids into a new segment.
func ExtractSymbols(input, output string, symbols []uint32) Report {
	f := segment.NewFilter(0, 0, symbols)
	return Filter(FilterConfig{Input: input, Output: output, Keep: f.MatchEvent})
}

// ExtractTimeRange copies the inclusive window [fromNs, toNs] into a new
// segment.
func ExtractTimeRange(input, output string, fromNs, toNs int64) Report {
	f := segment.NewFilter(fromNs, toNs, nil)
	return Filter(FilterConfig{Input: input, Output: output, Keep: f.MatchEvent})
}
