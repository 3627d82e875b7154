package ops

import (
	"io"
	"sort"

	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// MergeConfig drives Merge.
type MergeConfig struct {
	// Inputs are the segment files to merge, in priority order: when two
	// events carry the same timestamp, the earlier input wins.
	Inputs []string
	// OutputDir receives the merged segments.
	OutputDir string
	// OutputFilename fixes the first output segment's name.
	OutputFilename string
	// Sorted buffers and globally orders all events by exchange
	// timestamp. Unsorted streams inputs back to back.
	Sorted bool
	// FromNs/ToNs/Symbols filter the merged events (inclusive window).
	FromNs  int64
	ToNs    int64
	Symbols []uint32
	// Writer knobs for the output segments.
	Compression     string
	CreateIndex     bool
	IndexInterval   int
	MaxSegmentBytes int64
	ExchangeID      uint32
	VerifyCRC       bool
}

// Merge combines the input segments into one output stream. A merge
// that writes no events reports an error: an empty merge output is
// never what the caller wanted.
func Merge(cfg MergeConfig) Report {
	var r Report
	r.SegmentsIn = len(cfg.Inputs)
	if len(cfg.Inputs) == 0 {
		r.errorf("merge: no input segments")
		return r
	}

	w, err := segment.NewWriter(segment.WriterConfig{
		Dir:             cfg.OutputDir,
		ExchangeID:      cfg.ExchangeID,
		MaxSegmentBytes: cfg.MaxSegmentBytes,
		Compression:     cfg.Compression,
		CreateIndex:     cfg.CreateIndex,
		IndexInterval:   cfg.IndexInterval,
		OutputFilename:  cfg.OutputFilename,
	})
	if err != nil {
		r.errorf("merge: %v", err)
		return r
	}

	f := segment.NewFilter(cfg.FromNs, cfg.ToNs, cfg.Symbols)
	if cfg.Sorted {
		mergeSorted(cfg, f, w, &r)
	} else {
		for _, path := range cfg.Inputs {
			copyEvents(path, f, cfg.VerifyCRC, w, &r)
		}
	}

	if err := w.Close(); err != nil {
		r.errorf("merge: close: %v", err)
	}
	r.SegmentsOut = w.Stats().Segments
	r.BytesWritten = w.Stats().BytesWritten
	if r.EventsWritten == 0 {
		r.errorf("merge: no events written")
	}
	log.Info("merged %d segments into %d (%d events)", r.SegmentsIn, r.SegmentsOut, r.EventsWritten)
	return r
}

// mergeSorted buffers every matching event, then orders globally by
// timestamp. The sort is stable so equal timestamps keep input order.
func mergeSorted(cfg MergeConfig, f segment.Filter, w *segment.Writer, r *Report) {
	var events []models.Event
	for _, path := range cfg.Inputs {
		it, err := segment.OpenIterator(path, segment.IterOptions{VerifyCRC: cfg.VerifyCRC})
		if err != nil {
			r.errorf("%s: %v", path, err)
			continue
		}
		var ev models.Event
		for {
			err := it.Next(&ev)
			if err == io.EOF {
				break
			}
			if err != nil {
				r.errorf("%s: %v", path, err)
				break
			}
			if f.MatchEvent(&ev) {
				events = append(events, ev.Clone())
			}
		}
		it.Close()
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp() < events[j].Timestamp()
	})
	for i := range events {
		if err := w.WriteEvent(&events[i]); err != nil {
			r.errorf("merge: write: %v", err)
			return
		}
		r.EventsWritten++
	}
}
