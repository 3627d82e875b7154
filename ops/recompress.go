package ops

import (
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// RecompressConfig drives Recompress: rewrite one segment under a
// different codec ("" or "none" decompresses).
type RecompressConfig struct {
	Input  string
	Output string
	Codec  string
	// BlockEvents overrides the compressed block size; 0 keeps the
	// default.
	BlockEvents int
	CreateIndex bool
	VerifyCRC   bool
}

// Recompress copies a segment event by event under the target codec.
// The event stream is byte-identical after decoding; only the container
// changes.
func Recompress(cfg RecompressConfig) Report {
	var r Report
	r.SegmentsIn = 1

	dir, name := splitOutputPath(cfg.Output)
	w, err := segment.NewWriter(segment.WriterConfig{
		Dir:             dir,
		OutputFilename:  name,
		MaxSegmentBytes: unboundedSegment,
		Compression:     cfg.Codec,
		BlockEvents:     cfg.BlockEvents,
		CreateIndex:     cfg.CreateIndex,
	})
	if err != nil {
		r.errorf("recompress: %v", err)
		return r
	}

	copyEvents(cfg.Input, segment.Filter{}, cfg.VerifyCRC, w, &r)
	if err := w.Close(); err != nil {
		r.errorf("recompress: close: %v", err)
	}
	r.SegmentsOut = w.Stats().Segments
	r.BytesWritten = w.Stats().BytesWritten
	log.Info("recompressed %s -> %s (%d events, codec %q)", cfg.Input, cfg.Output, r.EventsWritten, cfg.Codec)
	return r
}
