package ops

import (
	"fmt"
	"io"
	"time"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// SplitMode selects how Split partitions the input.
type SplitMode int

const (
	SplitByDuration SplitMode = iota
	SplitByEventCount
	SplitByBytes
	SplitBySymbol
)

// SplitConfig drives Split. Exactly one of Duration / MaxEvents /
// MaxBytes is consulted, per Mode.
type SplitConfig struct {
	Input     string
	OutputDir string
	Mode      SplitMode

	Duration  time.Duration
	MaxEvents uint64
	MaxBytes  int64

	// NamePrefix names the outputs <prefix>-NNN.floxlog (or
	// <prefix>-symN.floxlog in symbol mode). Defaults to "part".
	NamePrefix string
	// Compression of the outputs; empty keeps the input's codec.
	Compression string
	CreateIndex bool
	VerifyCRC   bool
}

// Split cuts one segment file into several along the configured
// boundary.
func Split(cfg SplitConfig) Report {
	var r Report
	r.SegmentsIn = 1
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "part"
	}
	if cfg.Compression == "" {
		name, err := codecNameOf(cfg.Input)
		if err != nil {
			r.errorf("split: %s: %v", cfg.Input, err)
			return r
		}
		cfg.Compression = name
	}

	switch cfg.Mode {
	case SplitByBytes:
		if cfg.MaxBytes <= 0 {
			r.errorf("split: byte budget must be positive")
			return r
		}
		splitByWriterRotation(cfg, &r)
	case SplitByDuration:
		if cfg.Duration <= 0 {
			r.errorf("split: duration must be positive")
			return r
		}
		splitSequential(cfg, &r)
	case SplitByEventCount:
		if cfg.MaxEvents == 0 {
			r.errorf("split: event budget must be positive")
			return r
		}
		splitSequential(cfg, &r)
	case SplitBySymbol:
		splitBySymbol(cfg, &r)
	default:
		r.errorf("split: unknown mode %d", cfg.Mode)
	}
	log.Info("split %s into %d segments (%d events)", cfg.Input, r.SegmentsOut, r.EventsWritten)
	return r
}

func partName(prefix string, seq int) string {
	return fmt.Sprintf("%s-%03d%s", prefix, seq, format.FileExt)
}

// splitByWriterRotation leans on the writer's own size rotation.
func splitByWriterRotation(cfg SplitConfig, r *Report) {
	w, err := segment.NewWriter(segment.WriterConfig{
		Dir:             cfg.OutputDir,
		MaxSegmentBytes: cfg.MaxBytes,
		Compression:     cfg.Compression,
		CreateIndex:     cfg.CreateIndex,
		SegmentNamer:    func(seq int) string { return partName(cfg.NamePrefix, seq) },
	})
	if err != nil {
		r.errorf("split: %v", err)
		return
	}
	copyEvents(cfg.Input, segment.Filter{}, cfg.VerifyCRC, w, r)
	if err := w.Close(); err != nil {
		r.errorf("split: close: %v", err)
	}
	r.SegmentsOut = w.Stats().Segments
	r.BytesWritten = w.Stats().BytesWritten
}

// splitSequential cuts on duration or event-count boundaries, opening a
// fresh single-file writer per part.
func splitSequential(cfg SplitConfig, r *Report) {
	it, err := segment.OpenIterator(cfg.Input, segment.IterOptions{VerifyCRC: cfg.VerifyCRC})
	if err != nil {
		r.errorf("split: %s: %v", cfg.Input, err)
		return
	}
	defer it.Close()

	var w *segment.Writer
	var partEvents uint64
	var boundary int64
	seq := 0

	openPart := func() error {
		var err error
		w, err = segment.NewWriter(segment.WriterConfig{
			Dir:             cfg.OutputDir,
			MaxSegmentBytes: unboundedSegment,
			Compression:     cfg.Compression,
			CreateIndex:     cfg.CreateIndex,
			OutputFilename:  partName(cfg.NamePrefix, seq),
		})
		if err == nil {
			seq++
			partEvents = 0
		}
		return err
	}
	closePart := func() {
		if w == nil {
			return
		}
		if err := w.Close(); err != nil {
			r.errorf("split: close: %v", err)
		}
		r.SegmentsOut++
		r.BytesWritten += w.Stats().BytesWritten
		w = nil
	}
	defer closePart()

	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			return
		}
		if err != nil {
			r.errorf("split: %s: %v", cfg.Input, err)
			return
		}

		switch cfg.Mode {
		case SplitByDuration:
			if w != nil && ev.Timestamp() >= boundary {
				closePart()
			}
		case SplitByEventCount:
			if w != nil && partEvents >= cfg.MaxEvents {
				closePart()
			}
		}
		if w == nil {
			if err := openPart(); err != nil {
				r.errorf("split: %v", err)
				return
			}
			if cfg.Mode == SplitByDuration {
				boundary = ev.Timestamp() + cfg.Duration.Nanoseconds()
			}
		}

		if err := w.WriteEvent(&ev); err != nil {
			r.errorf("split: write: %v", err)
			return
		}
		partEvents++
		r.EventsWritten++
	}
}

// splitBySymbol keeps one lazily opened writer per symbol id.
func splitBySymbol(cfg SplitConfig, r *Report) {
	it, err := segment.OpenIterator(cfg.Input, segment.IterOptions{VerifyCRC: cfg.VerifyCRC})
	if err != nil {
		r.errorf("split: %s: %v", cfg.Input, err)
		return
	}
	defer it.Close()

	writers := make(map[uint32]*segment.Writer)
	defer func() {
		for _, w := range writers {
			if err := w.Close(); err != nil {
				r.errorf("split: close: %v", err)
			}
			r.SegmentsOut++
			r.BytesWritten += w.Stats().BytesWritten
		}
	}()

	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			return
		}
		if err != nil {
			r.errorf("split: %s: %v", cfg.Input, err)
			return
		}

		id := ev.SymbolID()
		w, ok := writers[id]
		if !ok {
			w, err = segment.NewWriter(segment.WriterConfig{
				Dir:             cfg.OutputDir,
				MaxSegmentBytes: unboundedSegment,
				Compression:     cfg.Compression,
				CreateIndex:     cfg.CreateIndex,
				OutputFilename:  fmt.Sprintf("%s-sym%d%s", cfg.NamePrefix, id, format.FileExt),
			})
			if err != nil {
				r.errorf("split: symbol %d: %v", id, err)
				return
			}
			writers[id] = w
		}
		if err := w.WriteEvent(&ev); err != nil {
			r.errorf("split: write: %v", err)
			return
		}
		r.EventsWritten++
	}
}
