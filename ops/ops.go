// Package ops implements offline dataset maintenance: merging, splitting,
// exporting, filtering and recompressing segment files. Operations work
// file by file, accumulate per-file errors and keep going, so one bad
// segment never aborts a batch.
package ops

import (
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/FLOX-Foundation/floxlog/codec"
	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/segment"
)

// Report summarizes one operation. Errors holds one string per failed
// input; partial progress before a failure is still counted.
type Report struct {
	SegmentsIn    int
	SegmentsOut   int
	EventsWritten uint64
	BytesWritten  uint64
	Errors        []string
}

// OK reports whether the operation completed without errors.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

func (r *Report) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// unboundedSegment disables size rotation for single-output operations.
const unboundedSegment = int64(math.MaxInt64)

// copyEvents streams the filtered contents of one segment into w.
func copyEvents(path string, f segment.Filter, verifyCRC bool, w *segment.Writer, r *Report) {
	it, err := segment.OpenIterator(path, segment.IterOptions{VerifyCRC: verifyCRC})
	if err != nil {
		r.errorf("%s: %v", path, err)
		return
	}
	defer it.Close()

	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			return
		}
		if err != nil {
			r.errorf("%s: %v", path, err)
			return
		}
		if !f.MatchEvent(&ev) {
			continue
		}
		if err := w.WriteEvent(&ev); err != nil {
			r.errorf("%s: write: %v", path, err)
			return
		}
		r.EventsWritten++
	}
}

// codecNameOf maps a segment's codec id back to its config name so an
// operation can preserve the input's compression by default.
func codecNameOf(path string) (string, error) {
	hdr, err := segment.ReadHeader(path)
	if err != nil {
		return "", err
	}
	c, err := codec.ByID(hdr.Codec)
	if err != nil {
		return "", err
	}
	return c.Name(), nil
}

// splitOutputPath resolves an output file path into the writer's
// dir/filename pair.
func splitOutputPath(path string) (dir, name string) {
	return filepath.Dir(path), filepath.Base(path)
}
