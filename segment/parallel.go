package segment

import (
	"container/heap"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/utils/log"
	"github.com/FLOX-Foundation/floxlog/utils/pool"
)

// ParallelConfig configures the multi-segment reader.
type ParallelConfig struct {
	Dir     string
	FromNs  int64
	ToNs    int64
	Symbols []uint32
	// NumWorkers caps concurrent per-segment tasks; GOMAXPROCS if zero.
	NumWorkers int
	// Sorted buffers every segment in memory and k-way merges delivery
	// into global timestamp order. Unsorted streams each segment as soon
	// as it is read, with callback invocations serialized.
	Sorted    bool
	VerifyCRC bool
}

// ParallelReader fans a directory of segments across a worker pool.
//
// Unsorted mode contract: callback invocations are serialized across
// worker tasks, so the caller's handler needs no locking of its own.
// Returning false from the handler stops delivery; in unsorted mode the
// stop is best-effort since in-flight tasks check the flag between
// events only.
type ParallelReader struct {
	cfg    ParallelConfig
	filter Filter
}

// NewParallelReader builds a reader over cfg.Dir.
func NewParallelReader(cfg ParallelConfig) *ParallelReader {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.GOMAXPROCS(0)
	}
	return &ParallelReader{
		cfg:    cfg,
		filter: NewFilter(cfg.FromNs, cfg.ToNs, cfg.Symbols),
	}
}

// qualifyingSegments lists segments whose header time range overlaps the
// filter, sorted by first timestamp. Unreadable files are skipped with a
// warning rather than failing the whole scan.
func (r *ParallelReader) qualifyingSegments() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(r.cfg.Dir, "*"+format.FileExt))
	if err != nil {
		return nil, err
	}
	type seg struct {
		path    string
		firstNs int64
	}
	var segs []seg
	for _, p := range paths {
		hdr, err := ReadHeader(p)
		if err != nil {
			log.Warn("skipping unreadable segment %s: %v", p, err)
			continue
		}
		if hdr.EventCount == 0 || !r.filter.Overlaps(hdr.FirstNs, hdr.LastNs) {
			continue
		}
		segs = append(segs, seg{p, hdr.FirstNs})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].firstNs < segs[j].firstNs })
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.path
	}
	return out, nil
}

// readSegment reads one segment fully, filtered, into a vector.
func (r *ParallelReader) readSegment(path string) ([]models.Event, error) {
	it, err := OpenIterator(path, IterOptions{VerifyCRC: r.cfg.VerifyCRC})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	if r.filter.FromNs > 0 && it.hdr.HasIndex() {
		if err := it.SeekToTimestamp(r.filter.FromNs); err != nil {
			return nil, err
		}
	}

	var out []models.Event
	var ev models.Event
	for {
		err := it.Next(&ev)
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		if r.filter.MatchEvent(&ev) {
			out = append(out, cloneEvent(&ev))
		}
	}
	return out, nil
}

// ForEach reads all qualifying segments and delivers events to h.
func (r *ParallelReader) ForEach(h models.EventHandler) error {
	paths, err := r.qualifyingSegments()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	// Small datasets skip the task machinery.
	if len(paths) <= 2 || r.cfg.NumWorkers == 1 {
		return r.forEachSequential(paths, h)
	}
	if r.cfg.Sorted {
		return r.forEachSorted(paths, h)
	}
	return r.forEachUnsorted(paths, h)
}

func (r *ParallelReader) forEachSequential(paths []string, h models.EventHandler) error {
	if r.cfg.Sorted {
		vectors, err := r.collect(paths, 1)
		if err != nil {
			return err
		}
		mergeDeliver(vectors, h)
		return nil
	}
	var firstErr error
	for _, p := range paths {
		events, err := r.readSegment(p)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", p, err)
		}
		for i := range events {
			if !h(&events[i]) {
				return firstErr
			}
		}
	}
	return firstErr
}

// collect reads every segment (filtered) into per-segment vectors,
// workers bounded at n.
func (r *ParallelReader) collect(paths []string, n int) ([][]models.Event, error) {
	vectors := make([][]models.Event, len(paths))
	errs := make([]error, len(paths))

	p := pool.NewPool(n, func(input interface{}) {
		i := input.(int)
		vectors[i], errs[i] = r.readSegment(paths[i])
	})
	c := make(chan interface{})
	go func() {
		for i := range paths {
			c <- i
		}
		close(c)
	}()
	p.Work(c)
	p.Wait()

	var firstErr error
	for i, err := range errs {
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", paths[i], err)
			}
			log.Error("parallel read of %s failed: %v", paths[i], err)
		}
	}
	return vectors, firstErr
}

func (r *ParallelReader) forEachSorted(paths []string, h models.EventHandler) error {
	vectors, err := r.collect(paths, r.cfg.NumWorkers)
	if err != nil {
		return err
	}
	mergeDeliver(vectors, h)
	return nil
}

func (r *ParallelReader) forEachUnsorted(paths []string, h models.EventHandler) error {
	var (
		mu      sync.Mutex
		stopped atomic.Bool
	)
	errs := make([]error, len(paths))

	p := pool.NewPool(r.cfg.NumWorkers, func(input interface{}) {
		i := input.(int)
		if stopped.Load() {
			return
		}
		events, err := r.readSegment(paths[i])
		if err != nil {
			errs[i] = err
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for j := range events {
			if stopped.Load() {
				return
			}
			if !h(&events[j]) {
				stopped.Store(true)
				return
			}
		}
	})
	c := make(chan interface{})
	go func() {
		for i := range paths {
			c <- i
		}
		close(c)
	}()
	p.Work(c)
	p.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	return nil
}

// ReadBatches delivers whole per-segment vectors instead of one-by-one
// callbacks. Batches arrive as segments complete; invocations are
// serialized.
func (r *ParallelReader) ReadBatches(h func(path string, events []models.Event) bool) error {
	paths, err := r.qualifyingSegments()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		stopped atomic.Bool
	)
	errs := make([]error, len(paths))

	n := r.cfg.NumWorkers
	if len(paths) <= 2 {
		n = 1
	}
	p := pool.NewPool(n, func(input interface{}) {
		i := input.(int)
		if stopped.Load() {
			return
		}
		events, err := r.readSegment(paths[i])
		if err != nil {
			errs[i] = err
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped.Load() {
			return
		}
		if !h(paths[i], events) {
			stopped.Store(true)
		}
	})
	c := make(chan interface{})
	go func() {
		for i := range paths {
			c <- i
		}
		close(c)
	}()
	p.Work(c)
	p.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	return nil
}

// segCursor walks one segment's buffered events during the k-way merge.
type segCursor struct {
	events []models.Event
	pos    int
	seq    int
}

type mergeHeap []*segCursor

func (m mergeHeap) Len() int { return len(m) }
func (m mergeHeap) Less(i, j int) bool {
	ti := m[i].events[m[i].pos].Timestamp()
	tj := m[j].events[m[j].pos].Timestamp()
	if ti != tj {
		return ti < tj
	}
	return m[i].seq < m[j].seq
}
func (m mergeHeap) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m *mergeHeap) Push(x interface{}) {
	*m = append(*m, x.(*segCursor))
}
func (m *mergeHeap) Pop() interface{} {
	old := *m
	n := len(old)
	x := old[n-1]
	*m = old[:n-1]
	return x
}

// mergeDeliver k-way merges the per-segment vectors by timestamp (ties
// broken by segment order) and feeds the handler until it stops.
func mergeDeliver(vectors [][]models.Event, h models.EventHandler) {
	hp := make(mergeHeap, 0, len(vectors))
	for i, v := range vectors {
		if len(v) > 0 {
			hp = append(hp, &segCursor{events: v, seq: i})
		}
	}
	heap.Init(&hp)
	for hp.Len() > 0 {
		c := hp[0]
		if !h(&c.events[c.pos]) {
			return
		}
		c.pos++
		if c.pos >= len(c.events) {
			heap.Pop(&hp)
		} else {
			heap.Fix(&hp, 0)
		}
	}
}

func cloneEvent(ev *models.Event) models.Event {
	return ev.Clone()
}
