package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "flox"
	subsystem = "floxlog"
)

var (
	// EventsWritten counts events appended through the segment writer.
	EventsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "events_written_total",
		Help:      "Number of events appended to segment files",
	})

	// BytesWritten counts payload+framing bytes flushed to segments.
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bytes_written_total",
		Help:      "Number of bytes written to segment files",
	})

	// SegmentsRotated counts size-threshold segment rotations.
	SegmentsRotated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "segments_rotated_total",
		Help:      "Number of segment rotations triggered by the size threshold",
	})

	// BlocksCompressed counts compression blocks flushed by the writer.
	BlocksCompressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "blocks_compressed_total",
		Help:      "Number of compressed blocks flushed by the writer",
	})

	// EventsRead counts events decoded by any reader.
	EventsRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "events_read_total",
		Help:      "Number of events decoded from segment files",
	})

	// ChecksumErrors counts CRC mismatches observed on frames or indexes.
	ChecksumErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "checksum_errors_total",
		Help:      "Number of CRC32 mismatches detected while reading",
	})
)
