package planner

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrShortPartition = errors.New("planner: buffer too short for partition")

const partitionFixedSize = 4 + 8 + 8 + 8 + 8 + 8 + 2 + 2

// MarshaledSize returns the exact size Marshal will produce.
func (p *Partition) MarshaledSize() int {
	size := partitionFixedSize + 4*len(p.SymbolIDs)
	for _, path := range p.SegmentPaths {
		size += 2 + len(path)
	}
	return size
}

// Marshal encodes the partition into a compact little-endian wire form
// suitable for handing to a remote replay worker.
func (p *Partition) Marshal() []byte {
	buf := make([]byte, p.MarshaledSize())
	binary.LittleEndian.PutUint32(buf[0:4], p.Index)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(p.FromNs))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(p.ToNs))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(p.WarmupFromNs))
	binary.LittleEndian.PutUint64(buf[28:36], p.EstimatedEvents)
	binary.LittleEndian.PutUint64(buf[36:44], uint64(p.EstimatedBytes))
	binary.LittleEndian.PutUint16(buf[44:46], uint16(len(p.SymbolIDs)))
	binary.LittleEndian.PutUint16(buf[46:48], uint16(len(p.SegmentPaths)))
	off := partitionFixedSize
	for _, id := range p.SymbolIDs {
		binary.LittleEndian.PutUint32(buf[off:], id)
		off += 4
	}
	for _, path := range p.SegmentPaths {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(path)))
		off += 2
		copy(buf[off:], path)
		off += len(path)
	}
	return buf
}

// UnmarshalPartition decodes a partition produced by Marshal.
func UnmarshalPartition(buf []byte) (Partition, error) {
	var p Partition
	if len(buf) < partitionFixedSize {
		return p, ErrShortPartition
	}
	p.Index = binary.LittleEndian.Uint32(buf[0:4])
	p.FromNs = int64(binary.LittleEndian.Uint64(buf[4:12]))
	p.ToNs = int64(binary.LittleEndian.Uint64(buf[12:20]))
	p.WarmupFromNs = int64(binary.LittleEndian.Uint64(buf[20:28]))
	p.EstimatedEvents = binary.LittleEndian.Uint64(buf[28:36])
	p.EstimatedBytes = int64(binary.LittleEndian.Uint64(buf[36:44]))
	nSymbols := int(binary.LittleEndian.Uint16(buf[44:46]))
	nPaths := int(binary.LittleEndian.Uint16(buf[46:48]))

	off := partitionFixedSize
	if len(buf) < off+4*nSymbols {
		return p, ErrShortPartition
	}
	if nSymbols > 0 {
		p.SymbolIDs = make([]uint32, nSymbols)
		for i := range p.SymbolIDs {
			p.SymbolIDs[i] = binary.LittleEndian.Uint32(buf[off:])
			off += 4
		}
	}
	for i := 0; i < nPaths; i++ {
		if len(buf) < off+2 {
			return p, ErrShortPartition
		}
		n := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if len(buf) < off+n {
			return p, ErrShortPartition
		}
		p.SegmentPaths = append(p.SegmentPaths, string(buf[off:off+n]))
		off += n
	}
	return p, nil
}

// Describe renders the partition as indented JSON with human-readable
// timestamps alongside the raw nanosecond fields.
func (p *Partition) Describe() ([]byte, error) {
	aux := struct {
		Partition
		From   string `json:"from"`
		To     string `json:"to"`
		Warmup string `json:"warmup_from"`
	}{
		Partition: *p,
		From:      time.Unix(0, p.FromNs).UTC().Format(time.RFC3339Nano),
		To:        time.Unix(0, p.ToNs).UTC().Format(time.RFC3339Nano),
		Warmup:    time.Unix(0, p.WarmupFromNs).UTC().Format(time.RFC3339Nano),
	}
	return json.MarshalIndent(aux, "", "  ")
}

func (p *Partition) String() string {
	return fmt.Sprintf("partition %d [%s, %s] segments=%d est_events=%d",
		p.Index,
		time.Unix(0, p.FromNs).UTC().Format(time.RFC3339),
		time.Unix(0, p.ToNs).UTC().Format(time.RFC3339),
		len(p.SegmentPaths), p.EstimatedEvents)
}
