package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
)

// MetadataFilename is the sidecar file the recorder maintains next to
// the segment files. It is human-readable configuration, not part of the
// binary log's integrity model.
const MetadataFilename = "metadata.json"

// Metadata describes one recording: exchange, instrument catalogue and
// observed time range. The recorder owns its lifecycle; the writer only
// persists an attached copy on close.
type Metadata struct {
	RecordingID string            `json:"recording_id"`
	Exchange    string            `json:"exchange"`
	Description string            `json:"description,omitempty"`
	Symbols     map[uint32]string `json:"symbols"`
	FirstNs     int64             `json:"first_ns"`
	LastNs      int64             `json:"last_ns"`
	Compressed  bool              `json:"compressed"`
	Indexed     bool              `json:"indexed"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewMetadata creates recording metadata with a fresh recording id.
func NewMetadata(exchange string) *Metadata {
	return &Metadata{
		RecordingID: uuid.NewString(),
		Exchange:    exchange,
		Symbols:     make(map[uint32]string),
		CreatedAt:   time.Now().UTC(),
	}
}

// AddSymbol registers a symbol id to name mapping.
func (m *Metadata) AddSymbol(id uint32, name string) {
	if m.Symbols == nil {
		m.Symbols = make(map[uint32]string)
	}
	m.Symbols[id] = name
}

// SymbolsMatching returns the ids whose names match the glob pattern,
// sorted ascending. Used by the CLI to turn "BTC*" into an id set.
func (m *Metadata) SymbolsMatching(pattern string) ([]uint32, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad symbol pattern %q: %w", pattern, err)
	}
	var ids []uint32
	for id, name := range m.Symbols {
		if g.Match(name) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Save writes the metadata as indented JSON into dir.
func (m *Metadata) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MetadataFilename), data, 0o644)
}

// LoadMetadata reads the sidecar from dir; returns os.ErrNotExist
// wrapped when no sidecar is present.
func LoadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFilename))
	if err != nil {
		return nil, err
	}
	m := new(Metadata)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", MetadataFilename, err)
	}
	return m, nil
}
