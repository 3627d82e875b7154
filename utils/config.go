package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v2"

	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// Config is the yaml configuration surface shared by the CLI tools. All
// fields are optional; command-line flags override whatever is set here.
type Config struct {
	DataDir         string
	OutputDir       string
	FromNs          int64
	ToNs            int64
	Symbols         []uint32
	VerifyCRC       bool
	MaxSegmentBytes int64
	CreateIndex     bool
	IndexInterval   int
	Compression     string
	NumThreads      int
	SortOutput      bool
}

// Parse fills the config from yaml bytes. Sizes accept bytefmt strings
// ("256M", "1G") and times accept RFC3339 or raw nanoseconds.
func (c *Config) Parse(data []byte) error {
	var aux struct {
		DataDir         string   `yaml:"data_dir"`
		OutputDir       string   `yaml:"output_dir"`
		From            string   `yaml:"from"`
		To              string   `yaml:"to"`
		Symbols         []uint32 `yaml:"symbols"`
		VerifyCRC       *bool    `yaml:"verify_crc"`
		MaxSegmentBytes string   `yaml:"max_segment_bytes"`
		CreateIndex     *bool    `yaml:"create_index"`
		IndexInterval   int      `yaml:"index_interval"`
		Compression     string   `yaml:"compression"`
		NumThreads      int      `yaml:"num_threads"`
		SortOutput      *bool    `yaml:"sort_output"`
		LogLevel        string   `yaml:"log_level"`
	}
	if err := yaml.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if aux.LogLevel != "" {
		log.SetLevelName(aux.LogLevel)
	}
	c.DataDir = aux.DataDir
	c.OutputDir = aux.OutputDir
	c.Symbols = aux.Symbols
	c.Compression = aux.Compression
	c.IndexInterval = aux.IndexInterval
	c.NumThreads = aux.NumThreads
	if aux.VerifyCRC != nil {
		c.VerifyCRC = *aux.VerifyCRC
	}
	if aux.CreateIndex != nil {
		c.CreateIndex = *aux.CreateIndex
	}
	if aux.SortOutput != nil {
		c.SortOutput = *aux.SortOutput
	}

	var err error
	if c.FromNs, err = ParseTimeNs(aux.From); err != nil {
		return fmt.Errorf("bad from time %q: %w", aux.From, err)
	}
	if c.ToNs, err = ParseTimeNs(aux.To); err != nil {
		return fmt.Errorf("bad to time %q: %w", aux.To, err)
	}

	if aux.MaxSegmentBytes != "" {
		sz, err := bytefmt.ToBytes(aux.MaxSegmentBytes)
		if err != nil {
			return fmt.Errorf("bad max_segment_bytes %q: %w", aux.MaxSegmentBytes, err)
		}
		c.MaxSegmentBytes = int64(sz)
	}
	return nil
}

// LoadConfig reads and parses a yaml config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := new(Config)
	if err := c.Parse(data); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseTimeNs accepts an RFC3339 timestamp or raw nanoseconds.
func ParseTimeNs(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixNano(), nil
	}
	var ns int64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &ns); err != nil {
		return 0, err
	}
	return ns, nil
}
