package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigParse(t *testing.T) {
	var c Config
	err := c.Parse([]byte(`
data_dir: /var/lib/flox/data
output_dir: /tmp/out
from: 2024-01-02T00:00:00Z
to: "1704240000000000000"
symbols: [1, 2, 7]
verify_crc: true
max_segment_bytes: 256M
create_index: true
index_interval: 500
compression: snappy
num_threads: 8
sort_output: true
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/flox/data", c.DataDir)
	assert.Equal(t, []uint32{1, 2, 7}, c.Symbols)
	assert.True(t, c.VerifyCRC)
	assert.Equal(t, int64(256*1024*1024), c.MaxSegmentBytes)
	assert.Equal(t, 500, c.IndexInterval)
	assert.Equal(t, "snappy", c.Compression)
	assert.Equal(t, 8, c.NumThreads)
	assert.True(t, c.SortOutput)
	assert.Equal(t, int64(1704153600000000000), c.FromNs)
	assert.Equal(t, int64(1704240000000000000), c.ToNs)
}

func TestConfigParseEmpty(t *testing.T) {
	var c Config
	require.NoError(t, c.Parse([]byte("")))
	assert.Zero(t, c.FromNs)
	assert.Zero(t, c.MaxSegmentBytes)
}

func TestConfigParseBadSize(t *testing.T) {
	var c Config
	assert.Error(t, c.Parse([]byte("max_segment_bytes: twelve")))
}
