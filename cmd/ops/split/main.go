package split

import (
	"fmt"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/ops"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "split"
	short   = "Split one segment file along a boundary"
	long    = "This command cuts one segment into several, by wall-clock duration, event count, byte size or symbol"
	example = "floxlog ops split --file big.floxlog --output /data/parts --by-duration 1h"

	filePathDesc    = "set the segment file to split"
	outputDirDesc   = "set the output directory"
	byDurationDesc  = "cut at fixed wall-clock windows (e.g. 1h, 15m)"
	byEventsDesc    = "cut after this many events per part"
	byBytesDesc     = "cut at this output size per part (bytefmt, e.g. 64M)"
	bySymbolDesc    = "write one output per symbol id"
	prefixDesc      = "set the output filename prefix"
	compressionDesc = "set the output codec; default keeps the input's"
	createIndexDesc = "embed a sparse index in the outputs"
	verifyCRCDesc   = "verify frame checksums while reading"
)

var (
	filePath    string
	outputDir   string
	byDuration  time.Duration
	byEvents    uint64
	byBytes     string
	bySymbol    bool
	prefix      string
	compression string
	createIndex bool
	verifyCRC   bool

	// Cmd is the split command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeSplit,
	}
)

func init() {
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", filePathDesc)
	Cmd.MarkFlagRequired("file")
	Cmd.Flags().StringVarP(&outputDir, "output", "o", "", outputDirDesc)
	Cmd.MarkFlagRequired("output")
	Cmd.Flags().DurationVar(&byDuration, "by-duration", 0, byDurationDesc)
	Cmd.Flags().Uint64Var(&byEvents, "by-events", 0, byEventsDesc)
	Cmd.Flags().StringVar(&byBytes, "by-bytes", "", byBytesDesc)
	Cmd.Flags().BoolVar(&bySymbol, "by-symbol", false, bySymbolDesc)
	Cmd.Flags().StringVar(&prefix, "prefix", "part", prefixDesc)
	Cmd.Flags().StringVar(&compression, "compression", "", compressionDesc)
	Cmd.Flags().BoolVar(&createIndex, "index", false, createIndexDesc)
	Cmd.Flags().BoolVar(&verifyCRC, "verify-crc", false, verifyCRCDesc)
}

func executeSplit(cmd *cobra.Command, args []string) error {
	cfg := ops.SplitConfig{
		Input:       filePath,
		OutputDir:   outputDir,
		NamePrefix:  prefix,
		Compression: compression,
		CreateIndex: createIndex,
		VerifyCRC:   verifyCRC,
	}

	switch {
	case byDuration > 0:
		cfg.Mode = ops.SplitByDuration
		cfg.Duration = byDuration
	case byEvents > 0:
		cfg.Mode = ops.SplitByEventCount
		cfg.MaxEvents = byEvents
	case byBytes != "":
		sz, err := bytefmt.ToBytes(byBytes)
		if err != nil {
			return fmt.Errorf("bad --by-bytes: %w", err)
		}
		cfg.Mode = ops.SplitByBytes
		cfg.MaxBytes = int64(sz)
	case bySymbol:
		cfg.Mode = ops.SplitBySymbol
	default:
		return fmt.Errorf("one of --by-duration, --by-events, --by-bytes or --by-symbol is required")
	}

	r := ops.Split(cfg)
	for _, e := range r.Errors {
		log.Error("%s", e)
	}
	if !r.OK() {
		return fmt.Errorf("split finished with %d errors", len(r.Errors))
	}
	log.Info("wrote %d segments, %d events, %s", r.SegmentsOut, r.EventsWritten, bytefmt.ByteSize(r.BytesWritten))
	return nil
}
