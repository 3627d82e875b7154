package merge

import (
	"fmt"
	"path/filepath"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/models"
	"github.com/FLOX-Foundation/floxlog/ops"
	"github.com/FLOX-Foundation/floxlog/utils"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "merge [segments...]"
	short   = "Merge segment files into one output stream"
	long    = "This command merges the given segment files, optionally filtered by time window and symbol set. With --sorted the output is globally ordered by exchange timestamp"
	example = "floxlog ops merge --output /data/merged --sorted a.floxlog b.floxlog"

	outputDirDesc   = "set the output directory"
	outputNameDesc  = "set the first output segment's filename"
	sortedDesc      = "order the merged events globally by exchange timestamp"
	fromDesc        = "keep events at or after this time (RFC3339 or nanoseconds)"
	toDesc          = "keep events at or before this time (RFC3339 or nanoseconds)"
	symbolsDesc     = "keep only these symbol ids"
	symbolGlobDesc  = "keep only symbols whose name matches this pattern (needs metadata.json)"
	compressionDesc = "set the output codec (none, snappy, zstd)"
	createIndexDesc = "embed a sparse index in the outputs"
	maxBytesDesc    = "rotate outputs at this size (bytefmt, e.g. 256M)"
	verifyCRCDesc   = "verify frame checksums while reading"
	configDesc      = "load defaults from a yaml config file"
)

var (
	outputDir   string
	outputName  string
	sorted      bool
	fromStr     string
	toStr       string
	symbols     []uint
	symbolGlob  string
	compression string
	createIndex bool
	maxBytes    string
	verifyCRC   bool
	configPath  string

	// Cmd is the merge command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		Args:    cobra.MinimumNArgs(1),
		RunE:    executeMerge,
	}
)

func init() {
	Cmd.Flags().StringVarP(&outputDir, "output", "o", "", outputDirDesc)
	Cmd.MarkFlagRequired("output")
	Cmd.Flags().StringVar(&outputName, "name", "", outputNameDesc)
	Cmd.Flags().BoolVar(&sorted, "sorted", false, sortedDesc)
	Cmd.Flags().StringVar(&fromStr, "from", "", fromDesc)
	Cmd.Flags().StringVar(&toStr, "to", "", toDesc)
	Cmd.Flags().UintSliceVarP(&symbols, "symbols", "s", nil, symbolsDesc)
	Cmd.Flags().StringVar(&symbolGlob, "symbol-glob", "", symbolGlobDesc)
	Cmd.Flags().StringVar(&compression, "compression", "", compressionDesc)
	Cmd.Flags().BoolVar(&createIndex, "index", false, createIndexDesc)
	Cmd.Flags().StringVar(&maxBytes, "max-segment-bytes", "", maxBytesDesc)
	Cmd.Flags().BoolVar(&verifyCRC, "verify-crc", false, verifyCRCDesc)
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", configDesc)
}

func executeMerge(cmd *cobra.Command, args []string) error {
	cfg := ops.MergeConfig{
		Inputs:         args,
		OutputDir:      outputDir,
		OutputFilename: outputName,
		Sorted:         sorted,
		Compression:    compression,
		CreateIndex:    createIndex,
		VerifyCRC:      verifyCRC,
	}

	var err error
	if cfg.FromNs, err = utils.ParseTimeNs(fromStr); err != nil {
		return fmt.Errorf("bad --from: %w", err)
	}
	if cfg.ToNs, err = utils.ParseTimeNs(toStr); err != nil {
		return fmt.Errorf("bad --to: %w", err)
	}
	for _, s := range symbols {
		cfg.Symbols = append(cfg.Symbols, uint32(s))
	}
	if symbolGlob != "" {
		md, err := models.LoadMetadata(filepath.Dir(args[0]))
		if err != nil {
			return fmt.Errorf("--symbol-glob needs %s next to the inputs: %w", models.MetadataFilename, err)
		}
		ids, err := md.SymbolsMatching(symbolGlob)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no symbols match %q", symbolGlob)
		}
		cfg.Symbols = append(cfg.Symbols, ids...)
	}
	if maxBytes != "" {
		sz, err := bytefmt.ToBytes(maxBytes)
		if err != nil {
			return fmt.Errorf("bad --max-segment-bytes: %w", err)
		}
		cfg.MaxSegmentBytes = int64(sz)
	}

	if configPath != "" {
		fileCfg, err := utils.LoadConfig(configPath)
		if err != nil {
			return err
		}
		applyConfig(cmd, fileCfg, &cfg)
	}

	r := ops.Merge(cfg)
	for _, e := range r.Errors {
		log.Error("%s", e)
	}
	if !r.OK() {
		return fmt.Errorf("merge finished with %d errors", len(r.Errors))
	}
	log.Info("wrote %d events, %s", r.EventsWritten, bytefmt.ByteSize(r.BytesWritten))
	return nil
}

// applyConfig fills config-file values into settings the user did not
// set on the command line.
func applyConfig(cmd *cobra.Command, fileCfg *utils.Config, cfg *ops.MergeConfig) {
	if !cmd.Flags().Changed("from") {
		cfg.FromNs = fileCfg.FromNs
	}
	if !cmd.Flags().Changed("to") {
		cfg.ToNs = fileCfg.ToNs
	}
	if !cmd.Flags().Changed("symbols") && len(fileCfg.Symbols) > 0 {
		cfg.Symbols = fileCfg.Symbols
	}
	if !cmd.Flags().Changed("compression") {
		cfg.Compression = fileCfg.Compression
	}
	if !cmd.Flags().Changed("index") {
		cfg.CreateIndex = fileCfg.CreateIndex
	}
	if !cmd.Flags().Changed("verify-crc") {
		cfg.VerifyCRC = fileCfg.VerifyCRC
	}
	if !cmd.Flags().Changed("max-segment-bytes") && fileCfg.MaxSegmentBytes > 0 {
		cfg.MaxSegmentBytes = fileCfg.MaxSegmentBytes
	}
	if !cmd.Flags().Changed("sorted") {
		cfg.Sorted = fileCfg.SortOutput
	}
}
