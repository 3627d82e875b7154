package export

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/ops"
	"github.com/FLOX-Foundation/floxlog/utils"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "export [segments...]"
	short   = "Export segment contents as CSV, JSON or JSON lines"
	long    = "This command decodes segment files into a text format, optionally filtered by time window and symbol set"
	example = "floxlog ops export --output trades.csv --format csv a.floxlog"

	outputDesc    = "set the destination file"
	formatDesc    = "set the output format: csv, json or jsonl"
	fromDesc      = "keep events at or after this time (RFC3339 or nanoseconds)"
	toDesc        = "keep events at or before this time (RFC3339 or nanoseconds)"
	symbolsDesc   = "keep only these symbol ids"
	verifyCRCDesc = "verify frame checksums while reading"
)

var (
	output     string
	formatName string
	fromStr    string
	toStr      string
	symbols    []uint
	verifyCRC  bool

	// Cmd is the export command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		Args:    cobra.MinimumNArgs(1),
		RunE:    executeExport,
	}
)

func init() {
	Cmd.Flags().StringVarP(&output, "output", "o", "", outputDesc)
	Cmd.MarkFlagRequired("output")
	Cmd.Flags().StringVar(&formatName, "format", "csv", formatDesc)
	Cmd.Flags().StringVar(&fromStr, "from", "", fromDesc)
	Cmd.Flags().StringVar(&toStr, "to", "", toDesc)
	Cmd.Flags().UintSliceVarP(&symbols, "symbols", "s", nil, symbolsDesc)
	Cmd.Flags().BoolVar(&verifyCRC, "verify-crc", false, verifyCRCDesc)
}

func executeExport(cmd *cobra.Command, args []string) error {
	cfg := ops.ExportConfig{
		Inputs:    args,
		Output:    output,
		VerifyCRC: verifyCRC,
	}
	switch formatName {
	case "csv":
		cfg.Format = ops.ExportCSV
	case "json":
		cfg.Format = ops.ExportJSON
	case "jsonl":
		cfg.Format = ops.ExportJSONLines
	default:
		return fmt.Errorf("unknown format %q", formatName)
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

	r := ops.Export(cfg)
	for _, e := range r.Errors {
		log.Error("%s", e)
	}
	if !r.OK() {
		return fmt.Errorf("export finished with %d errors", len(r.Errors))
	}
	log.Info("exported %d events to %s", r.EventsWritten, output)
	return nil
}
