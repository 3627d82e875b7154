package recompress

import (
	"fmt"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/ops"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "recompress"
	short   = "Rewrite a segment under a different codec"
	long    = "This command copies a segment event by event, changing only the compression container. Use codec none to decompress"
	example = "floxlog ops recompress --file raw.floxlog --output raw-zstd.floxlog --codec zstd"

	filePathDesc    = "set the segment file to recompress"
	outputDesc      = "set the destination segment file"
	codecDesc       = "set the target codec (none, snappy, zstd)"
	blockEventsDesc = "set the compressed block size in events"
	createIndexDesc = "embed a sparse index in the output"
	verifyCRCDesc   = "verify frame checksums while reading"
)

var (
	filePath    string
	output      string
	codecName   string
	blockEvents int
	createIndex bool
	verifyCRC   bool

	// Cmd is the recompress command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeRecompress,
	}
)

func init() {
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", filePathDesc)
	Cmd.MarkFlagRequired("file")
	Cmd.Flags().StringVarP(&output, "output", "o", "", outputDesc)
	Cmd.MarkFlagRequired("output")
	Cmd.Flags().StringVar(&codecName, "codec", "", codecDesc)
	Cmd.MarkFlagRequired("codec")
	Cmd.Flags().IntVar(&blockEvents, "block-events", 0, blockEventsDesc)
	Cmd.Flags().BoolVar(&createIndex, "index", false, createIndexDesc)
	Cmd.Flags().BoolVar(&verifyCRC, "verify-crc", false, verifyCRCDesc)
}

func executeRecompress(cmd *cobra.Command, args []string) error {
	r := ops.Recompress(ops.RecompressConfig{
		Input:       filePath,
		Output:      output,
		Codec:       codecName,
		BlockEvents: blockEvents,
		CreateIndex: createIndex,
		VerifyCRC:   verifyCRC,
	})
	for _, e := range r.Errors {
		log.Error("%s", e)
	}
	if !r.OK() {
		return fmt.Errorf("recompress finished with %d errors", len(r.Errors))
	}
	log.Info("wrote %d events, %s", r.EventsWritten, bytefmt.ByteSize(r.BytesWritten))
	return nil
}
