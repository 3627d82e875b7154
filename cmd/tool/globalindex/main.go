package globalindex

import (
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/catalog"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "globalindex"
	short   = "Build the per-directory global index sidecar"
	long    = "This command summarizes every segment header into index.floxidx so readers can route time-range queries without opening segment files"
	example = "floxlog tool globalindex --dir /data/rec"

	dirPathDesc = "set the recording directory to index"
)

var (
	dirPath string

	// Cmd is the globalindex command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeGlobalIndex,
	}
)

func init() {
	Cmd.Flags().StringVarP(&dirPath, "dir", "d", "", dirPathDesc)
	Cmd.MarkFlagRequired("dir")
}

func executeGlobalIndex(cmd *cobra.Command, args []string) error {
	gi, err := catalog.BuildGlobalIndex(dirPath)
	if err != nil {
		return err
	}
	log.Info("%s: indexed %d segments, %d events", dirPath, len(gi.Entries), gi.TotalEvents())
	return nil
}
