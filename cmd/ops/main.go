package ops

import (
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/cmd/ops/export"
	"github.com/FLOX-Foundation/floxlog/cmd/ops/merge"
	"github.com/FLOX-Foundation/floxlog/cmd/ops/partition"
	"github.com/FLOX-Foundation/floxlog/cmd/ops/recompress"
	"github.com/FLOX-Foundation/floxlog/cmd/ops/split"
)

const (
	opsUsage     = "ops"
	opsShortDesc = "Executes dataset operations as subcommands"
	opsLongDesc  = "This command executes the specified dataset operation: merging, splitting, exporting, recompressing or partitioning recordings"
	opsExample   = "floxlog ops merge --output /data/merged [flags] a.floxlog b.floxlog"
)

var (
	// Cmd is the ops command.
	Cmd = &cobra.Command{
		Use:        opsUsage,
		Short:      opsShortDesc,
		Long:       opsLongDesc,
		SuggestFor: []string{"merge", "split", "export", "recompress", "partition"},
		Example:    opsExample,
	}
)

func init() {
	Cmd.AddCommand(merge.Cmd)
	Cmd.AddCommand(split.Cmd)
	Cmd.AddCommand(export.Cmd)
	Cmd.AddCommand(recompress.Cmd)
	Cmd.AddCommand(partition.Cmd)
}
