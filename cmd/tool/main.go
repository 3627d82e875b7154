package tool

import (
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/cmd/tool/globalindex"
	"github.com/FLOX-Foundation/floxlog/cmd/tool/index"
	"github.com/FLOX-Foundation/floxlog/cmd/tool/inspect"
	"github.com/FLOX-Foundation/floxlog/cmd/tool/repair"
	"github.com/FLOX-Foundation/floxlog/cmd/tool/validate"
)

const (
	toolUsage     = "tool"
	toolShortDesc = "Executes segment maintenance tools as subcommands"
	toolLongDesc  = "This command executes the specified maintenance tool against segment files"
	toolExample   = "floxlog tool validate --dir /data/rec [flags]"
)

var (
	// Cmd is the tool command.
	Cmd = &cobra.Command{
		Use:        toolUsage,
		Short:      toolShortDesc,
		Long:       toolLongDesc,
		SuggestFor: []string{"inspect", "validate", "repair", "index"},
		Example:    toolExample,
	}
)

func init() {
	Cmd.AddCommand(inspect.Cmd)
	Cmd.AddCommand(validate.Cmd)
	Cmd.AddCommand(repair.Cmd)
	Cmd.AddCommand(index.Cmd)
	Cmd.AddCommand(globalindex.Cmd)
}
