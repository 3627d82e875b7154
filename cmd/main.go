package cmd

import (
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/cmd/ops"
	"github.com/FLOX-Foundation/floxlog/cmd/tool"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

// Version is stamped by the build.
var Version = "dev"

var flagPrintVersion bool

// Execute builds the command tree and executes commands.
func Execute() error {
	c := &cobra.Command{
		Use:   "floxlog",
		Short: "Segmented binary market-data log toolkit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagPrintVersion {
				log.Info("version: %s", Version)
				return nil
			}
			return cmd.Usage()
		},
	}

	c.AddCommand(tool.Cmd)
	c.AddCommand(ops.Cmd)
	c.Flags().BoolVarP(&flagPrintVersion, "version", "v", false, "show the version info and exit")

	return c.Execute()
}
