package repair

import (
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "repair"
	short   = "Fix repairable header defects found by validation"
	long    = "This command re-validates a segment and corrects a header event count that disagrees with the scanned count. Corrupt payloads are never rewritten"
	example = "floxlog tool repair --file /data/rec/1700000000.floxlog --backup"

	filePathDesc = "set the segment file to repair"
	backupDesc   = "copy the original to <file>.bak before modifying it"
)

var (
	filePath string
	backup   bool

	// Cmd is the repair command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeRepair,
	}
)

func init() {
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", filePathDesc)
	Cmd.MarkFlagRequired("file")
	Cmd.Flags().BoolVar(&backup, "backup", false, backupDesc)
}

func executeRepair(cmd *cobra.Command, args []string) error {
	res := segment.Validate(filePath)
	rep := segment.Repairer{Backup: backup}
	fixed, err := rep.Repair(res)
	if err != nil {
		return err
	}
	if !fixed {
		log.Info("%s: nothing to repair", filePath)
	}
	return nil
}
