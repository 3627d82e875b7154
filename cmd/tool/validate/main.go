package validate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "validate"
	short   = "Evaluate segment structure and checksums"
	long    = "This command walks segment files, verifying headers, frame checksums, index integrity and event counts"
	example = "floxlog tool validate --dir /data/rec"

	filePathDesc = "set the single segment file to validate"
	dirPathDesc  = "set the directory whose segments are validated"
)

var (
	filePath string
	dirPath  string

	// Cmd is the validate command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeValidate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", filePathDesc)
	Cmd.Flags().StringVarP(&dirPath, "dir", "d", "", dirPathDesc)
}

func executeValidate(cmd *cobra.Command, args []string) error {
	var results []segment.ValidationResult
	switch {
	case filePath != "":
		results = []segment.ValidationResult{segment.Validate(filePath)}
	case dirPath != "":
		var err error
		results, err = segment.ValidateDir(dirPath)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --file or --dir is required")
	}

	bad := 0
	for _, res := range results {
		if res.OK {
			log.Info("%s: ok (%d events)", res.Path, res.ActualEvents)
			continue
		}
		bad++
		for _, issue := range res.Issues {
			log.Error("%s: %s at offset %d: %s", res.Path, issue.Kind, issue.Offset, issue.Detail)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d segments failed validation", bad, len(results))
	}
	return nil
}
