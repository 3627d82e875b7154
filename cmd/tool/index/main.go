package index

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/format"
	"github.com/FLOX-Foundation/floxlog/segment"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "index"
	short   = "Build or remove embedded sparse time indexes"
	long    = "This command rebuilds the sparse index trailer of segment files, or strips it with --remove"
	example = "floxlog tool index --dir /data/rec --interval 1000"

	filePathDesc = "set the single segment file to index"
	dirPathDesc  = "set the directory whose segments are indexed"
	intervalDesc = "set the sampling interval in events (uncompressed segments)"
	removeDesc   = "remove the index trailer instead of building one"
)

var (
	filePath string
	dirPath  string
	interval int
	remove   bool

	// Cmd is the index command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeIndex,
	}
)

func init() {
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", filePathDesc)
	Cmd.Flags().StringVarP(&dirPath, "dir", "d", "", dirPathDesc)
	Cmd.Flags().IntVar(&interval, "interval", segment.DefaultIndexInterval, intervalDesc)
	Cmd.Flags().BoolVar(&remove, "remove", false, removeDesc)
}

func executeIndex(cmd *cobra.Command, args []string) error {
	var paths []string
	switch {
	case filePath != "":
		paths = []string{filePath}
	case dirPath != "":
		var err error
		paths, err = filepath.Glob(filepath.Join(dirPath, "*"+format.FileExt))
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --file or --dir is required")
	}

	b := segment.IndexBuilder{Interval: interval}
	for _, path := range paths {
		var err error
		if remove {
			err = b.RemoveIndex(path)
		} else {
			err = b.BuildForSegment(path)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Info("%s: done", path)
	}
	return nil
}
