package inspect

import (
	"fmt"
	"os"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/catalog"
	"github.com/FLOX-Foundation/floxlog/codec"
	"github.com/FLOX-Foundation/floxlog/segment"
)

const (
	usage   = "inspect"
	short   = "Print segment headers and directory summaries"
	long    = "This command decodes segment headers, or summarizes a whole recording directory via its manifest"
	example = "floxlog tool inspect --file /data/rec/1700000000.floxlog"

	filePathDesc = "set the segment file to inspect"
	dirPathDesc  = "set the recording directory to summarize"
)

var (
	filePath string
	dirPath  string

	// Cmd is the inspect command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeInspect,
	}
)

func init() {
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", filePathDesc)
	Cmd.Flags().StringVarP(&dirPath, "dir", "d", "", dirPathDesc)
}

func executeInspect(cmd *cobra.Command, args []string) error {
	switch {
	case filePath != "":
		return inspectFile(filePath)
	case dirPath != "":
		return inspectDir(dirPath)
	}
	return fmt.Errorf("either --file or --dir is required")
}

func inspectFile(path string) error {
	hdr, err := segment.ReadHeader(path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	c, err := codec.ByID(hdr.Codec)
	if err != nil {
		return err
	}

	fmt.Printf("segment:     %s\n", path)
	fmt.Printf("size:        %s\n", bytefmt.ByteSize(uint64(fi.Size())))
	fmt.Printf("version:     %d\n", hdr.Version)
	fmt.Printf("exchange id: %d\n", hdr.ExchangeID)
	fmt.Printf("codec:       %s\n", c.Name())
	fmt.Printf("compressed:  %t\n", hdr.Compressed())
	fmt.Printf("indexed:     %t (offset %d)\n", hdr.HasIndex(), hdr.IndexOffset)
	fmt.Printf("events:      %d\n", hdr.EventCount)
	fmt.Printf("created:     %s\n", fmtNs(hdr.CreatedNs))
	fmt.Printf("first event: %s\n", fmtNs(hdr.FirstNs))
	fmt.Printf("last event:  %s\n", fmtNs(hdr.LastNs))
	return nil
}

func inspectDir(dir string) error {
	m, err := catalog.LoadManifest(dir)
	if err != nil {
		return err
	}
	fmt.Printf("directory:    %s\n", m.Dir)
	fmt.Printf("segments:     %d\n", len(m.Segments))
	fmt.Printf("total events: %d\n", m.TotalEvents)
	fmt.Printf("total size:   %s\n", bytefmt.ByteSize(uint64(m.TotalBytes)))
	fmt.Printf("time range:   %s .. %s\n", fmtNs(m.FirstNs), fmtNs(m.LastNs))
	fmt.Printf("symbol ids:   %v\n", m.SymbolIDs)
	for _, s := range m.Segments {
		fmt.Printf("  %-40s %10d events  %8s  [%s, %s]\n",
			s.Path, s.EventCount, bytefmt.ByteSize(uint64(s.SizeBytes)),
			fmtNs(s.FirstNs), fmtNs(s.LastNs))
	}
	return nil
}

func fmtNs(ns int64) string {
	if ns == 0 {
		return "-"
	}
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}
