package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/FLOX-Foundation/floxlog/catalog"
	"github.com/FLOX-Foundation/floxlog/planner"
	"github.com/FLOX-Foundation/floxlog/utils/log"
)

const (
	usage   = "partition"
	short   = "Slice a recording into replay partitions"
	long    = "This command loads a recording's manifest and emits partition descriptions, one JSON file per partition, for distribution to replay workers"
	example = "floxlog ops partition --dir /data/rec --output /data/parts --by-calendar day"

	dirPathDesc    = "set the recording directory"
	outputDirDesc  = "set the directory partition descriptions are written to"
	byCountDesc    = "split into this many equal time slices"
	byDurationDesc = "split at fixed wall-clock windows (e.g. 1h)"
	byCalendarDesc = "split at calendar boundaries: hour, day, week or month (UTC)"
	perSymbolDesc  = "one partition per symbol id"
	byEventsDesc   = "accumulate whole segments up to this many events"
	warmupDesc     = "extend each partition's read window backwards by this duration"
)

var (
	dirPath    string
	outputDir  string
	byCount    int
	byDuration time.Duration
	byCalendar string
	perSymbol  bool
	byEvents   uint64
	warmup     time.Duration

	// Cmd is the partition command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executePartition,
	}
)

func init() {
	Cmd.Flags().StringVarP(&dirPath, "dir", "d", "", dirPathDesc)
	Cmd.MarkFlagRequired("dir")
	Cmd.Flags().StringVarP(&outputDir, "output", "o", "", outputDirDesc)
	Cmd.MarkFlagRequired("output")
	Cmd.Flags().IntVar(&byCount, "by-count", 0, byCountDesc)
	Cmd.Flags().DurationVar(&byDuration, "by-duration", 0, byDurationDesc)
	Cmd.Flags().StringVar(&byCalendar, "by-calendar", "", byCalendarDesc)
	Cmd.Flags().BoolVar(&perSymbol, "per-symbol", false, perSymbolDesc)
	Cmd.Flags().Uint64Var(&byEvents, "by-events", 0, byEventsDesc)
	Cmd.Flags().DurationVar(&warmup, "warmup", 0, warmupDesc)
}

func executePartition(cmd *cobra.Command, args []string) error {
	m, err := catalog.LoadManifest(dirPath)
	if err != nil {
		return err
	}
	p := planner.NewPartitioner(m, warmup)

	var parts []planner.Partition
	switch {
	case byCount > 0:
		parts, err = p.PartitionByTime(byCount)
	case byDuration > 0:
		parts, err = p.PartitionByDuration(byDuration)
	case byCalendar != "":
		var unit planner.CalendarUnit
		switch byCalendar {
		case "hour":
			unit = planner.Hour
		case "day":
			unit = planner.Day
		case "week":
			unit = planner.Week
		case "month":
			unit = planner.Month
		default:
			return fmt.Errorf("unknown calendar unit %q", byCalendar)
		}
		parts, err = p.PartitionByCalendar(unit)
	case perSymbol:
		parts, err = p.PartitionPerSymbol()
	case byEvents > 0:
		parts, err = p.PartitionByEventCount(byEvents)
	default:
		return fmt.Errorf("one of --by-count, --by-duration, --by-calendar, --per-symbol or --by-events is required")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	for i := range parts {
		desc, err := parts[i].Describe()
		if err != nil {
			return err
		}
		name := fmt.Sprintf("partition-%03d.json", parts[i].Index)
		if err := os.WriteFile(filepath.Join(outputDir, name), desc, 0o644); err != nil {
			return err
		}
		log.Info("%s", parts[i].String())
	}
	log.Info("wrote %d partition descriptions to %s", len(parts), outputDir)
	return nil
}
