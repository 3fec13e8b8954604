package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/latecast/latecast/config"
	"github.com/latecast/latecast/core/schedule"
	"github.com/latecast/latecast/infra/feed"
	"github.com/latecast/latecast/infra/logger"
)

var timetableCmd = &cobra.Command{
	Use:   "timetable",
	Short: "Fetch the feed and print the reconciled schedule",
	RunE:  runTimetable,
}

func init() {
	rootCmd.AddCommand(timetableCmd)
}

func runTimetable(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	day, err := cfg.ServiceDay()
	if err != nil {
		return err
	}
	client, err := feed.NewClient(cfg.Feed, logger.New("feed"))
	if err != nil {
		return fmt.Errorf("feed client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	observations, err := client.Observations(ctx, day)
	if err != nil {
		return err
	}
	timetable, err := schedule.Reconcile(observations, cfg.ReconcilerConfig())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, trip := range timetable.Trips() {
		if trip.VehicleID != "" {
			fmt.Fprintf(out, "depart %s vehicle %s\n", trip.Departure.Format(time.TimeOnly), trip.VehicleID)
		} else {
			fmt.Fprintf(out, "depart %s\n", trip.Departure.Format(time.TimeOnly))
		}
	}

	buckets := timetable.Buckets()
	indices := make([]int, 0, len(buckets))
	for idx := range buckets {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		lt := buckets[idx]
		fmt.Fprintf(out, "bucket %s: mean %s stddev %s (%d pairs)\n",
			timetable.BucketStart(day, idx).Format(time.TimeOnly), lt.Mean, lt.StdDev, lt.Samples)
	}
	return nil
}
