package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"geoclim/internal/app"
	"geoclim/internal/config"
	"geoclim/internal/services"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate downloaded station files into monthly night means",
	Long: `Compute the mean of the configured field over night hours per station and
month, with a rolling multi-year average, and write one wide CSV per station.
Months with a high share of missing values are also written to a separate
file for review.`,
	Args: cobra.NoArgs,
	RunE: runAggregate,
}

var aggregateFlags struct {
	resource  string
	field     string
	years     string
	months    string
	stations  []string
	allActive bool
	night     string
	timezone  string
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().StringVar(&aggregateFlags.resource, "resource", "", "Dataset id the files were downloaded from (default from download.resource_id)")
	aggregateCmd.Flags().StringVar(&aggregateFlags.field, "field", "", "Measurement to average, e.g. tl (default from aggregation.field)")
	aggregateCmd.Flags().StringVar(&aggregateFlags.night, "night", "", "Night window FROM-TO, e.g. 22-5 (default from aggregation.night_window)")
	aggregateCmd.Flags().StringVar(&aggregateFlags.timezone, "tz", "", "Time zone for hour and month grouping (default from aggregation.timezone)")
	addPeriodFlags(aggregateCmd, &aggregateFlags.years, &aggregateFlags.months, &aggregateFlags.stations, &aggregateFlags.allActive)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if aggregateFlags.night != "" {
		cfg.Aggregation.NightWindow = aggregateFlags.night
	}
	if aggregateFlags.timezone != "" {
		cfg.Aggregation.Timezone = aggregateFlags.timezone
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	years, err := config.ParseYears(aggregateFlags.years)
	if err != nil {
		return err
	}
	startMonth, endMonth, err := config.ParseMonthRange(aggregateFlags.months)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := stationIDs(cmd, a, aggregateFlags.stations, aggregateFlags.allActive)
	if err != nil {
		return err
	}
	agg, err := a.Aggregation(app.AggregationTarget{
		ResourceID: aggregateFlags.resource,
		Field:      aggregateFlags.field,
	})
	if err != nil {
		return err
	}

	result, err := agg.Run(cmd.Context(), services.AggregationRequest{
		StationIDs: ids,
		Years:      years,
		StartMonth: startMonth,
		EndMonth:   endMonth,
	})
	if err != nil {
		return err
	}

	for _, s := range result.Stations {
		line := fmt.Sprintf("%s %s: %d years from %d files -> %s", s.StationID, s.StationName, s.Rows, s.Files, s.AggregatePath)
		if s.Flagged > 0 {
			line += fmt.Sprintf(" (%d months flagged -> %s)", s.Flagged, s.FlaggedPath)
		}
		fmt.Println(line)
	}
	for _, e := range result.Errors {
		fmt.Printf("  SKIPPED %s\n", e)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d of %d stations not aggregated", len(result.Errors), len(ids))
	}
	return nil
}
