package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"geoclim/internal/app"
	"geoclim/internal/config"
	"geoclim/internal/services"
	"geoclim/internal/stations"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download station time series in resumable (year, chunk) units",
	Long: `Download hourly station data for every requested year, split into chunks of
station ids. Units already on disk are skipped, so an interrupted run can be
repeated and only fetches what is missing.`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

var downloadFlags struct {
	resource  string
	params    []string
	years     string
	months    string
	stations  []string
	allActive bool
	chunkSize int
	workers   int
}

// periodFlags are shared by download and aggregate.
func addPeriodFlags(cmd *cobra.Command, years, months *string, ids *[]string, allActive *bool) {
	cmd.Flags().StringVar(years, "years", "", "Years, e.g. 2020-2021 or 2018,2020")
	cmd.Flags().StringVar(months, "months", "1-12", "Month range, e.g. 6-8")
	cmd.Flags().StringSliceVar(ids, "stations", nil, "Station ids, e.g. 105,106")
	cmd.Flags().BoolVar(allActive, "all-active", false, "Use every active station of the dataset")
	cmd.MarkFlagRequired("years")
	cmd.MarkFlagsMutuallyExclusive("stations", "all-active")
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVar(&downloadFlags.resource, "resource", "", "Dataset id (default from download.resource_id)")
	downloadCmd.Flags().StringSliceVar(&downloadFlags.params, "param", nil, "Measurement codes, e.g. tl (default from download.measurements)")
	downloadCmd.Flags().IntVar(&downloadFlags.chunkSize, "chunk-size", 0, "Stations per request (default from download.chunk_size)")
	downloadCmd.Flags().IntVar(&downloadFlags.workers, "workers", 0, "Concurrent units (default from download.workers)")
	addPeriodFlags(downloadCmd, &downloadFlags.years, &downloadFlags.months, &downloadFlags.stations, &downloadFlags.allActive)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig((*config.Config).ValidateDownload)
	if err != nil {
		return err
	}
	years, err := config.ParseYears(downloadFlags.years)
	if err != nil {
		return err
	}
	startMonth, endMonth, err := config.ParseMonthRange(downloadFlags.months)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := stationIDs(cmd, a, downloadFlags.stations, downloadFlags.allActive)
	if err != nil {
		return err
	}

	req := services.BatchRequest{
		ResourceID:   orDefault(downloadFlags.resource, cfg.Download.ResourceID),
		Measurements: cfg.Download.Measurements,
		Years:        years,
		StartMonth:   startMonth,
		EndMonth:     endMonth,
		StationIDs:   ids,
		ChunkSize:    cfg.Download.ChunkSize,
		Workers:      cfg.Download.Workers,
	}
	if len(downloadFlags.params) > 0 {
		req.Measurements = downloadFlags.params
	}
	if len(req.Measurements) > 0 {
		req.Parameters = map[string]string{"parameter": req.Measurements[0]}
	}
	if downloadFlags.chunkSize > 0 {
		req.ChunkSize = downloadFlags.chunkSize
	}
	if downloadFlags.workers > 0 {
		req.Workers = downloadFlags.workers
	}

	result, err := a.Download.Run(cmd.Context(), req)
	if result != nil {
		printBatch(result)
	}
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d units failed; run the same command again to retry them", result.Failed, len(result.Units))
	}
	return nil
}

func printBatch(r *services.BatchResult) {
	fmt.Printf("run %s: %d saved, %d skipped, %d failed, %d pending in %s\n",
		r.RunID, r.Saved, r.Skipped, r.Failed, r.Pending, r.Duration.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Printf("  FAILED year=%d chunk=%s stations=%s..%s (%d) attempts=%d: %s\n",
			f.Year, f.ChunkKey, f.FirstStation, f.LastStation, len(f.StationIDs), f.Attempts, f.Error)
	}
}

// stationIDs returns explicit ids or every active station of the directory.
func stationIDs(cmd *cobra.Command, a *app.App, explicit []string, allActive bool) ([]string, error) {
	if !allActive {
		if len(explicit) == 0 {
			return nil, fmt.Errorf("either --stations or --all-active is required")
		}
		out := make([]string, 0, len(explicit))
		for _, id := range explicit {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		return out, nil
	}
	list, err := a.Stations.GetStations(cmd.Context(), false)
	if err != nil {
		return nil, err
	}
	return stations.IDs(stations.Active(list)), nil
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
