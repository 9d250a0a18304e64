package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"geoclim/internal/services"
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List stations of the configured dataset",
	Args:  cobra.NoArgs,
	RunE:  runStations,
}

var stationsFlags struct {
	refresh  bool
	capitals bool
	active   bool
	ids      []string
	year     int
}

func init() {
	rootCmd.AddCommand(stationsCmd)
	stationsCmd.Flags().BoolVar(&stationsFlags.refresh, "refresh", false, "Bypass the station cache")
	stationsCmd.Flags().BoolVar(&stationsFlags.capitals, "capitals", false, "Only state-capital reference stations")
	stationsCmd.Flags().BoolVar(&stationsFlags.active, "active", false, "Only stations still reporting")
	stationsCmd.Flags().StringSliceVar(&stationsFlags.ids, "ids", nil, "Only these station ids")
	stationsCmd.Flags().IntVar(&stationsFlags.year, "year", 0, "Only stations whose record covers the year")
}

func runStations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Catalog.Stations(cmd.Context(), services.StationQuery{
		IDs:          stationsFlags.ids,
		ActiveOnly:   stationsFlags.active,
		CapitalsOnly: stationsFlags.capitals,
		Year:         stationsFlags.year,
		Refresh:      stationsFlags.refresh,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tALTITUDE\tFROM\tTO\tACTIVE")
	for _, s := range list {
		from, to := "", ""
		if s.ValidFrom != nil {
			from = s.ValidFrom.String()
		}
		if s.ValidTo != nil {
			to = s.ValidTo.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%s\t%s\t%t\n", s.ID, s.Name, s.State, s.Altitude, from, to, s.IsActive)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d stations\n", len(list))
	return nil
}
