package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"geoclim/internal/app"
	"geoclim/internal/config"
	"geoclim/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "geoclim",
	Short: "geoclim - GeoSphere Austria climate data pipeline",
	Long: `geoclim resolves GeoSphere Austria datasets, downloads station time series
in resumable chunks and aggregates them into monthly night-time means.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig loads configuration; validate picks how much of it must be valid.
func loadConfig(validate func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if validate != nil {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openApp builds the application for commands that touch the network or the manifest.
func openApp(cmd *cobra.Command, cfg *config.Config) (*app.App, error) {
	logger := app.NewLogger(cfg, "geoclim-cli")
	return app.New(cmd.Context(), cfg, logger, metrics.NewCollector("geoclim"))
}
