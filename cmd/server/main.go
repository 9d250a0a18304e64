package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geoclim/internal/app"
	"geoclim/internal/config"
	"geoclim/internal/handlers"
	"geoclim/internal/scheduler"
	"geoclim/internal/services"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateDownload(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "geoclim-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting geoclim API server", logging.Fields{
		"version":     app.Version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"manifest":    cfg.Download.Manifest,
		"data_dir":    cfg.Download.DataDir,
	})

	metricsCollector := metrics.NewCollector("geoclim")

	a, err := app.New(ctx, cfg, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to initialize", logging.Fields{}, err)
	}
	defer a.Close()

	router := mux.NewRouter()
	handlers.NewCatalogHandler(a.Catalog, logger, metricsCollector).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	if cfg.Schedule.Cron != "" {
		sched, err := newScheduler(a)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Invalid schedule", logging.Fields{
				"cron": cfg.Schedule.Cron,
			}, err)
		}
		go sched.Start(ctx)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	<-ctx.Done()

	logger.Info(context.Background(), "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(shutdownCtx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

// newScheduler builds the cron pipeline from the schedule section. Aggregation
// is chained only when a night window is configured.
func newScheduler(a *app.App) (*scheduler.Scheduler, error) {
	cfg := a.Config
	years, err := config.ParseYears(cfg.Schedule.Years)
	if err != nil {
		return nil, err
	}
	startMonth, endMonth, err := config.ParseMonthRange(cfg.Schedule.Months)
	if err != nil {
		return nil, err
	}

	job := &scheduler.PipelineJob{
		Downloader: a.Download,
		Logger:     a.Logger,
		Request: services.BatchRequest{
			ResourceID:   cfg.Download.ResourceID,
			Parameters:   map[string]string{"parameter": firstOr(cfg.Download.Measurements, "tl")},
			Measurements: cfg.Download.Measurements,
			Years:        years,
			StartMonth:   startMonth,
			EndMonth:     endMonth,
			StationIDs:   cfg.Schedule.StationIDs,
			ChunkSize:    cfg.Download.ChunkSize,
			Workers:      cfg.Download.Workers,
		},
	}
	if cfg.Aggregation.NightWindow != "" {
		agg, err := a.Aggregation(app.AggregationTarget{})
		if err != nil {
			return nil, err
		}
		job.Aggregator = agg
	} else {
		a.Logger.Warn(context.Background(), "[STARTUP_NO_AGGREGATION] No night window configured, schedule downloads only", logging.Fields{})
	}

	return scheduler.New(cfg.Schedule.Cron, job, a.Logger)
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
