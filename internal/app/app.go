// Package app wires configuration into the clients, stores and services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"geoclim/internal/cache"
	"geoclim/internal/config"
	"geoclim/internal/geosphere"
	"geoclim/internal/repository"
	"geoclim/internal/schema"
	"geoclim/internal/services"
	"geoclim/internal/stations"
	"geoclim/pkg/database"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

// Version is reported in logs
const Version = "1.0.0"

// App holds the components built from one configuration
type App struct {
	Config   *config.Config
	Logger   *logging.StructuredLogger
	Metrics  *metrics.Collector
	Registry *schema.Registry
	Client   *geosphere.Client
	Stations *stations.Directory
	Manifest repository.ManifestRepository
	Download *services.DownloadService
	Catalog  *services.CatalogService

	db    *database.PostgresDB
	redis *cache.RedisCache
}

// NewLogger builds the structured logger described by cfg.Logging
func NewLogger(cfg *config.Config, service string) *logging.StructuredLogger {
	logger := logging.NewStructuredLogger(service, Version, logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat(cfg.Logging.Format)
	return logger
}

// New connects the manifest store and optional shared cache and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metricsCollector,
		Registry: schema.Default(),
	}

	a.Client = geosphere.NewFromConfig(cfg.API, a.Registry, logger, metricsCollector)

	opts := stations.Options{
		Type:    cfg.Stations.MetadataType,
		Mode:    cfg.Stations.MetadataMode,
		TTL:     cfg.Stations.CacheTTL,
		Logger:  logger,
		Metrics: metricsCollector,
	}
	if cfg.Download.ResourceID != "" {
		opts.ResourceID = cfg.Download.ResourceID
	}
	if cfg.Stations.SharedCache {
		rc, err := cache.NewRedisCacheFromURL(cfg.Redis.URL, "geoclim:")
		if err != nil {
			return nil, fmt.Errorf("failed to configure redis: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			// The directory still works from the upstream without a shared cache.
			logger.Warn(ctx, "[STARTUP_REDIS_UNAVAILABLE] Shared station cache disabled", logging.Fields{
				"error": err.Error(),
			})
			rc.Close()
		} else {
			a.redis = rc
			opts.Shared = rc
		}
	}
	a.Stations = stations.NewDirectory(a.Client, opts)

	manifest, err := a.openManifest(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Manifest = manifest

	a.Download = services.NewDownloadService(a.Client, a.Stations, a.Manifest, cfg.Download.DataDir, logger, metricsCollector)
	a.Catalog = services.NewCatalogService(a.Registry, a.Stations, a.Manifest, logger, metricsCollector)
	return a, nil
}

func (a *App) openManifest(ctx context.Context) (repository.ManifestRepository, error) {
	cfg := a.Config
	switch cfg.Download.Manifest {
	case "postgres":
		db, err := database.NewPostgresDB(DatabaseConfig(cfg), a.Logger, a.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		return repository.NewPostgresManifest(db, a.Logger, a.Metrics), nil
	default:
		if err := os.MkdirAll(cfg.Download.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return repository.NewFileManifest(filepath.Join(cfg.Download.DataDir, "manifest.json"), a.Logger)
	}
}

// DatabaseConfig maps the database section onto pkg/database settings
func DatabaseConfig(cfg *config.Config) *database.Config {
	return &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}
}

// AggregationTarget selects which downloaded files an aggregation reads.
// Empty fields fall back to download.resource_id and aggregation.field.
type AggregationTarget struct {
	ResourceID string
	Field      string
}

// Aggregation builds the aggregation service. It fails when the night window or
// time zone is not configured, so downloads never depend on those settings.
func (a *App) Aggregation(target AggregationTarget) (*services.AggregationService, error) {
	night, err := a.Config.Aggregation.ParsedNightWindow()
	if err != nil {
		return nil, fmt.Errorf("aggregation.night_window: %w", err)
	}
	loc, err := a.Config.Aggregation.Location()
	if err != nil {
		return nil, fmt.Errorf("aggregation.timezone: %w", err)
	}
	return services.NewAggregationService(a.Manifest, a.Stations, a.Config.Download.DataDir, services.AggregationOptions{
		ResourceID:      firstNonEmpty(target.ResourceID, a.Config.Download.ResourceID),
		Field:           firstNonEmpty(target.Field, a.Config.Aggregation.Field),
		Night:           night,
		Location:        loc,
		InvalidShareMax: a.Config.Aggregation.InvalidShareMax,
		Window:          a.Config.Aggregation.SmoothingWindow,
		OutputDir:       a.Config.Aggregation.OutputDir,
	}, a.Logger, a.Metrics), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Close releases database and cache connections
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
