package services

import (
	"context"

	"geoclim/internal/models"
	"geoclim/internal/repository"
	"geoclim/internal/schema"
	"geoclim/internal/stations"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

// StationQuery narrows a station listing
type StationQuery struct {
	IDs          []string
	ActiveOnly   bool
	CapitalsOnly bool
	Year         int
	Refresh      bool
}

// CatalogService answers read-only questions about datasets, stations and the manifest
type CatalogService struct {
	registry *schema.Registry
	stations StationSource
	repo     repository.ManifestRepository
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewCatalogService creates a new catalog service
func NewCatalogService(registry *schema.Registry, stationSource StationSource, repo repository.ManifestRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CatalogService {
	return &CatalogService{
		registry: registry,
		stations: stationSource,
		repo:     repo,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Datasets lists every registered dataset
func (s *CatalogService) Datasets() []models.DatasetSchema {
	return s.registry.List()
}

// Dataset returns one dataset by id
func (s *CatalogService) Dataset(id string) (models.DatasetSchema, error) {
	return s.registry.Lookup(id)
}

// Resolve renders the download location of a dataset for the given parameter values
func (s *CatalogService) Resolve(id string, values map[string]string) (*models.Resolved, error) {
	return s.registry.Resolve(id, values)
}

// Stations lists stations after applying q
func (s *CatalogService) Stations(ctx context.Context, q StationQuery) ([]models.Station, error) {
	list, err := s.stations.GetStations(ctx, q.Refresh)
	if err != nil {
		return nil, err
	}
	if len(q.IDs) > 0 {
		list = stations.FilterByIDs(list, q.IDs)
	}
	if q.ActiveOnly {
		list = stations.Active(list)
	}
	if q.CapitalsOnly {
		list = stations.Capitals(list)
	}
	if q.Year > 0 {
		list = stations.CoveringYear(list, q.Year)
	}
	return list, nil
}

// Units lists manifest units matching filter
func (s *CatalogService) Units(ctx context.Context, filter repository.UnitFilter) ([]*models.Unit, error) {
	return s.repo.ListUnits(ctx, filter)
}

// Runs lists recent batch runs, newest first
func (s *CatalogService) Runs(ctx context.Context, limit int) ([]*models.Run, error) {
	return s.repo.ListRuns(ctx, limit)
}

// HealthCheck verifies the manifest store is reachable
func (s *CatalogService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
