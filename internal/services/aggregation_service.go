package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"geoclim/internal/climate"
	"geoclim/internal/models"
	"geoclim/internal/repository"
	"geoclim/internal/stations"
	"geoclim/internal/table"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

// AggregationOptions fixes the night-mean computation for a service instance
type AggregationOptions struct {
	ResourceID      string
	Field           string
	Night           climate.HourFilter
	Location        *time.Location
	InvalidShareMax float64
	Window          int
	OutputDir       string
}

// AggregationRequest selects stations and the period to aggregate
type AggregationRequest struct {
	StationIDs []string
	Years      []int
	StartMonth int
	EndMonth   int
}

// StationOutput describes what was written for one station
type StationOutput struct {
	StationID     string `json:"station_id"`
	StationName   string `json:"station_name"`
	Files         int    `json:"files"`
	Rows          int    `json:"rows"`
	Groups        int    `json:"groups"`
	Undefined     int    `json:"undefined"`
	Flagged       int    `json:"flagged"`
	AggregatePath string `json:"aggregate_path"`
	FlaggedPath   string `json:"flagged_path,omitempty"`
}

// AggregationResult summarises an aggregation pass
type AggregationResult struct {
	Stations []StationOutput
	Errors   []string
	Duration time.Duration
}

// AggregationService turns per-station files into monthly night means
type AggregationService struct {
	repo     repository.ManifestRepository
	stations StationSource
	dataDir  string
	opts     AggregationOptions
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewAggregationService creates a new aggregation service. repo and stationSource are
// optional: without a manifest, files are found by name and no precondition is checked.
func NewAggregationService(repo repository.ManifestRepository, stationSource StationSource, dataDir string, opts AggregationOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AggregationService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Window < 1 {
		opts.Window = 5
	}
	if opts.InvalidShareMax <= 0 {
		opts.InvalidShareMax = 0.05
	}
	return &AggregationService{
		repo:     repo,
		stations: stationSource,
		dataDir:  dataDir,
		opts:     opts,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Options returns the options the service runs with, defaults applied.
func (s *AggregationService) Options() AggregationOptions {
	return s.opts
}

// Run aggregates each requested station independently. A station that fails is
// reported in Errors and the rest still run.
func (s *AggregationService) Run(ctx context.Context, req AggregationRequest) (*AggregationResult, error) {
	if s.opts.Night == nil {
		return nil, &models.ValidationError{Field: "night_window", Message: "night window is required"}
	}
	if s.opts.Field == "" {
		return nil, &models.ValidationError{Field: "field", Message: "aggregation field is required"}
	}
	if s.opts.ResourceID == "" {
		return nil, &models.ValidationError{Field: "resource_id", Message: "resource id is required"}
	}
	if req.StartMonth < 1 || req.EndMonth > 12 || req.StartMonth > req.EndMonth {
		return nil, &models.ValidationError{
			Field:   "months",
			Value:   fmt.Sprintf("%d-%d", req.StartMonth, req.EndMonth),
			Message: fmt.Sprintf("month range %d-%d must be ordered within 1..12", req.StartMonth, req.EndMonth),
		}
	}

	start := time.Now()
	s.logger.Info(ctx, "[AGG_START] Starting aggregation", logging.Fields{
		"resource_id":  s.opts.ResourceID,
		"stations":     len(req.StationIDs),
		"years":        len(req.Years),
		"field":        s.opts.Field,
		"night_window": fmt.Sprint(s.opts.Night),
	})

	names := s.stationNames(ctx)
	result := &AggregationResult{}
	for _, id := range req.StationIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		out, err := s.aggregateStation(ctx, id, names[id], req)
		if err != nil {
			s.logger.Error(ctx, "[AGG_STATION_ERROR] Failed to aggregate station", logging.Fields{
				"station_id": id,
			}, err)
			result.Errors = append(result.Errors, fmt.Sprintf("station %s: %v", id, err))
			continue
		}
		result.Stations = append(result.Stations, *out)
	}
	result.Duration = time.Since(start)

	s.logger.Info(ctx, "[AGG_COMPLETE] Aggregation completed", logging.Fields{
		"stations":         len(result.Stations),
		"errors":           len(result.Errors),
		"duration_seconds": result.Duration.Seconds(),
	})
	return result, nil
}

func (s *AggregationService) stationNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	if s.stations == nil {
		return names
	}
	list, err := s.stations.GetStations(ctx, false)
	if err != nil {
		s.logger.Warn(ctx, "[AGG_STATIONS_UNAVAILABLE] Using names from file names", logging.Fields{
			"error": err.Error(),
		})
		return names
	}
	for _, st := range list {
		names[string(st.ID)] = st.Name
	}
	return names
}

func (s *AggregationService) aggregateStation(ctx context.Context, id, name string, req AggregationRequest) (*StationOutput, error) {
	if s.metrics != nil {
		timer := s.metrics.NewTimer(s.metrics.AggregationDuration)
		defer timer.ObserveDuration()
	}

	if s.repo != nil {
		pending, err := repository.PendingForStation(ctx, s.repo, s.opts.ResourceID, id)
		if err != nil {
			return nil, fmt.Errorf("check manifest: %w", err)
		}
		var keys []string
		for _, u := range pending {
			if climate.MeasurementSetIncludes(u.Measurements, s.opts.Field) {
				keys = append(keys, u.UnitKey.String())
			}
		}
		if len(keys) > 0 {
			return nil, &models.ValidationError{
				Field:   "station_id",
				Value:   id,
				Message: fmt.Sprintf("station %s has %d unfinished units: %s", id, len(keys), strings.Join(keys, ", ")),
			}
		}
	}

	files, err := s.discover(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &models.NotFoundError{Resource: "station files", ID: id}
	}

	var obs []models.RawObservation
	for _, f := range files {
		tbl, err := table.ReadFile(f.path)
		if err != nil {
			return nil, err
		}
		rows, err := climate.Observations(tbl, f.path, id, s.opts.Field)
		if err != nil {
			return nil, err
		}
		obs = append(obs, rows...)
		if name == "" {
			name = f.name.CleanName
		}
	}

	aggs := s.inPeriod(climate.MonthlyNight(obs, s.opts.Field, s.opts.Night, s.opts.Location), req)
	for i := range aggs {
		aggs[i].StationName = name
	}
	defined, undefined := climate.SplitDefined(aggs)
	for _, u := range undefined {
		s.logger.Warn(ctx, "[AGG_UNDEFINED_GROUP] No valid night values in month", logging.Fields{
			"station_id":    id,
			"year":          u.Year,
			"month":         u.Month,
			"invalid_count": u.InvalidCount,
		})
	}

	months := make([]int, 0, req.EndMonth-req.StartMonth+1)
	for m := req.StartMonth; m <= req.EndMonth; m++ {
		months = append(months, m)
	}
	rows := climate.Annual(defined, s.opts.Window)
	wide := climate.WideTable(rows, months, s.opts.Window)

	out := &StationOutput{
		StationID:     id,
		StationName:   name,
		Files:         len(files),
		Rows:          len(rows),
		Groups:        len(defined),
		Undefined:     len(undefined),
		AggregatePath: filepath.Join(s.opts.OutputDir, climate.AggregateFilename(id, stations.CleanName(name), s.opts.Field)),
	}
	if err := wide.WriteFileAtomic(out.AggregatePath); err != nil {
		return nil, fmt.Errorf("write aggregate: %w", err)
	}

	flagged := climate.Flagged(defined, s.opts.InvalidShareMax)
	flaggedPath := filepath.Join(s.opts.OutputDir, climate.FlaggedFilename(id))
	if len(flagged) > 0 {
		if err := climate.FlaggedTable(flagged).WriteFileAtomic(flaggedPath); err != nil {
			return nil, fmt.Errorf("write flagged groups: %w", err)
		}
		out.Flagged = len(flagged)
		out.FlaggedPath = flaggedPath
		s.logger.Warn(ctx, "[AGG_FLAGGED] Months with high share of missing values", logging.Fields{
			"station_id": id,
			"groups":     len(flagged),
			"threshold":  s.opts.InvalidShareMax,
			"path":       flaggedPath,
		})
	} else if err := os.Remove(flaggedPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale flagged output: %w", err)
	}

	if s.metrics != nil {
		s.metrics.AggregationRowsTotal.Add(float64(len(defined)))
		s.metrics.FlaggedGroupsTotal.Add(float64(len(flagged)))
	}

	s.logger.Info(ctx, "[AGG_STATION_COMPLETE] Station aggregated", logging.Fields{
		"station_id": id,
		"files":      out.Files,
		"rows":       out.Rows,
		"flagged":    out.Flagged,
		"path":       out.AggregatePath,
	})
	return out, nil
}

// inPeriod drops groups outside the requested years and months. Local-time
// grouping can spill the last night of a period into the following month.
func (s *AggregationService) inPeriod(aggs []models.MonthlyAggregate, req AggregationRequest) []models.MonthlyAggregate {
	years := make(map[int]bool, len(req.Years))
	for _, y := range req.Years {
		years[y] = true
	}
	out := aggs[:0]
	for _, a := range aggs {
		if len(years) > 0 && !years[a.Year] {
			continue
		}
		if a.Month < req.StartMonth || a.Month > req.EndMonth {
			continue
		}
		out = append(out, a)
	}
	return out
}

type stationFile struct {
	path string
	name climate.StationFile
}

// discover lists a station's files covering the request, from the manifest
// when one is configured and from the station directories otherwise. Only
// files of the configured resource whose measurement set carries the field
// are considered.
func (s *AggregationService) discover(ctx context.Context, id string, req AggregationRequest) ([]stationFile, error) {
	var paths []string
	if s.repo != nil {
		resource := s.opts.ResourceID
		units, err := s.repo.ListUnits(ctx, repository.UnitFilter{ResourceID: &resource, StationID: &id})
		if err != nil {
			return nil, fmt.Errorf("list units: %w", err)
		}
		for _, u := range units {
			if !u.State.Complete() || !climate.MeasurementSetIncludes(u.Measurements, s.opts.Field) {
				continue
			}
			dir := climate.StationDir(s.dataDir, u.ResourceID, u.Measurements, id) + string(filepath.Separator)
			for _, f := range u.Files {
				if strings.HasPrefix(f, dir) {
					paths = append(paths, f)
				}
			}
		}
	} else {
		var err error
		if paths, err = s.scan(id); err != nil {
			return nil, err
		}
	}

	years := make(map[int]bool, len(req.Years))
	for _, y := range req.Years {
		years[y] = true
	}
	seen := make(map[string]bool)
	var files []stationFile
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		sf, err := climate.ParseStationFilename(filepath.Base(p))
		if err != nil || sf.StationID != id {
			continue
		}
		if sf.EndMonth < req.StartMonth || sf.StartMonth > req.EndMonth {
			continue
		}
		if len(years) > 0 && !coversAny(sf, years) {
			continue
		}
		files = append(files, stationFile{path: p, name: sf})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// scan lists the files of a station under every measurement set of the
// configured resource that carries the field.
func (s *AggregationService) scan(id string) ([]string, error) {
	root := filepath.Join(climate.StationsRoot(s.dataDir), s.opts.ResourceID)
	sets, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, set := range sets {
		if !set.IsDir() || !climate.MeasurementSetIncludes(set.Name(), s.opts.Field) {
			continue
		}
		dir := climate.StationDir(s.dataDir, s.opts.ResourceID, set.Name(), id)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	return paths, nil
}

func coversAny(sf climate.StationFile, years map[int]bool) bool {
	for y := sf.StartYear; y <= sf.EndYear; y++ {
		if years[y] {
			return true
		}
	}
	return false
}
