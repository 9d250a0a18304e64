package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"geoclim/internal/climate"
	"geoclim/internal/geosphere"
	"geoclim/internal/models"
	"geoclim/internal/repository"
	"geoclim/internal/stations"
	"geoclim/internal/table"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

// Fetcher retrieves one resource
type Fetcher interface {
	Fetch(ctx context.Context, req *models.DownloadRequest) (*models.FetchResult, error)
}

// StationSource lists known stations
type StationSource interface {
	GetStations(ctx context.Context, forceRefresh bool) ([]models.Station, error)
}

// BatchRequest describes a chunked download over years and station ids
type BatchRequest struct {
	ResourceID string
	// Parameters are schema parameters; "year" is filled in per unit.
	Parameters   map[string]string
	Measurements []string
	Years        []int
	StartMonth   int
	EndMonth     int
	StationIDs   []string
	ChunkSize    int
	Workers      int
}

// Validate checks the request before any unit is scheduled
func (r *BatchRequest) Validate() error {
	if r.ResourceID == "" {
		return &models.ValidationError{Field: "resource_id", Message: "resource id is required"}
	}
	if len(r.Years) == 0 {
		return &models.ValidationError{Field: "years", Message: "at least one year is required"}
	}
	if len(r.StationIDs) == 0 {
		return &models.ValidationError{Field: "station_ids", Message: "at least one station id is required"}
	}
	if r.StartMonth < 1 || r.EndMonth > 12 || r.StartMonth > r.EndMonth {
		return &models.ValidationError{
			Field:   "months",
			Value:   fmt.Sprintf("%d-%d", r.StartMonth, r.EndMonth),
			Message: fmt.Sprintf("month range %d-%d must be ordered within 1..12", r.StartMonth, r.EndMonth),
		}
	}
	if r.ChunkSize < 1 {
		return &models.ValidationError{Field: "chunk_size", Message: "chunk size must be positive"}
	}
	return nil
}

// UnitFailure identifies a failed unit well enough to re-run it alone
type UnitFailure struct {
	Year         int
	ChunkKey     string
	FirstStation string
	LastStation  string
	StationIDs   []string
	Attempts     int
	Error        string
}

// BatchResult summarises a batch run
type BatchResult struct {
	RunID    string
	Saved    int
	Skipped  int
	Failed   int
	Pending  int
	Units    []*models.Unit
	Failures []UnitFailure
	Duration time.Duration
}

// DownloadService runs chunked batch downloads and splits responses per station
type DownloadService struct {
	fetcher  Fetcher
	stations StationSource
	repo     repository.ManifestRepository
	dataDir  string
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewDownloadService creates a new download service. stationSource may be nil,
// in which case station files are named without a station name.
func NewDownloadService(fetcher Fetcher, stationSource StationSource, repo repository.ManifestRepository, dataDir string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DownloadService {
	return &DownloadService{
		fetcher:  fetcher,
		stations: stationSource,
		repo:     repo,
		dataDir:  dataDir,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Chunk splits ids into contiguous groups of at most size, keeping input order.
func Chunk(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, append([]string(nil), ids[start:end]...))
	}
	return out
}

// ChunkKey names a chunk by position and its first and last station id.
func ChunkKey(index int, chunk []string) string {
	if len(chunk) == 0 {
		return fmt.Sprintf("c%03d", index)
	}
	return fmt.Sprintf("c%03d_%s-%s", index, chunk[0], chunk[len(chunk)-1])
}

type unitPlan struct {
	index int
	year  int
	chunk []string
	key   models.UnitKey
}

// measurementSet names what a request downloads. File datasets carry their
// measurement in the "parameter" value instead of Measurements.
func measurementSet(req BatchRequest) string {
	if len(req.Measurements) > 0 {
		return climate.MeasurementSet(req.Measurements)
	}
	if p := req.Parameters["parameter"]; p != "" {
		return climate.MeasurementSet([]string{p})
	}
	return climate.AllMeasurements
}

// Run downloads every (year, chunk) unit of req. A failed unit is recorded and the
// batch moves on; only cancellation stops it early, leaving remaining units pending.
func (s *DownloadService) Run(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Workers < 1 {
		req.Workers = 1
	}

	start := time.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	names, err := s.stationNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load station directory: %w", err)
	}

	run := &models.Run{ID: runID, ResourceID: req.ResourceID, StartedAt: start.UTC(), Status: "running"}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	chunks := Chunk(req.StationIDs, req.ChunkSize)
	set := measurementSet(req)
	var plans []unitPlan
	for _, year := range req.Years {
		for ci, chunk := range chunks {
			plans = append(plans, unitPlan{
				index: len(plans),
				year:  year,
				chunk: chunk,
				key: models.UnitKey{
					ResourceID:   req.ResourceID,
					Measurements: set,
					Year:         year,
					StartMonth:   req.StartMonth,
					EndMonth:     req.EndMonth,
					ChunkKey:     ChunkKey(ci, chunk),
				},
			})
		}
	}

	s.logger.Info(ctx, "[BATCH_START] Starting batch download", logging.Fields{
		"resource_id":  req.ResourceID,
		"measurements": set,
		"years":        len(req.Years),
		"stations":     len(req.StationIDs),
		"chunks":       len(chunks),
		"units":        len(plans),
		"workers":      req.Workers,
	})

	units := make([]*models.Unit, len(plans))
	if req.Workers == 1 {
		for _, plan := range plans {
			if ctx.Err() != nil {
				break
			}
			units[plan.index] = s.runUnit(ctx, req, plan, names, runID)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(req.Workers)
		for _, plan := range plans {
			plan := plan
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				units[plan.index] = s.runUnit(ctx, req, plan, names, runID)
				return nil
			})
		}
		g.Wait()
	}

	result := &BatchResult{RunID: runID}
	for i, u := range units {
		if u == nil {
			u = &models.Unit{UnitKey: plans[i].key, StationIDs: plans[i].chunk, State: models.UnitPending, RunID: runID}
		}
		result.Units = append(result.Units, u)
		switch u.State {
		case models.UnitSaved:
			result.Saved++
		case models.UnitSkippedExists:
			result.Skipped++
		case models.UnitFailed:
			result.Failed++
			result.Failures = append(result.Failures, UnitFailure{
				Year:         u.Year,
				ChunkKey:     u.ChunkKey,
				FirstStation: u.StationIDs[0],
				LastStation:  u.StationIDs[len(u.StationIDs)-1],
				StationIDs:   u.StationIDs,
				Attempts:     u.Attempts,
				Error:        u.Error,
			})
		default:
			result.Pending++
		}
	}
	result.Duration = time.Since(start)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Saved, run.Skipped, run.Failed = result.Saved, result.Skipped, result.Failed
	run.Status = runStatus(ctx, result)
	// The run record is written even after cancellation.
	if err := s.repo.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error(ctx, "[BATCH_RUN_RECORD_ERROR] Failed to record run result", logging.Fields{
			"run_id": runID,
		}, err)
	}

	if s.metrics != nil {
		s.metrics.BatchDuration.Observe(result.Duration.Seconds())
	}

	s.logger.Info(ctx, "[BATCH_COMPLETE] Batch download finished", logging.Fields{
		"resource_id":      req.ResourceID,
		"saved":            result.Saved,
		"skipped":          result.Skipped,
		"failed":           result.Failed,
		"pending":          result.Pending,
		"status":           run.Status,
		"duration_seconds": result.Duration.Seconds(),
	})

	if ctx.Err() != nil {
		return result, fmt.Errorf("batch cancelled with %d units pending: %w", result.Pending, ctx.Err())
	}
	return result, nil
}

func runStatus(ctx context.Context, r *BatchResult) string {
	switch {
	case ctx.Err() != nil:
		return "cancelled"
	case r.Failed > 0:
		return "partial"
	default:
		return "completed"
	}
}

func (s *DownloadService) stationNames(ctx context.Context) (map[string]string, error) {
	names := make(map[string]string)
	if s.stations == nil {
		return names, nil
	}
	list, err := s.stations.GetStations(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, st := range list {
		names[string(st.ID)] = stations.CleanName(st.Name)
	}
	return names, nil
}

func cleanNameFor(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "station"
}

// runUnit moves one unit through Pending -> Downloading -> {Saved, SkippedExists, Failed}.
func (s *DownloadService) runUnit(ctx context.Context, req BatchRequest, plan unitPlan, names map[string]string, runID string) *models.Unit {
	unit := &models.Unit{
		UnitKey:    plan.key,
		StationIDs: plan.chunk,
		State:      models.UnitPending,
		RunID:      runID,
	}
	if existing, err := s.repo.GetUnit(ctx, plan.key); err == nil {
		unit.Attempts = existing.Attempts
		unit.CreatedAt = existing.CreatedAt
		if existing.State.Complete() && existing.SameStations(plan.chunk) &&
			len(existing.Files) == len(plan.chunk) && allComplete(existing.Files) {
			unit.State = models.UnitSkippedExists
			unit.RawPath = existing.RawPath
			unit.Files = existing.Files
			return s.finish(ctx, unit)
		}
	}

	rawPath := climate.RawChunkPath(s.dataDir, req.ResourceID, plan.key.Measurements,
		plan.year, req.StartMonth, req.EndMonth, plan.key.ChunkKey, plan.chunk)
	unit.RawPath = rawPath

	if table.Complete(rawPath) {
		files, err := s.split(rawPath, plan, req, names)
		if err == nil {
			unit.State = models.UnitSkippedExists
			unit.Files = files
			return s.finish(ctx, unit)
		}
		// A raw file that cannot be split is discarded and fetched again.
		s.logger.Warn(ctx, "[BATCH_RAW_INVALID] Discarding unreadable raw chunk", logging.Fields{
			"unit":  plan.key.String(),
			"path":  rawPath,
			"error": err.Error(),
		})
		os.Remove(rawPath)
	}

	unit.State = models.UnitDownloading
	unit.Attempts++
	if err := s.repo.UpsertUnit(ctx, unit); err != nil {
		s.logger.Warn(ctx, "[BATCH_MANIFEST_ERROR] Could not mark unit downloading", logging.Fields{
			"unit":  plan.key.String(),
			"error": err.Error(),
		})
	}

	periodStart, periodEnd, err := geosphere.Period(plan.year, req.StartMonth, req.EndMonth)
	if err != nil {
		return s.fail(ctx, unit, err)
	}

	dl := &models.DownloadRequest{
		ResourceID:   req.ResourceID,
		Parameters:   yearParameters(req.Parameters, plan.year),
		Measurements: req.Measurements,
		Start:        periodStart,
		End:          periodEnd,
		StationIDs:   plan.chunk,
		OutputPath:   rawPath,
		OutputFormat: "csv",
	}
	if _, err := s.fetcher.Fetch(ctx, dl); err != nil {
		return s.fail(ctx, unit, err)
	}

	files, err := s.split(rawPath, plan, req, names)
	if err != nil {
		os.Remove(rawPath)
		return s.fail(ctx, unit, err)
	}
	unit.State = models.UnitSaved
	unit.Files = files
	unit.Error = ""
	return s.finish(ctx, unit)
}

func yearParameters(params map[string]string, year int) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["year"] = fmt.Sprintf("%d", year)
	return out
}

func allComplete(paths []string) bool {
	for _, p := range paths {
		if !table.Complete(p) {
			return false
		}
	}
	return true
}

func (s *DownloadService) fail(ctx context.Context, unit *models.Unit, err error) *models.Unit {
	if errors.Is(err, context.Canceled) {
		unit.State = models.UnitPending
		s.logger.Info(ctx, "[BATCH_UNIT_CANCELLED] Unit interrupted, left pending", logging.Fields{
			"unit": unit.UnitKey.String(),
		})
		return s.finish(ctx, unit)
	}

	unit.State = models.UnitFailed
	unit.Error = err.Error()
	s.logger.Warn(ctx, "[BATCH_UNIT_FAILED] Unit failed, continuing with next", logging.Fields{
		"resource_id":   unit.ResourceID,
		"year":          unit.Year,
		"chunk":         unit.ChunkKey,
		"first_station": unit.StationIDs[0],
		"last_station":  unit.StationIDs[len(unit.StationIDs)-1],
		"station_ids":   strings.Join(unit.StationIDs, ","),
		"transient":     models.IsTransient(err),
		"error":         err.Error(),
	})
	return s.finish(ctx, unit)
}

func (s *DownloadService) finish(ctx context.Context, unit *models.Unit) *models.Unit {
	if err := s.repo.UpsertUnit(context.WithoutCancel(ctx), unit); err != nil {
		s.logger.Error(ctx, "[BATCH_MANIFEST_ERROR] Failed to record unit", logging.Fields{
			"unit": unit.UnitKey.String(),
		}, err)
	}
	if s.metrics != nil && unit.State.Terminal() {
		s.metrics.RecordUnit(string(unit.State))
	}
	s.logger.Debug(ctx, "[BATCH_UNIT_DONE] Unit finished", logging.Fields{
		"unit":  unit.UnitKey.String(),
		"state": unit.State,
		"files": len(unit.Files),
	})
	return unit
}

// split writes one file per station of the chunk from the combined response.
// Stations without rows get a header-only file so the unit is complete on disk.
func (s *DownloadService) split(rawPath string, plan unitPlan, req BatchRequest, names map[string]string) ([]string, error) {
	tbl, err := table.ReadFile(rawPath)
	if err != nil {
		return nil, err
	}

	var parts table.Partition
	if tbl.Index("station") < 0 {
		if len(plan.chunk) != 1 {
			return nil, &models.ParseError{Source: rawPath, Reason: "multi-station response without station column"}
		}
		parts = table.Partition{plan.chunk[0]: tbl}
	} else if parts, err = tbl.SplitBy("station"); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(plan.chunk))
	for _, id := range plan.chunk {
		part, ok := parts[id]
		if !ok {
			part = table.New(tbl.Header...)
		}
		name := climate.StationFile{
			CleanName:  cleanNameFor(names, id),
			StationID:  id,
			StartYear:  plan.year,
			EndYear:    plan.year,
			StartMonth: req.StartMonth,
			EndMonth:   req.EndMonth,
		}.Name()
		path := filepath.Join(climate.StationDir(s.dataDir, req.ResourceID, plan.key.Measurements, id), name)
		if err := part.WriteFileAtomic(path); err != nil {
			return nil, fmt.Errorf("write station file %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}
