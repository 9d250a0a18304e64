// Package stations provides the cached station directory and the station subsets built from it.
package stations

import (
	"context"
	"errors"
	"sync"
	"time"

	"geoclim/internal/cache"
	"geoclim/internal/models"
	"geoclim/internal/table"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

// MetadataSource lists the stations of a dataset
type MetadataSource interface {
	Metadata(ctx context.Context, typ, mode, resourceID string) ([]models.Station, error)
}

// Options configures a Directory
type Options struct {
	Type       string
	Mode       string
	ResourceID string
	// TTL bounds how long a fetched list is reused; 0 keeps it for the process lifetime.
	TTL time.Duration
	// Shared is an optional cache shared between processes (Redis).
	Shared  cache.Cache
	Logger  *logging.StructuredLogger
	Metrics *metrics.Collector
}

// Directory fetches the station list once and serves it from memory afterwards
type Directory struct {
	source MetadataSource
	opts   Options

	mu        sync.Mutex
	stations  []models.Station
	fetchedAt time.Time
	now       func() time.Time
}

// NewDirectory creates a directory over source
func NewDirectory(source MetadataSource, opts Options) *Directory {
	if opts.Type == "" {
		opts.Type = "station"
	}
	if opts.Mode == "" {
		opts.Mode = "historical"
	}
	if opts.ResourceID == "" {
		opts.ResourceID = "klima-v2-1h"
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Directory{
		source: source,
		opts:   opts,
		now:    time.Now,
	}
}

func (d *Directory) cacheKey() string {
	return "stations:" + d.opts.Type + ":" + d.opts.Mode + ":" + d.opts.ResourceID
}

// GetStations returns stations ordered by id. The list is fetched on first use and
// when forceRefresh is set or the TTL has elapsed; otherwise the cached list is returned.
func (d *Directory) GetStations(ctx context.Context, forceRefresh bool) ([]models.Station, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !forceRefresh && d.stations != nil && (d.opts.TTL == 0 || d.now().Sub(d.fetchedAt) < d.opts.TTL) {
		d.record("hit")
		return clone(d.stations), nil
	}

	if !forceRefresh && d.opts.Shared != nil {
		var shared []models.Station
		err := d.opts.Shared.Get(ctx, d.cacheKey(), &shared)
		switch {
		case err == nil && len(shared) > 0:
			d.store(shared)
			d.record("shared_hit")
			return clone(d.stations), nil
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			d.opts.Logger.Warn(ctx, "[STATIONS_CACHE_ERROR] Shared cache read failed", logging.Fields{
				"key":   d.cacheKey(),
				"error": err.Error(),
			})
		}
	}

	list, err := d.source.Metadata(ctx, d.opts.Type, d.opts.Mode, d.opts.ResourceID)
	if err != nil {
		return nil, err
	}
	d.store(list)
	d.record("miss")

	d.opts.Logger.Info(ctx, "[STATIONS_FETCHED] Station directory loaded", logging.Fields{
		"resource_id": d.opts.ResourceID,
		"stations":    len(list),
		"forced":      forceRefresh,
	})

	if d.opts.Shared != nil {
		if err := d.opts.Shared.Set(ctx, d.cacheKey(), d.stations, d.opts.TTL); err != nil {
			d.opts.Logger.Warn(ctx, "[STATIONS_CACHE_ERROR] Shared cache write failed", logging.Fields{
				"key":   d.cacheKey(),
				"error": err.Error(),
			})
		}
	}
	return clone(d.stations), nil
}

// store must be called with mu held.
func (d *Directory) store(list []models.Station) {
	sorted := clone(list)
	ids := make([]string, len(sorted))
	byID := make(map[string]models.Station, len(sorted))
	for i, s := range sorted {
		ids[i] = string(s.ID)
		byID[string(s.ID)] = s
	}
	table.SortIDs(ids)
	for i, id := range ids {
		sorted[i] = byID[id]
	}
	d.stations = sorted
	d.fetchedAt = d.now()
}

func (d *Directory) record(result string) {
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordStationCache(result)
	}
}

// Lookup returns one station by id from the cached directory
func (d *Directory) Lookup(ctx context.Context, id string) (models.Station, error) {
	list, err := d.GetStations(ctx, false)
	if err != nil {
		return models.Station{}, err
	}
	for _, s := range list {
		if string(s.ID) == id {
			return s, nil
		}
	}
	return models.Station{}, &models.NotFoundError{Resource: "station", ID: id}
}

func clone(list []models.Station) []models.Station {
	if list == nil {
		return nil
	}
	return append([]models.Station(nil), list...)
}

// FilterByIDs keeps the stations whose id is in ids, in directory order.
func FilterByIDs(list []models.Station, ids []string) []models.Station {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Station
	for _, s := range list {
		if want[string(s.ID)] {
			out = append(out, s)
		}
	}
	return out
}

// Active keeps stations flagged as currently reporting.
func Active(list []models.Station) []models.Station {
	var out []models.Station
	for _, s := range list {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// CoveringYear keeps stations whose validity window overlaps year.
func CoveringYear(list []models.Station, year int) []models.Station {
	var out []models.Station
	for _, s := range list {
		if s.CoversYear(year) {
			out = append(out, s)
		}
	}
	return out
}

// Capitals keeps the reference station of each state capital.
func Capitals(list []models.Station) []models.Station {
	var out []models.Station
	for _, s := range list {
		if IsCapital(s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// IDs returns the station ids in list order.
func IDs(list []models.Station) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s.ID)
	}
	return out
}
