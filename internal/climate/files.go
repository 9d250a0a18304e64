package climate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// StationFile describes one per-station hourly file
type StationFile struct {
	CleanName  string
	StationID  string
	StartYear  int
	EndYear    int
	StartMonth int
	EndMonth   int
}

// Name renders <clean_name>__id<id>__ys<year>__ye<year>__ms<MM>__me<MM>__hourly_data.csv
func (f StationFile) Name() string {
	return fmt.Sprintf("%s__id%s__ys%d__ye%d__ms%02d__me%02d__hourly_data.csv",
		f.CleanName, f.StationID, f.StartYear, f.EndYear, f.StartMonth, f.EndMonth)
}

var stationFilePattern = regexp.MustCompile(`^(.+)__id([^_]+)__ys(\d{4})__ye(\d{4})__ms(\d{1,2})__me(\d{1,2})__hourly_data\.csv$`)

// ParseStationFilename is the inverse of StationFile.Name.
func ParseStationFilename(name string) (StationFile, error) {
	m := stationFilePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return StationFile{}, fmt.Errorf("not a station file name: %q", name)
	}
	f := StationFile{CleanName: m[1], StationID: m[2]}
	f.StartYear, _ = strconv.Atoi(m[3])
	f.EndYear, _ = strconv.Atoi(m[4])
	f.StartMonth, _ = strconv.Atoi(m[5])
	f.EndMonth, _ = strconv.Atoi(m[6])
	if f.StartMonth < 1 || f.EndMonth > 12 || f.StartMonth > f.EndMonth || f.StartYear > f.EndYear {
		return StationFile{}, fmt.Errorf("station file %q has an invalid period", name)
	}
	return f, nil
}

// AllMeasurements is the measurement set of a request that names no measurement.
const AllMeasurements = "all"

var unsafeToken = regexp.MustCompile(`[^a-z0-9_-]+`)

// MeasurementSet renders measurement codes as one path-safe token: lower case,
// sorted, deduplicated and joined with "+". An empty list gives AllMeasurements.
func MeasurementSet(measurements []string) string {
	seen := make(map[string]bool, len(measurements))
	var codes []string
	for _, m := range measurements {
		m = unsafeToken.ReplaceAllString(strings.ToLower(strings.TrimSpace(m)), "_")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		codes = append(codes, m)
	}
	if len(codes) == 0 {
		return AllMeasurements
	}
	sort.Strings(codes)
	return strings.Join(codes, "+")
}

// MeasurementSetIncludes reports whether files downloaded for set carry field.
func MeasurementSetIncludes(set, field string) bool {
	if set == AllMeasurements {
		return true
	}
	want := MeasurementSet([]string{field})
	for _, code := range strings.Split(set, "+") {
		if code == want {
			return true
		}
	}
	return false
}

// StationsRoot holds one directory per resource and measurement set.
func StationsRoot(dataDir string) string {
	return filepath.Join(dataDir, "stations")
}

// StationDir is the directory holding the per-station files of one station
// for one resource and measurement set.
func StationDir(dataDir, resourceID, measurements, stationID string) string {
	return filepath.Join(StationsRoot(dataDir), resourceID, measurements, "id"+stationID)
}

// RawChunkPath is where the combined multi-station response of one unit is kept.
// The name carries the month range and a digest of the chunk's station ids, so
// a raw file is only ever reused by the exact request that produced it.
func RawChunkPath(dataDir, resourceID, measurements string, year, startMonth, endMonth int, chunkKey string, stationIDs []string) string {
	digest := uint32(xxhash.Sum64String(strings.Join(stationIDs, ",")))
	return filepath.Join(dataDir, "raw", resourceID, measurements,
		fmt.Sprintf("y%d", year),
		fmt.Sprintf("m%02d-%02d", startMonth, endMonth),
		fmt.Sprintf("%s_%08x.csv", chunkKey, digest))
}

// AggregateFilename is the wide monthly output of one station.
func AggregateFilename(stationID, cleanName, field string) string {
	return fmt.Sprintf("id%s_%s__night_%s_monthly.csv", stationID, cleanName, field)
}

// FlaggedFilename is the review list of one station.
func FlaggedFilename(stationID string) string {
	return fmt.Sprintf("id%s_HIGH_SHARE_NAs.csv", stationID)
}
