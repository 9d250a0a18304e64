// Package climate turns per-station hourly series into night-window monthly
// aggregates, quality flags and rolling multi-year means.
package climate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"geoclim/internal/models"
	"geoclim/internal/table"
)

var timeLayouts = []string{
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04Z07:00",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime parses the timestamp layouts found in GeoSphere CSV exports.
// Timestamps without an offset are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ParseValue returns nil for empty, NA or non-numeric cells.
func ParseValue(s string) *float64 {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", "NULL":
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Observations converts a station table into observations of fields.
// The station column is optional; stationID is used when it is absent.
func Observations(tbl *table.Table, source, stationID string, fields ...string) ([]models.RawObservation, error) {
	timeIdx := tbl.Index("time")
	if timeIdx < 0 {
		return nil, &models.ParseError{Source: source, Reason: "missing column \"time\""}
	}
	stationIdx := tbl.Index("station")

	fieldIdx := make(map[string]int, len(fields))
	flagIdx := make(map[string]int)
	for _, f := range fields {
		idx := tbl.Index(f)
		if idx < 0 {
			return nil, &models.ParseError{Source: source, Reason: fmt.Sprintf("missing column %q", f)}
		}
		fieldIdx[f] = idx
		if fi := tbl.Index(f + "_flag"); fi >= 0 {
			flagIdx[f] = fi
		}
	}

	out := make([]models.RawObservation, 0, tbl.Len())
	for i, row := range tbl.Rows {
		ts, err := ParseTime(row[timeIdx])
		if err != nil {
			return nil, &models.ParseError{Source: source, Line: i + 2, Reason: err.Error()}
		}
		obs := models.RawObservation{
			StationID: stationID,
			Time:      ts,
			Values:    make(map[string]*float64, len(fields)),
		}
		if stationIdx >= 0 && strings.TrimSpace(row[stationIdx]) != "" {
			obs.StationID = strings.TrimSpace(row[stationIdx])
		}
		for f, idx := range fieldIdx {
			obs.Values[f] = ParseValue(row[idx])
		}
		if len(flagIdx) > 0 {
			obs.Flags = make(map[string]string, len(flagIdx))
			for f, idx := range flagIdx {
				obs.Flags[f] = strings.TrimSpace(row[idx])
			}
		}
		out = append(out, obs)
	}
	return out, nil
}
