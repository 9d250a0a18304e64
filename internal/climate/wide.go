package climate

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"geoclim/internal/models"
	"geoclim/internal/table"
)

// MonthAbbr returns the three-letter English month name used in column headers.
func MonthAbbr(month int) string {
	return time.Month(month).String()[:3]
}

// Annual pivots defined aggregates into one row per (station, year). For each month
// the smoothed value is the trailing mean of the last window years that have a value
// for that month, so gaps shorten the history instead of breaking it.
func Annual(aggs []models.MonthlyAggregate, window int) []models.AnnualRow {
	type rowKey struct {
		station string
		year    int
	}
	rows := make(map[rowKey]*models.AnnualRow)
	series := make(map[string]map[int][]models.MonthlyAggregate) // station -> month -> by year

	for _, a := range aggs {
		if !a.Defined() {
			continue
		}
		k := rowKey{a.StationID, a.Year}
		r := rows[k]
		if r == nil {
			r = &models.AnnualRow{
				StationID:   a.StationID,
				StationName: a.StationName,
				Year:        a.Year,
				Monthly:     make(map[int]*float64),
				Smoothed:    make(map[int]*float64),
			}
			rows[k] = r
		}
		mean := a.Mean
		r.Monthly[a.Month] = &mean

		if series[a.StationID] == nil {
			series[a.StationID] = make(map[int][]models.MonthlyAggregate)
		}
		series[a.StationID][a.Month] = append(series[a.StationID][a.Month], a)
	}

	for station, byMonth := range series {
		for month, points := range byMonth {
			sort.Slice(points, func(i, j int) bool { return points[i].Year < points[j].Year })
			values := make([]float64, len(points))
			for i, p := range points {
				values[i] = p.Mean
			}
			for i, sm := range RollingMean(values, window) {
				rows[rowKey{station, points[i].Year}].Smoothed[month] = sm
			}
		}
	}

	out := make([]models.AnnualRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].Year < out[j].Year
	})
	return out
}

// WideTable renders annual rows with one column per month in months followed by
// one smoothed column per month. Missing values are written as NA.
func WideTable(rows []models.AnnualRow, months []int, window int) *table.Table {
	header := []string{"station_name", "station_id", "year"}
	for _, m := range months {
		header = append(header, MonthAbbr(m))
	}
	for _, m := range months {
		header = append(header, fmt.Sprintf("%s_%dyr_avg", MonthAbbr(m), window))
	}

	t := table.New(header...)
	for _, r := range rows {
		rec := []string{r.StationName, r.StationID, strconv.Itoa(r.Year)}
		for _, m := range months {
			rec = append(rec, formatValue(r.Monthly[m]))
		}
		for _, m := range months {
			rec = append(rec, formatValue(r.Smoothed[m]))
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

// FlaggedTable renders groups held for manual review.
func FlaggedTable(aggs []models.MonthlyAggregate) *table.Table {
	t := table.New("station_id", "station_name", "year", "month", "mean", "valid_count", "invalid_count", "invalid_share")
	for _, a := range aggs {
		t.Rows = append(t.Rows, []string{
			a.StationID,
			a.StationName,
			strconv.Itoa(a.Year),
			strconv.Itoa(a.Month),
			formatValue(&a.Mean),
			strconv.Itoa(a.ValidCount),
			strconv.Itoa(a.InvalidCount),
			strconv.FormatFloat(a.InvalidShare, 'f', 4, 64),
		})
	}
	return t
}

func formatValue(v *float64) string {
	if v == nil {
		return "NA"
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}
