package climate

import (
	"math"
	"sort"
	"time"

	"geoclim/internal/models"
)

// HourFilter selects hours of the day.
type HourFilter interface {
	Contains(hour int) bool
}

type groupKey struct {
	station string
	year    int
	month   int
}

// MonthlyNight groups observations by (station, year, month) in loc, keeps those
// whose local hour passes night, and averages field over valid values.
// Groups with no valid value carry a NaN mean; see models.MonthlyAggregate.Defined.
// Duplicate (station, timestamp) rows are counted once.
func MonthlyNight(obs []models.RawObservation, field string, night HourFilter, loc *time.Location) []models.MonthlyAggregate {
	if loc == nil {
		loc = time.UTC
	}

	type acc struct {
		sum     float64
		valid   int
		invalid int
	}
	groups := make(map[groupKey]*acc)
	seen := make(map[string]map[int64]bool)

	for _, o := range obs {
		local := o.Time.In(loc)
		if !night.Contains(local.Hour()) {
			continue
		}
		if seen[o.StationID] == nil {
			seen[o.StationID] = make(map[int64]bool)
		}
		if seen[o.StationID][o.Time.Unix()] {
			continue
		}
		seen[o.StationID][o.Time.Unix()] = true

		k := groupKey{station: o.StationID, year: local.Year(), month: int(local.Month())}
		a := groups[k]
		if a == nil {
			a = &acc{}
			groups[k] = a
		}
		if v := o.Values[field]; v != nil && !math.IsNaN(*v) {
			a.sum += *v
			a.valid++
		} else {
			a.invalid++
		}
	}

	out := make([]models.MonthlyAggregate, 0, len(groups))
	for k, a := range groups {
		m := models.MonthlyAggregate{
			StationID:    k.station,
			Year:         k.year,
			Month:        k.month,
			Mean:         math.NaN(),
			ValidCount:   a.valid,
			InvalidCount: a.invalid,
		}
		if a.valid > 0 {
			m.Mean = a.sum / float64(a.valid)
		}
		if total := a.valid + a.invalid; total > 0 {
			m.InvalidShare = float64(a.invalid) / float64(total)
		}
		out = append(out, m)
	}
	SortAggregates(out)
	return out
}

// SortAggregates orders by station, year, month.
func SortAggregates(aggs []models.MonthlyAggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		a, b := aggs[i], aggs[j]
		if a.StationID != b.StationID {
			return a.StationID < b.StationID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
}

// SplitDefined separates groups with a mean from groups without any valid value.
func SplitDefined(aggs []models.MonthlyAggregate) (defined, undefined []models.MonthlyAggregate) {
	for _, a := range aggs {
		if a.Defined() {
			defined = append(defined, a)
		} else {
			undefined = append(undefined, a)
		}
	}
	return defined, undefined
}

// Flagged returns the defined groups whose invalid share is at or above threshold.
// Flagged groups stay in the main aggregate; this is a review list only.
func Flagged(aggs []models.MonthlyAggregate, threshold float64) []models.MonthlyAggregate {
	var out []models.MonthlyAggregate
	for _, a := range aggs {
		if a.Defined() && a.InvalidShare >= threshold {
			out = append(out, a)
		}
	}
	return out
}

// RollingMean is the trailing, right-aligned mean over k points.
// The first k-1 entries are nil.
func RollingMean(values []float64, k int) []*float64 {
	out := make([]*float64, len(values))
	if k < 1 {
		return out
	}
	for i := k - 1; i < len(values); i++ {
		var sum float64
		for _, v := range values[i-k+1 : i+1] {
			sum += v
		}
		mean := sum / float64(k)
		out[i] = &mean
	}
	return out
}
