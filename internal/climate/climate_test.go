package climate

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoclim/internal/config"
	"geoclim/internal/models"
	"geoclim/internal/table"
)

func fp(v float64) *float64 { return &v }

// syntheticJune builds 30 days x 24 hours for one station. value = day + hour/100;
// every third night hour on even days is missing.
func syntheticJune(night config.NightWindow) (obs []models.RawObservation, wantMean float64, wantShare float64) {
	var sum float64
	var valid, invalid int
	for day := 1; day <= 30; day++ {
		for hour := 0; hour < 24; hour++ {
			ts := time.Date(2020, time.June, day, hour, 0, 0, 0, time.UTC)
			v := float64(day) + float64(hour)/100
			missing := night.Contains(hour) && day%2 == 0 && hour%3 == 0

			o := models.RawObservation{StationID: "105", Time: ts, Values: map[string]*float64{"tl": fp(v)}}
			if missing {
				o.Values["tl"] = nil
			}
			obs = append(obs, o)

			if !night.Contains(hour) {
				continue
			}
			if missing {
				invalid++
			} else {
				sum += v
				valid++
			}
		}
	}
	return obs, sum / float64(valid), float64(invalid) / float64(valid+invalid)
}

func TestMonthlyNight_SyntheticMonth(t *testing.T) {
	windows := []config.NightWindow{{From: 22, To: 5}, {From: 18, To: 5}, {From: 22, To: 6}, {From: 0, To: 3}}
	for _, w := range windows {
		t.Run(w.String(), func(t *testing.T) {
			obs, wantMean, wantShare := syntheticJune(w)
			aggs := MonthlyNight(obs, "tl", w, time.UTC)
			require.Len(t, aggs, 1)

			got := aggs[0]
			assert.Equal(t, "105", got.StationID)
			assert.Equal(t, 2020, got.Year)
			assert.Equal(t, 6, got.Month)
			assert.InDelta(t, wantMean, got.Mean, 1e-9)
			assert.InDelta(t, wantShare, got.InvalidShare, 1e-12)
			assert.Equal(t, 30*w.Hours(), got.ValidCount+got.InvalidCount)
		})
	}
}

func TestMonthlyNight_GroupsByLocalTime(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	// 22:30 UTC on 31 May is 23:30 CET; 23:30 UTC is 00:30 CET on 1 June.
	obs := []models.RawObservation{
		{StationID: "1", Time: time.Date(2020, 5, 31, 22, 30, 0, 0, time.UTC), Values: map[string]*float64{"tl": fp(10)}},
		{StationID: "1", Time: time.Date(2020, 5, 31, 23, 30, 0, 0, time.UTC), Values: map[string]*float64{"tl": fp(20)}},
	}
	aggs := MonthlyNight(obs, "tl", config.NightWindow{From: 22, To: 5}, cet)
	require.Len(t, aggs, 2)
	assert.Equal(t, 5, aggs[0].Month)
	assert.Equal(t, 10.0, aggs[0].Mean)
	assert.Equal(t, 6, aggs[1].Month)
	assert.Equal(t, 20.0, aggs[1].Mean)
}

func TestMonthlyNight_DuplicatesCountedOnce(t *testing.T) {
	ts := time.Date(2020, 1, 1, 23, 0, 0, 0, time.UTC)
	obs := []models.RawObservation{
		{StationID: "1", Time: ts, Values: map[string]*float64{"tl": fp(1)}},
		{StationID: "1", Time: ts, Values: map[string]*float64{"tl": fp(1)}},
		{StationID: "1", Time: ts.Add(time.Hour), Values: map[string]*float64{"tl": fp(3)}},
	}
	aggs := MonthlyNight(obs, "tl", config.NightWindow{From: 22, To: 5}, nil)
	require.Len(t, aggs, 1)
	assert.Equal(t, 2, aggs[0].ValidCount)
	assert.Equal(t, 2.0, aggs[0].Mean)
}

func TestSplitDefinedAndFlagged(t *testing.T) {
	aggs := []models.MonthlyAggregate{
		{StationID: "1", Year: 2020, Month: 1, Mean: 1, ValidCount: 95, InvalidCount: 5, InvalidShare: 0.05},
		{StationID: "1", Year: 2020, Month: 2, Mean: 1, ValidCount: 96, InvalidCount: 4, InvalidShare: 0.04},
		{StationID: "1", Year: 2020, Month: 3, Mean: math.NaN(), ValidCount: 0, InvalidCount: 10, InvalidShare: 1},
	}

	defined, undefined := SplitDefined(aggs)
	assert.Len(t, defined, 2)
	require.Len(t, undefined, 1)
	assert.Equal(t, 3, undefined[0].Month)

	flagged := Flagged(aggs, 0.05)
	require.Len(t, flagged, 1, "threshold is inclusive and undefined groups are never flagged")
	assert.Equal(t, 1, flagged[0].Month)
}

func TestRollingMean_TenYears(t *testing.T) {
	values := []float64{8.1, 8.4, 7.9, 8.8, 9.0, 8.6, 9.3, 9.1, 9.7, 9.4}
	got := RollingMean(values, 5)
	require.Len(t, got, 10)

	for i := 0; i < 4; i++ {
		assert.Nil(t, got[i], "year %d must be NA", i+1)
	}
	for i := 4; i < 10; i++ {
		var sum float64
		for _, v := range values[i-4 : i+1] {
			sum += v
		}
		require.NotNil(t, got[i], "year %d", i+1)
		assert.Equal(t, sum/5, *got[i], "year %d", i+1)
	}
}

func TestRollingMean_ShortSeries(t *testing.T) {
	assert.Equal(t, []*float64{nil, nil}, RollingMean([]float64{1, 2}, 5))
	assert.Empty(t, RollingMean(nil, 5))

	got := RollingMean([]float64{1, 2, 3}, 1)
	assert.Equal(t, 3.0, *got[2])
}

func TestAnnual_SmoothingNeedsFullWindow(t *testing.T) {
	var aggs []models.MonthlyAggregate
	for year := 2020; year <= 2021; year++ {
		for month := 6; month <= 8; month++ {
			aggs = append(aggs, models.MonthlyAggregate{
				StationID: "105", StationName: "WIEN/HOHE WARTE", Year: year, Month: month,
				Mean: float64(year-2000) + float64(month)/10, ValidCount: 248,
			})
		}
	}

	rows := Annual(aggs, 5)
	require.Len(t, rows, 2)
	for _, r := range rows {
		for month := 6; month <= 8; month++ {
			require.NotNil(t, r.Monthly[month])
			assert.Nil(t, r.Smoothed[month], "%d-%02d smoothed must be NA with two years", r.Year, month)
		}
	}

	tbl := WideTable(rows, []int{6, 7, 8}, 5)
	assert.Equal(t, []string{"station_name", "station_id", "year", "Jun", "Jul", "Aug", "Jun_5yr_avg", "Jul_5yr_avg", "Aug_5yr_avg"}, tbl.Header)
	assert.Equal(t, []string{"WIEN/HOHE WARTE", "105", "2020", "20.600", "20.700", "20.800", "NA", "NA", "NA"}, tbl.Rows[0])
}

func TestAnnual_SmoothingSkipsGaps(t *testing.T) {
	var aggs []models.MonthlyAggregate
	for year := 2010; year <= 2016; year++ {
		if year == 2012 {
			aggs = append(aggs, models.MonthlyAggregate{StationID: "1", Year: year, Month: 1, Mean: math.NaN(), InvalidCount: 10})
			continue
		}
		aggs = append(aggs, models.MonthlyAggregate{StationID: "1", Year: year, Month: 1, Mean: float64(year - 2009), ValidCount: 1})
	}

	rows := Annual(aggs, 5)
	require.Len(t, rows, 6, "undefined groups produce no row")

	byYear := map[int]models.AnnualRow{}
	for _, r := range rows {
		byYear[r.Year] = r
	}
	assert.Nil(t, byYear[2014].Smoothed[1])
	require.NotNil(t, byYear[2015].Smoothed[1])
	assert.Equal(t, (1.0+2+4+5+6)/5, *byYear[2015].Smoothed[1])
	assert.Equal(t, (2.0+4+5+6+7)/5, *byYear[2016].Smoothed[1])
}

func TestObservations(t *testing.T) {
	tbl, err := table.Read(strings.NewReader(
		"time,station,tl,tl_flag\n"+
			"2020-06-01T00:00+00:00,105,12.5,12\n"+
			"2020-06-01T01:00+00:00,105,NA,\n"+
			"2020-06-01T02:00+00:00,,x,\n"), "obs")
	require.NoError(t, err)

	obs, err := Observations(tbl, "obs", "999", "tl")
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, 12.5, *obs[0].Values["tl"])
	assert.Equal(t, "12", obs[0].Flags["tl"])
	assert.Nil(t, obs[1].Values["tl"])
	assert.Nil(t, obs[2].Values["tl"])
	assert.Equal(t, "105", obs[0].StationID)
	assert.Equal(t, "999", obs[2].StationID, "falls back to the file's station")

	_, err = Observations(tbl, "obs", "105", "rf")
	var pe *models.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestObservations_BadTimestamp(t *testing.T) {
	tbl, err := table.Read(strings.NewReader("time,tl\n2020-06-01T00:00+00:00,1\nyesterday,2\n"), "obs")
	require.NoError(t, err)
	_, err = Observations(tbl, "obs", "105", "tl")
	var pe *models.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Line)
}

func TestStationFilename_RoundTrip(t *testing.T) {
	f := StationFile{CleanName: "WIEN_HOHE_WARTE", StationID: "105", StartYear: 2020, EndYear: 2020, StartMonth: 6, EndMonth: 8}
	name := f.Name()
	assert.Equal(t, "WIEN_HOHE_WARTE__id105__ys2020__ye2020__ms06__me08__hourly_data.csv", name)

	back, err := ParseStationFilename("/data/stations/klima-v2-1h/tl/id105/" + name)
	require.NoError(t, err)
	assert.Equal(t, f, back)

	for _, bad := range []string{"notes.txt", "X__id1__ys2020__ye2020__ms09__me08__hourly_data.csv", "X__id1__ys2020__ye2020__ms00__me08__hourly_data.csv"} {
		_, err := ParseStationFilename(bad)
		assert.Error(t, err, bad)
	}
}

func TestMeasurementSet(t *testing.T) {
	assert.Equal(t, "tl", MeasurementSet([]string{"TL"}))
	assert.Equal(t, "rr+tl", MeasurementSet([]string{"tl", "rr", " tl "}))
	assert.Equal(t, AllMeasurements, MeasurementSet(nil))
	assert.Equal(t, "a_b", MeasurementSet([]string{"a/b"}))

	assert.True(t, MeasurementSetIncludes("rr+tl", "tl"))
	assert.True(t, MeasurementSetIncludes("tl", "TL"))
	assert.False(t, MeasurementSetIncludes("rr", "tl"))
	assert.False(t, MeasurementSetIncludes("tl_mittel", "tl"))
	assert.True(t, MeasurementSetIncludes(AllMeasurements, "tl"))
}

func TestStationDir_SeparatesResourcesAndMeasurements(t *testing.T) {
	hourly := StationDir("/data", "klima-v2-1h", "tl", "105")
	daily := StationDir("/data", "klima-v2-1d", "tl", "105")
	rain := StationDir("/data", "klima-v2-1h", "rr", "105")
	assert.Equal(t, filepath.Join("/data", "stations", "klima-v2-1h", "tl", "id105"), hourly)
	assert.NotEqual(t, hourly, daily)
	assert.NotEqual(t, hourly, rain)
}

func TestRawChunkPath_KeyedByRequest(t *testing.T) {
	base := RawChunkPath("/data", "klima-v2-1h", "tl", 2020, 6, 8, "c000_105-107", []string{"105", "107"})
	assert.Equal(t, filepath.Join("/data", "raw", "klima-v2-1h", "tl", "y2020", "m06-08"), filepath.Dir(base))
	assert.True(t, strings.HasPrefix(filepath.Base(base), "c000_105-107_"))

	assert.Equal(t, base, RawChunkPath("/data", "klima-v2-1h", "tl", 2020, 6, 8, "c000_105-107", []string{"105", "107"}))
	for name, other := range map[string]string{
		"months":       RawChunkPath("/data", "klima-v2-1h", "tl", 2020, 1, 2, "c000_105-107", []string{"105", "107"}),
		"stations":     RawChunkPath("/data", "klima-v2-1h", "tl", 2020, 6, 8, "c000_105-107", []string{"105", "106", "107"}),
		"measurements": RawChunkPath("/data", "klima-v2-1h", "rr", 2020, 6, 8, "c000_105-107", []string{"105", "107"}),
		"resource":     RawChunkPath("/data", "klima-v2-1d", "tl", 2020, 6, 8, "c000_105-107", []string{"105", "107"}),
	} {
		assert.NotEqual(t, base, other, name)
	}
}

func TestOutputNames(t *testing.T) {
	assert.Equal(t, "id105_WIEN_HOHE_WARTE__night_tl_monthly.csv", AggregateFilename("105", "WIEN_HOHE_WARTE", "tl"))
	assert.Equal(t, "id105_HIGH_SHARE_NAs.csv", FlaggedFilename("105"))
	assert.Equal(t, "Jun", MonthAbbr(6))
}
