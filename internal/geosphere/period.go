package geosphere

import (
	"fmt"
	"time"
)

// LastDayOfMonth returns the last calendar day of month in year, leap Februaries included.
func LastDayOfMonth(year int, month time.Month) time.Time {
	// Day 0 of the next month normalises to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// Period returns the first instant of startMonth and the last hour of endMonth in year.
func Period(year, startMonth, endMonth int) (time.Time, time.Time, error) {
	if startMonth < 1 || startMonth > 12 || endMonth < 1 || endMonth > 12 {
		return time.Time{}, time.Time{}, fmt.Errorf("month range %d-%d outside 1..12", startMonth, endMonth)
	}
	if startMonth > endMonth {
		return time.Time{}, time.Time{}, fmt.Errorf("start month %d after end month %d", startMonth, endMonth)
	}
	start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	end := LastDayOfMonth(year, time.Month(endMonth)).Add(23 * time.Hour)
	return start, end, nil
}
