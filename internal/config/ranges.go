package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Years accepted on the command line and in the schedule.
const (
	MinYear = 1800
	MaxYear = 2200
)

// ParseYears parses "2020", "2018-2021" or comma-separated combinations of both.
// The result is ascending without duplicates.
func ParseYears(s string) ([]int, error) {
	seen := make(map[int]bool)
	var years []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, err := parseSpan(part)
		if err != nil {
			return nil, fmt.Errorf("years %q: %w", s, err)
		}
		if from > to {
			return nil, fmt.Errorf("years %q: invalid range %d-%d", s, from, to)
		}
		if from < MinYear || to > MaxYear {
			return nil, fmt.Errorf("years %q: %d-%d is outside %d..%d", s, from, to, MinYear, MaxYear)
		}
		for y := from; y <= to; y++ {
			if !seen[y] {
				seen[y] = true
				years = append(years, y)
			}
		}
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("years %q: no year given", s)
	}
	sort.Ints(years)
	return years, nil
}

// ParseMonthRange parses "6-8" or a single month "7".
func ParseMonthRange(s string) (start, end int, err error) {
	start, end, err = parseSpan(strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("months %q: %w", s, err)
	}
	if start < 1 || end > 12 || start > end {
		return 0, 0, fmt.Errorf("months %q: must be an ordered range within 1..12", s)
	}
	return start, end, nil
}

func parseSpan(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, "-")
	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return from, from, nil
	}
	to, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}
