package models

import (
	"math"
	"time"
)

// RawObservation is one (station, timestamp) row of a retrieved time series.
// A nil value means the field was missing or unparseable.
type RawObservation struct {
	StationID string
	Time      time.Time
	Values    map[string]*float64
	Flags     map[string]string
}

// MonthlyAggregate summarises one (station, year, month) group
type MonthlyAggregate struct {
	StationID    string  `json:"station_id"`
	StationName  string  `json:"station_name"`
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	Mean         float64 `json:"mean"`
	ValidCount   int     `json:"valid_count"`
	InvalidCount int     `json:"invalid_count"`
	InvalidShare float64 `json:"invalid_share"`
}

// Defined reports whether the group had at least one valid observation.
func (m MonthlyAggregate) Defined() bool {
	return m.ValidCount > 0 && !math.IsNaN(m.Mean)
}

// AnnualRow is the wide per-(station, year) output shape. Missing entries are nil.
type AnnualRow struct {
	StationID   string
	StationName string
	Year        int
	Monthly     map[int]*float64
	Smoothed    map[int]*float64
}
