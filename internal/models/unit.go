package models

import (
	"fmt"
	"time"
)

// UnitState is the lifecycle state of one (year, chunk) batch unit
type UnitState string

const (
	UnitPending       UnitState = "pending"
	UnitDownloading   UnitState = "downloading"
	UnitSaved         UnitState = "saved"
	UnitSkippedExists UnitState = "skipped_exists"
	UnitFailed        UnitState = "failed"
)

// Terminal reports whether the unit finished, successfully or not.
func (s UnitState) Terminal() bool {
	return s == UnitSaved || s == UnitSkippedExists || s == UnitFailed
}

// Complete reports whether the unit's outputs are on disk.
func (s UnitState) Complete() bool {
	return s == UnitSaved || s == UnitSkippedExists
}

// UnitKey identifies a batch unit across runs. Measurements is the
// normalised measurement set token, e.g. "tl" or "rr+tl".
type UnitKey struct {
	ResourceID   string `json:"resource_id"`
	Measurements string `json:"measurements"`
	Year         int    `json:"year"`
	StartMonth   int    `json:"start_month"`
	EndMonth     int    `json:"end_month"`
	ChunkKey     string `json:"chunk_key"`
}

func (k UnitKey) String() string {
	return fmt.Sprintf("%s/%s/%d/m%02d-%02d/%s", k.ResourceID, k.Measurements, k.Year, k.StartMonth, k.EndMonth, k.ChunkKey)
}

// SameStations reports whether the unit covers exactly ids, in order.
func (u *Unit) SameStations(ids []string) bool {
	if len(u.StationIDs) != len(ids) {
		return false
	}
	for i := range ids {
		if u.StationIDs[i] != ids[i] {
			return false
		}
	}
	return true
}

// Unit is the manifest record of one (year, chunk) unit
type Unit struct {
	UnitKey
	StationIDs []string  `json:"station_ids"`
	State      UnitState `json:"state"`
	Error      string    `json:"error,omitempty"`
	RawPath    string    `json:"raw_path,omitempty"`
	Files      []string  `json:"files,omitempty"`
	Attempts   int       `json:"attempts"`
	RunID      string    `json:"run_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasStation reports whether the unit covers the station.
func (u *Unit) HasStation(id string) bool {
	for _, s := range u.StationIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Run is the manifest record of one batch invocation
type Run struct {
	ID         string     `json:"id" db:"id"`
	ResourceID string     `json:"resource_id" db:"resource_id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Saved      int        `json:"saved" db:"saved"`
	Skipped    int        `json:"skipped" db:"skipped"`
	Failed     int        `json:"failed" db:"failed"`
	Status     string     `json:"status" db:"status"`
}
