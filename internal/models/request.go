package models

import (
	"fmt"
	"time"
)

// DownloadRequest describes one fetch operation. Treat it as immutable once issued.
type DownloadRequest struct {
	ResourceID string
	// Parameters are the schema parameters used to resolve the resource.
	Parameters map[string]string
	// Measurements are the parameter codes sent upstream (e.g. "tl").
	Measurements []string
	Start        time.Time
	End          time.Time
	StationIDs   []string
	// OutputPath is the destination file; empty means the response is returned in memory.
	OutputPath   string
	OutputFormat string
}

// InMemory reports whether the response should be parsed and returned instead of persisted.
func (r *DownloadRequest) InMemory() bool {
	return r.OutputPath == ""
}

// Validate checks request invariants for the given dataset type
func (r *DownloadRequest) Validate(datasetType string) error {
	if r.ResourceID == "" {
		return &ValidationError{Field: "resource_id", Message: "resource id is required"}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End) {
		return &ValidationError{
			Field:   "start",
			Value:   r.Start.Format(time.RFC3339),
			Message: fmt.Sprintf("start %s is after end %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339)),
		}
	}
	if datasetType == "station" && len(r.StationIDs) == 0 {
		return &ValidationError{Field: "station_ids", Message: "station datasets require at least one station id"}
	}
	return nil
}

// FetchStatus tells how a fetch completed
type FetchStatus string

const (
	FetchSaved    FetchStatus = "saved"
	FetchSkipped  FetchStatus = "skipped_exists"
	FetchInMemory FetchStatus = "in_memory"
)

// FetchResult is the successful outcome of a fetch. Failures are returned as typed errors,
// so a result with Rows == 0 always means the upstream answered with no data.
type FetchResult struct {
	Status FetchStatus
	URL    string
	Path   string
	Bytes  int64
	Rows   int
	Header []string
	Data   [][]string
}
