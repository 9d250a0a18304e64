package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Date wraps time.Time but marshals as YYYY-MM-DD. The GeoSphere metadata
// endpoints deliver full timestamps ("1951-01-01T00:00+00:00"); both forms parse.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04Z07:00",
	time.RFC3339,
}

// ParseDate parses the date layouts used by the open-data API.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}, nil
		}
	}
	return Date{}, &ValidationError{Field: "date", Value: s, Message: fmt.Sprintf("unrecognised date %q", s)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// StationID accepts both numeric and string ids from upstream JSON.
type StationID string

func (id *StationID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = StationID(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("station id %s: %w", string(b), err)
	}
	*id = StationID(strconv.FormatInt(n, 10))
	return nil
}

// Station represents a weather observation station
type Station struct {
	ID                 StationID `json:"id"`
	Name               string    `json:"name"`
	State              string    `json:"state,omitempty"`
	Lat                float64   `json:"lat"`
	Lon                float64   `json:"lon"`
	Altitude           float64   `json:"altitude"`
	ValidFrom          *Date     `json:"valid_from,omitempty"`
	ValidTo            *Date     `json:"valid_to,omitempty"`
	IsActive           bool      `json:"is_active"`
	HasSunshine        bool      `json:"has_sunshine"`
	HasGlobalRadiation bool      `json:"has_global_radiation"`
}

// Validate checks that the validity window is ordered when both ends are known.
func (s *Station) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Message: "station id is empty"}
	}
	if s.ValidFrom != nil && s.ValidTo != nil && s.ValidFrom.After(s.ValidTo.Time) {
		return &ValidationError{
			Field:   "valid_from",
			Value:   s.ValidFrom.String(),
			Message: fmt.Sprintf("station %s: valid_from %s is after valid_to %s", s.ID, s.ValidFrom, s.ValidTo),
		}
	}
	return nil
}

// CoversYear reports whether the station's record overlaps the calendar year.
// An open valid_to means the station is still reporting.
func (s *Station) CoversYear(year int) bool {
	if s.ValidFrom != nil && s.ValidFrom.Year() > year {
		return false
	}
	if s.ValidTo != nil && s.ValidTo.Year() < year {
		return false
	}
	return true
}
