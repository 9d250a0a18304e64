package repository

import (
	"context"

	"geoclim/internal/models"
)

// ManifestRepository records the state of every (year, chunk) unit and batch run,
// so resumable runs query state directly instead of scanning filenames.
type ManifestRepository interface {
	// Unit operations
	UpsertUnit(ctx context.Context, unit *models.Unit) error
	GetUnit(ctx context.Context, key models.UnitKey) (*models.Unit, error)
	ListUnits(ctx context.Context, filter UnitFilter) ([]*models.Unit, error)

	// Run operations
	CreateRun(ctx context.Context, run *models.Run) error
	FinishRun(ctx context.Context, run *models.Run) error
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// UnitFilter defines filters for querying units. Nil fields are ignored.
type UnitFilter struct {
	ResourceID   *string
	Measurements *string
	Year         *int
	State        *models.UnitState
	StationID    *string
	Limit        int
	Offset       int
}

func (f UnitFilter) matches(u *models.Unit) bool {
	if f.ResourceID != nil && u.ResourceID != *f.ResourceID {
		return false
	}
	if f.Measurements != nil && u.Measurements != *f.Measurements {
		return false
	}
	if f.Year != nil && u.Year != *f.Year {
		return false
	}
	if f.State != nil && u.State != *f.State {
		return false
	}
	if f.StationID != nil && !u.HasStation(*f.StationID) {
		return false
	}
	return true
}

// PendingForStation returns the units covering stationID in resourceID that have not
// reached a terminal state. Aggregating such a station would silently use partial coverage.
func PendingForStation(ctx context.Context, repo ManifestRepository, resourceID, stationID string) ([]*models.Unit, error) {
	units, err := repo.ListUnits(ctx, UnitFilter{ResourceID: &resourceID, StationID: &stationID})
	if err != nil {
		return nil, err
	}
	var pending []*models.Unit
	for _, u := range units {
		if !u.State.Terminal() {
			pending = append(pending, u)
		}
	}
	return pending, nil
}
