package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"geoclim/internal/models"
	"geoclim/pkg/database"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

// unitRow is the batch_units row shape
type unitRow struct {
	ID           int64          `db:"id"`
	ResourceID   string         `db:"resource_id"`
	Measurements string         `db:"measurements"`
	Year         int            `db:"year"`
	StartMonth   int            `db:"start_month"`
	EndMonth     int            `db:"end_month"`
	ChunkKey     string         `db:"chunk_key"`
	StationIDs   pq.StringArray `db:"station_ids"`
	State        string         `db:"state"`
	Error        string         `db:"error"`
	RawPath      string         `db:"raw_path"`
	Files        pq.StringArray `db:"files"`
	Attempts     int            `db:"attempts"`
	RunID        string         `db:"run_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *unitRow) toModel() *models.Unit {
	return &models.Unit{
		UnitKey: models.UnitKey{
			ResourceID:   r.ResourceID,
			Measurements: r.Measurements,
			Year:         r.Year,
			StartMonth:   r.StartMonth,
			EndMonth:     r.EndMonth,
			ChunkKey:     r.ChunkKey,
		},
		StationIDs: []string(r.StationIDs),
		State:      models.UnitState(r.State),
		Error:      r.Error,
		RawPath:    r.RawPath,
		Files:      []string(r.Files),
		Attempts:   r.Attempts,
		RunID:      r.RunID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

const unitColumns = `id, resource_id, measurements, year, start_month, end_month, chunk_key, station_ids,
	state, error, raw_path, files, attempts, run_id, created_at, updated_at`

// postgresManifest implements ManifestRepository on the batch_units/batch_runs tables
type postgresManifest struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewPostgresManifest creates a Postgres-backed manifest
func NewPostgresManifest(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ManifestRepository {
	return &postgresManifest{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// UpsertUnit inserts or updates a unit keyed by (resource, measurements, year, months, chunk)
func (r *postgresManifest) UpsertUnit(ctx context.Context, unit *models.Unit) error {
	now := time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now

	query := `
		INSERT INTO batch_units (
			resource_id, measurements, year, start_month, end_month, chunk_key, station_ids,
			state, error, raw_path, files, attempts, run_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (resource_id, measurements, year, start_month, end_month, chunk_key) DO UPDATE SET
			station_ids = EXCLUDED.station_ids,
			state = EXCLUDED.state,
			error = EXCLUDED.error,
			raw_path = EXCLUDED.raw_path,
			files = EXCLUDED.files,
			attempts = EXCLUDED.attempts,
			run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, "upsert_unit", query,
		unit.ResourceID,
		unit.Measurements,
		unit.Year,
		unit.StartMonth,
		unit.EndMonth,
		unit.ChunkKey,
		pq.Array(unit.StationIDs),
		string(unit.State),
		unit.Error,
		unit.RawPath,
		pq.Array(unit.Files),
		unit.Attempts,
		unit.RunID,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert unit %s: %w", unit.UnitKey, err)
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_UNIT] Unit recorded", logging.Fields{
		"unit":  unit.UnitKey.String(),
		"state": unit.State,
	})
	return nil
}

// GetUnit retrieves one unit by key
func (r *postgresManifest) GetUnit(ctx context.Context, key models.UnitKey) (*models.Unit, error) {
	query := `SELECT ` + unitColumns + `
		FROM batch_units
		WHERE resource_id = $1 AND measurements = $2 AND year = $3
			AND start_month = $4 AND end_month = $5 AND chunk_key = $6
	`

	var row unitRow
	err := r.db.GetContext(ctx, "get_unit", &row, query,
		key.ResourceID, key.Measurements, key.Year, key.StartMonth, key.EndMonth, key.ChunkKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "batch_unit", ID: key.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return row.toModel(), nil
}

// ListUnits retrieves units matching the filter
func (r *postgresManifest) ListUnits(ctx context.Context, filter UnitFilter) ([]*models.Unit, error) {
	query := `SELECT ` + unitColumns + `
		FROM batch_units
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.ResourceID != nil {
		query += fmt.Sprintf(" AND resource_id = $%d", argNum)
		args = append(args, *filter.ResourceID)
		argNum++
	}
	if filter.Year != nil {
		query += fmt.Sprintf(" AND year = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}
	if filter.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argNum)
		args = append(args, string(*filter.State))
		argNum++
	}
	if filter.StationID != nil {
		query += fmt.Sprintf(" AND $%d = ANY(station_ids)", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Measurements != nil {
		query += fmt.Sprintf(" AND measurements = $%d", argNum)
		args = append(args, *filter.Measurements)
		argNum++
	}

	query += " ORDER BY resource_id, measurements, year, chunk_key"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []unitRow
	if err := r.db.SelectContext(ctx, "list_units", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	units := make([]*models.Unit, 0, len(rows))
	for i := range rows {
		units = append(units, rows[i].toModel())
	}
	return units, nil
}

// CreateRun records the start of a batch run
func (r *postgresManifest) CreateRun(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO batch_runs (id, resource_id, started_at, saved, skipped, failed, status)
		VALUES (:id, :resource_id, :started_at, :saved, :skipped, :failed, :status)
	`
	if _, err := r.db.NamedExecContext(ctx, "create_run", query, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the final counts of a batch run
func (r *postgresManifest) FinishRun(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE batch_runs
		SET finished_at = :finished_at, saved = :saved, skipped = :skipped, failed = :failed, status = :status
		WHERE id = :id
	`
	if _, err := r.db.NamedExecContext(ctx, "finish_run", query, run); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// ListRuns retrieves the most recent runs
func (r *postgresManifest) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, resource_id, started_at, finished_at, saved, skipped, failed, status
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	var runs []*models.Run
	if err := r.db.SelectContext(ctx, "list_runs", &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// HealthCheck performs a repository health check
func (r *postgresManifest) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
