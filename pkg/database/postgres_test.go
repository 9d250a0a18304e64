package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock, *metrics.Collector) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	m := metrics.NewTestCollector()
	db := Wrap(sqlx.NewDb(mockDB, "postgres"), nil, logging.NewNopLogger(), m)
	t.Cleanup(func() { db.Close() })
	return db, mock, m
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5433, User: "geo", Password: "pw", Database: "geoclim", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=geo password=pw dbname=geoclim sslmode=disable", cfg.DSN())
}

func TestPostgresDB_ExecCountsErrors(t *testing.T) {
	db, mock, m := newMockDB(t)

	mock.ExpectExec("DELETE FROM batch_units").WillReturnError(errors.New("permission denied"))

	_, err := db.ExecContext(context.Background(), "delete_unit", "DELETE FROM batch_units")
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("exec_error")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDB_GetNoRowsIsNotAnError(t *testing.T) {
	db, mock, m := newMockDB(t)

	mock.ExpectQuery("SELECT state FROM batch_units").WillReturnError(sql.ErrNoRows)

	var state string
	err := db.GetContext(context.Background(), "get_unit", &state, "SELECT state FROM batch_units WHERE id = $1", 1)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("get_error")))
}

func TestPostgresDB_Select(t *testing.T) {
	db, mock, _ := newMockDB(t)

	mock.ExpectQuery("SELECT run_id FROM batch_runs").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}).AddRow("a").AddRow("b"))

	var ids []string
	require.NoError(t, db.SelectContext(context.Background(), "list_runs", &ids, "SELECT run_id FROM batch_runs"))
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestPostgresDB_HealthCheck(t *testing.T) {
	db, mock, _ := newMockDB(t)

	mock.ExpectPing()
	assert.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err := db.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}
