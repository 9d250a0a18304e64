package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoclim/internal/config"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Download.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Aggregation.OutputDir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestNew_FileManifest(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logging.NewNopLogger(), metrics.NewTestCollector())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Download)
	assert.NotNil(t, a.Catalog)
	assert.NoError(t, a.Manifest.HealthCheck(context.Background()))
	assert.Contains(t, a.Registry.IDs(), "klima-v2-1h")
}

func TestAggregation_RequiresNightWindow(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logging.NewNopLogger(), metrics.NewTestCollector())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Aggregation(AggregationTarget{})
	require.Error(t, err)

	cfg.Aggregation.NightWindow = "22-5"
	agg, err := a.Aggregation(AggregationTarget{})
	require.NoError(t, err)
	assert.NotNil(t, agg)

	cfg.Aggregation.Timezone = "Nowhere/Nothing"
	_, err = a.Aggregation(AggregationTarget{})
	assert.Error(t, err)
}

func TestAggregation_TargetOverridesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aggregation.NightWindow = "22-5"
	a, err := New(context.Background(), cfg, logging.NewNopLogger(), metrics.NewTestCollector())
	require.NoError(t, err)
	defer a.Close()

	agg, err := a.Aggregation(AggregationTarget{})
	require.NoError(t, err)
	assert.Equal(t, cfg.Download.ResourceID, agg.Options().ResourceID)
	assert.Equal(t, cfg.Aggregation.Field, agg.Options().Field)

	agg, err = a.Aggregation(AggregationTarget{ResourceID: "klima-v2-1d", Field: "rr"})
	require.NoError(t, err)
	assert.Equal(t, "klima-v2-1d", agg.Options().ResourceID)
	assert.Equal(t, "rr", agg.Options().Field)
}

func TestDatabaseConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Database.Host = "db.internal"
	dsn := DatabaseConfig(cfg).DSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=geoclim")
}
