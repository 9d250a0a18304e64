package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	for _, name := range Names() {
		up, err := Load(name, "up")
		require.NoError(t, err)
		assert.Contains(t, up, "batch_units")

		down, err := Load(name, "down")
		require.NoError(t, err)
		assert.True(t, strings.Contains(down, "DROP TABLE"), down)
	}

	_, err := Load("001_create_manifest", "sideways")
	assert.Error(t, err)
	_, err = Load("999_missing", "up")
	assert.Error(t, err)
}

func TestUnitKeyIncludesMeasurements(t *testing.T) {
	up, err := Load("001_create_manifest", "up")
	require.NoError(t, err)
	assert.Contains(t, up, "UNIQUE (resource_id, measurements, year, start_month, end_month, chunk_key)")
}
