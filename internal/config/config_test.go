package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNightWindow(t *testing.T) {
	tests := []struct {
		in        string
		want      NightWindow
		wantHours int
		wantErr   bool
	}{
		{in: "18-5", want: NightWindow{From: 18, To: 5}, wantHours: 12},
		{in: "22-6", want: NightWindow{From: 22, To: 6}, wantHours: 9},
		{in: "22-5", want: NightWindow{From: 22, To: 5}, wantHours: 8},
		{in: "0-5", want: NightWindow{From: 0, To: 5}, wantHours: 6},
		{in: "22", wantErr: true},
		{in: "25-3", wantErr: true},
		{in: "a-b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNightWindow(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantHours, got.Hours())
		})
	}
}

func TestNightWindow_Contains(t *testing.T) {
	w := NightWindow{From: 22, To: 5}
	inside := map[int]bool{}
	for h := 0; h < 24; h++ {
		inside[h] = w.Contains(h)
	}
	for _, h := range []int{22, 23, 0, 1, 5} {
		assert.True(t, inside[h], "hour %d should be inside", h)
	}
	for _, h := range []int{6, 12, 21} {
		assert.False(t, inside[h], "hour %d should be outside", h)
	}

	day := NightWindow{From: 1, To: 3}
	assert.True(t, day.Contains(2))
	assert.False(t, day.Contains(4))
}

func validConfig() *Config {
	cfg := Defaults()
	cfg.Aggregation.NightWindow = "22-5"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	t.Run("night window is required", func(t *testing.T) {
		cfg := Defaults()
		require.Error(t, cfg.Validate())
	})

	t.Run("download validation ignores night window", func(t *testing.T) {
		cfg := Defaults()
		require.NoError(t, cfg.ValidateDownload())
	})

	t.Run("postgres manifest needs host", func(t *testing.T) {
		cfg := validConfig()
		cfg.Download.Manifest = "postgres"
		require.Error(t, cfg.Validate())
	})

	t.Run("shared cache needs redis", func(t *testing.T) {
		cfg := validConfig()
		cfg.Stations.SharedCache = true
		require.Error(t, cfg.Validate())
	})

	t.Run("chunk size must be positive", func(t *testing.T) {
		cfg := validConfig()
		cfg.Download.ChunkSize = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("bad timezone", func(t *testing.T) {
		cfg := validConfig()
		cfg.Aggregation.Timezone = "Mars/Olympus"
		require.Error(t, cfg.Validate())
	})
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
download:
  chunk_size: 25
  data_dir: /tmp/geoclim
aggregation:
  night_window: "18-5"
api:
  timeout: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("GEOCLIM_DOWNLOAD__WORKERS", "3")
	t.Setenv("GEOCLIM_DOWNLOAD__MEASUREMENTS", "tl, rf")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Download.ChunkSize)
	assert.Equal(t, "/tmp/geoclim", cfg.Download.DataDir)
	assert.Equal(t, 3, cfg.Download.Workers)
	assert.Equal(t, []string{"tl", "rf"}, cfg.Download.Measurements)
	assert.Equal(t, "18-5", cfg.Aggregation.NightWindow)
	assert.Equal(t, 90*time.Second, cfg.API.Timeout)
	assert.Equal(t, 0.05, cfg.Aggregation.InvalidShareMax)
	require.NoError(t, cfg.Validate())
}

func TestParseYears(t *testing.T) {
	years, err := ParseYears("2020-2021")
	require.NoError(t, err)
	assert.Equal(t, []int{2020, 2021}, years)

	years, err = ParseYears("2021, 2018-2019,2019")
	require.NoError(t, err)
	assert.Equal(t, []int{2018, 2019, 2021}, years)

	years, err = ParseYears("1800,2200")
	require.NoError(t, err)
	assert.Equal(t, []int{1800, 2200}, years)

	for _, bad := range []string{"", "x", "2021-2020", "2020-y", "0", "1-999999999", "1799", "2020-2201", "-5-3"} {
		_, err := ParseYears(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseMonthRange(t *testing.T) {
	start, end, err := ParseMonthRange("6-8")
	require.NoError(t, err)
	assert.Equal(t, 6, start)
	assert.Equal(t, 8, end)

	start, end, err = ParseMonthRange("12")
	require.NoError(t, err)
	assert.Equal(t, 12, start)
	assert.Equal(t, 12, end)

	for _, bad := range []string{"0-3", "8-6", "1-13", "june"} {
		_, _, err := ParseMonthRange(bad)
		assert.Error(t, err, bad)
	}
}
