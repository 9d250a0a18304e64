package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/geoclim/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is stripped from environment variables; "__" separates nesting levels,
// so GEOCLIM_AGGREGATION__NIGHT_WINDOW sets aggregation.night_window.
const EnvPrefix = "GEOCLIM_"

// Defaults returns the configuration before file and environment overrides.
// The night window deliberately has no default.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:          "https://dataset.api.hub.geosphere.at",
			FileBaseURL:      "https://public.hub.geosphere.at/datahub/resources",
			Version:          "v1",
			Timeout:          5 * time.Minute,
			RequestsPerSec:   5,
			MaxRetries:       2,
			RetryDelay:       2 * time.Second,
			BreakerEnabled:   true,
			BreakerThreshold: 5,
			BreakerTimeout:   time.Minute,
		},
		Download: DownloadConfig{
			DataDir:      "./data",
			ChunkSize:    40,
			Workers:      1,
			OutputFormat: "csv",
			Manifest:     "file",
			ResourceID:   "klima-v2-1h",
			Measurements: []string{"tl"},
		},
		Aggregation: AggregationConfig{
			Timezone:        "UTC",
			Field:           "tl",
			InvalidShareMax: 0.05,
			SmoothingWindow: 5,
			OutputDir:       "./data/aggregates",
		},
		Stations: StationsConfig{
			CacheTTL:     0,
			MetadataType: "station",
			MetadataMode: "historical",
		},
		Database: DatabaseConfig{
			Port:            5432,
			User:            "geoclim",
			Database:        "geoclim",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Schedule: ScheduleConfig{
			Months: "1-12",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig layers defaults, an optional YAML file and GEOCLIM_ environment variables.
// It does not validate; callers pick Validate or ValidateDownload depending on what they run.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitListFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envTransform(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

var listPaths = []string{
	"download.measurements",
	"schedule.station_ids",
}

// splitListFields turns comma separated env values into slices.
func splitListFields(k *koanf.Koanf) error {
	for _, path := range listPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var out []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
