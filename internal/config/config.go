package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete runtime configuration
type Config struct {
	API         APIConfig         `koanf:"api"`
	Download    DownloadConfig    `koanf:"download"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Stations    StationsConfig    `koanf:"stations"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Server      ServerConfig      `koanf:"server"`
	Schedule    ScheduleConfig    `koanf:"schedule"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// APIConfig configures access to the GeoSphere open-data hub
type APIConfig struct {
	BaseURL          string        `koanf:"base_url" validate:"required,url"`
	FileBaseURL      string        `koanf:"file_base_url" validate:"required,url"`
	Version          string        `koanf:"version" validate:"required"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSec   float64       `koanf:"requests_per_sec" validate:"gte=0"`
	MaxRetries       int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay       time.Duration `koanf:"retry_delay" validate:"gte=0"`
	BreakerEnabled   bool          `koanf:"breaker_enabled"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"gte=1"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout" validate:"gte=0"`
}

// DownloadConfig configures the chunked batch downloader
type DownloadConfig struct {
	DataDir      string   `koanf:"data_dir" validate:"required"`
	ChunkSize    int      `koanf:"chunk_size" validate:"gte=1"`
	Workers      int      `koanf:"workers" validate:"gte=1,lte=16"`
	OutputFormat string   `koanf:"output_format" validate:"oneof=csv"`
	Manifest     string   `koanf:"manifest" validate:"oneof=file postgres"`
	ResourceID   string   `koanf:"resource_id"`
	Measurements []string `koanf:"measurements"`
}

// AggregationConfig configures the night-temperature aggregation stage
type AggregationConfig struct {
	// NightWindow is required and has no default, e.g. "22-5" for 22:00 through 05:59.
	NightWindow     string  `koanf:"night_window" validate:"required"`
	Timezone        string  `koanf:"timezone" validate:"required"`
	Field           string  `koanf:"field" validate:"required"`
	InvalidShareMax float64 `koanf:"invalid_share_max" validate:"gt=0,lte=1"`
	SmoothingWindow int     `koanf:"smoothing_window" validate:"gte=1"`
	OutputDir       string  `koanf:"output_dir" validate:"required"`
}

// StationsConfig configures the station directory cache
type StationsConfig struct {
	CacheTTL     time.Duration `koanf:"cache_ttl" validate:"gte=0"`
	SharedCache  bool          `koanf:"shared_cache"`
	MetadataType string        `koanf:"metadata_type" validate:"required"`
	MetadataMode string        `koanf:"metadata_mode" validate:"required"`
}

// DatabaseConfig holds Postgres settings for the manifest table
type DatabaseConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Database        string        `koanf:"database"`
	SSLMode         string        `koanf:"sslmode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// RedisConfig configures the optional shared station cache
type RedisConfig struct {
	URL string `koanf:"url"`
}

// ServerConfig configures the status API
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

// ScheduleConfig configures periodic batch runs inside the server
type ScheduleConfig struct {
	Cron       string   `koanf:"cron"`
	Years      string   `koanf:"years"`
	Months     string   `koanf:"months"`
	StationIDs []string `koanf:"station_ids"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// NightWindow is an inclusive hour-of-day range. From > To wraps past midnight,
// so {22, 5} covers 22:00 through 05:59.
type NightWindow struct {
	From int
	To   int
}

// ParseNightWindow parses "FROM-TO" hour pairs such as "18-5" or "22-6".
func ParseNightWindow(s string) (NightWindow, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return NightWindow{}, fmt.Errorf("night window %q: expected FROM-TO hours", s)
	}
	from, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return NightWindow{}, fmt.Errorf("night window %q: %w", s, err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return NightWindow{}, fmt.Errorf("night window %q: %w", s, err)
	}
	w := NightWindow{From: from, To: to}
	if err := w.Validate(); err != nil {
		return NightWindow{}, err
	}
	return w, nil
}

// Validate checks both hours are in 0..23
func (w NightWindow) Validate() error {
	if w.From < 0 || w.From > 23 || w.To < 0 || w.To > 23 {
		return fmt.Errorf("night window %d-%d: hours must be within 0..23", w.From, w.To)
	}
	return nil
}

// Contains reports whether the hour falls inside the window.
func (w NightWindow) Contains(hour int) bool {
	if w.From <= w.To {
		return hour >= w.From && hour <= w.To
	}
	return hour >= w.From || hour <= w.To
}

// Hours returns the number of hours covered by the window.
func (w NightWindow) Hours() int {
	if w.From <= w.To {
		return w.To - w.From + 1
	}
	return 24 - w.From + w.To + 1
}

func (w NightWindow) String() string {
	return fmt.Sprintf("%02d:00-%02d:59", w.From, w.To)
}

// ParsedNightWindow parses the configured window.
func (c *AggregationConfig) ParsedNightWindow() (NightWindow, error) {
	return ParseNightWindow(c.NightWindow)
}

// Location loads the configured time zone.
func (c *AggregationConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates struct tags and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Aggregation.ParsedNightWindow(); err != nil {
		return err
	}
	if _, err := c.Aggregation.Location(); err != nil {
		return fmt.Errorf("aggregation.timezone: %w", err)
	}
	if c.Download.Manifest == "postgres" && c.Database.Host == "" {
		return fmt.Errorf("download.manifest=postgres requires database.host")
	}
	if c.Stations.SharedCache && c.Redis.URL == "" {
		return fmt.Errorf("stations.shared_cache requires redis.url")
	}
	if c.Schedule.Cron != "" && (c.Schedule.Years == "" || len(c.Schedule.StationIDs) == 0) {
		return fmt.Errorf("schedule.cron requires schedule.years and schedule.station_ids")
	}
	return nil
}

// ValidateDownload validates only what a download needs. Aggregation settings,
// in particular the night window, are not required to fetch data.
func (c *Config) ValidateDownload() error {
	if err := validate.Struct(c.API); err != nil {
		return fmt.Errorf("invalid api configuration: %w", err)
	}
	if err := validate.Struct(c.Download); err != nil {
		return fmt.Errorf("invalid download configuration: %w", err)
	}
	return nil
}
