// Package geosphere talks to the GeoSphere Austria open-data hub: the dataset API
// for station time series and metadata, and the file listing for gridded products.
package geosphere

import (
	"context"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"geoclim/internal/config"
	"geoclim/internal/schema"
	"geoclim/pkg/logging"
	"geoclim/pkg/metrics"
)

const (
	DefaultBaseURL     = "https://dataset.api.hub.geosphere.at"
	DefaultFileBaseURL = "https://public.hub.geosphere.at/datahub/resources"
	DefaultVersion     = "v1"
	DefaultTimeout     = 5 * time.Minute
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 2 * time.Second

	breakerName = "geosphere-api"
)

// Client fetches datasets and station metadata
type Client struct {
	baseURL     string
	fileBaseURL string
	version     string
	httpClient  *http.Client
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[struct{}]
	registry    *schema.Registry
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// Option configures a Client
type Option func(*Client)

// NewClient creates a client against baseURL (the dataset API root)
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		fileBaseURL: DefaultFileBaseURL,
		version:     DefaultVersion,
		httpClient:  &http.Client{},
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		registry:    schema.Default(),
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the api config section
func NewFromConfig(cfg config.APIConfig, registry *schema.Registry, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	opts := []Option{
		WithFileBaseURL(cfg.FileBaseURL),
		WithVersion(cfg.Version),
		WithTimeout(cfg.Timeout),
		WithRetries(cfg.MaxRetries, cfg.RetryDelay),
		WithRegistry(registry),
		WithLogger(logger),
		WithMetrics(metricsCollector),
	}
	if cfg.RequestsPerSec > 0 {
		opts = append(opts, WithRateLimit(cfg.RequestsPerSec, 1))
	}
	if cfg.BreakerEnabled {
		opts = append(opts, WithBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout))
	}
	return NewClient(cfg.BaseURL, opts...)
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every single request attempt
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithFileBaseURL sets the root of the static file listing
func WithFileBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.fileBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithVersion sets the API version path segment
func WithVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.version = v
		}
	}
}

// WithRateLimit paces outgoing requests
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetries sets how often a transient failure is retried; delay grows linearly per attempt.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// WithRegistry sets the dataset registry used to resolve resources
func WithRegistry(r *schema.Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.StructuredLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBreaker opens the circuit after threshold consecutive transient failures and
// lets a trial request through after openTimeout. Client errors (4xx other than 429) do not count.
func WithBreaker(threshold uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		if threshold == 0 {
			threshold = 5
		}
		c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !isTransient(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn(context.Background(), "[CIRCUIT_BREAKER] State transition", logging.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
				if c.metrics != nil {
					c.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
				}
			},
		})
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
