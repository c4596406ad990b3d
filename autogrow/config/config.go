package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	pkgconfig "github.com/mjasion/balena-home/pkg/config"
	"go.uber.org/zap"
)

// Config holds all configuration parameters for the autogrow dashboard
type Config struct {
	// API configuration
	APIURL            string `yaml:"apiUrl" env:"AUTOGROW_API_URL"`
	APITimeoutSeconds int    `yaml:"apiTimeoutSeconds" env:"AUTOGROW_API_TIMEOUT_SECONDS" env-default:"10"`

	// Dashboard configuration
	ListenPort                 int    `yaml:"listenPort" env:"LISTEN_PORT" env-default:"8080"`
	ReloadIntervalSeconds      int    `yaml:"reloadIntervalSeconds" env:"RELOAD_INTERVAL_SECONDS" env-default:"30"`
	PumpRefreshIntervalSeconds int    `yaml:"pumpRefreshIntervalSeconds" env:"PUMP_REFRESH_INTERVAL_SECONDS" env-default:"5"`
	WateringDeviceID           string `yaml:"wateringDeviceId" env:"WATERING_DEVICE_ID" env-default:"autogrow_esp32"`
	Timezone                   string `yaml:"timezone" env:"TIMEZONE" env-default:"Local"`

	// Circuit breaker in front of the API
	Breaker BreakerConfig `yaml:"breaker"`

	// Prometheus remote_write export of readings
	Export ExportConfig `yaml:"export"`

	// Logging configuration
	Logging pkgconfig.LoggingConfig `yaml:"logging"`

	// OpenTelemetry configuration
	OpenTelemetry pkgconfig.OpenTelemetryConfig `yaml:"opentelemetry"`

	// Profiling configuration
	Profiling pkgconfig.ProfilingConfig `yaml:"profiling"`
}

// BreakerConfig controls fail-fast behaviour while the API is down
type BreakerConfig struct {
	Enabled     bool `yaml:"enabled" env:"BREAKER_ENABLED" env-default:"false"`
	MaxFailures int  `yaml:"maxFailures" env:"BREAKER_MAX_FAILURES" env-default:"5"`
	OpenSeconds int  `yaml:"openSeconds" env:"BREAKER_OPEN_SECONDS" env-default:"30"`
}

// ExportConfig contains the remote_write target for sensor samples
type ExportConfig struct {
	Enabled             bool   `yaml:"enabled" env:"EXPORT_ENABLED" env-default:"false"`
	PrometheusURL       string `yaml:"prometheusUrl" env:"PROMETHEUS_URL"`
	PrometheusUsername  string `yaml:"prometheusUsername" env:"PROMETHEUS_USERNAME"`
	PrometheusPassword  string `yaml:"prometheusPassword" env:"PROMETHEUS_PASSWORD"`
	PushIntervalSeconds int    `yaml:"pushIntervalSeconds" env:"PUSH_INTERVAL_SECONDS" env-default:"15"`
	BufferSize          int    `yaml:"bufferSize" env:"BUFFER_SIZE" env-default:"1000"`
	LookbackMinutes     int    `yaml:"lookbackMinutes" env:"EXPORT_LOOKBACK_MINUTES" env-default:"60"`
}

// Option adjusts a loaded configuration before it is validated, e.g. from command-line flags
type Option func(*Config)

// WithAPIURL replaces the API base URL when url is non-empty
func WithAPIURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.APIURL = url
		}
	}
}

// Load reads configuration from the specified file path and applies environment variable overrides,
// then opts. An empty path reads the environment only.
func Load(configPath string, opts ...Option) (*Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all configuration parameters are valid
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("invalid apiUrl: %w", err)
	}

	if c.APITimeoutSeconds <= 0 {
		return fmt.Errorf("apiTimeoutSeconds must be positive, got %d", c.APITimeoutSeconds)
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listenPort must be between 1 and 65535, got %d", c.ListenPort)
	}

	if c.ReloadIntervalSeconds <= 0 {
		return fmt.Errorf("reloadIntervalSeconds must be positive, got %d", c.ReloadIntervalSeconds)
	}

	if c.PumpRefreshIntervalSeconds <= 0 {
		return fmt.Errorf("pumpRefreshIntervalSeconds must be positive, got %d", c.PumpRefreshIntervalSeconds)
	}

	if strings.TrimSpace(c.WateringDeviceID) == "" {
		return fmt.Errorf("wateringDeviceId cannot be empty")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Breaker.Enabled {
		if c.Breaker.MaxFailures <= 0 {
			return fmt.Errorf("breaker.maxFailures must be positive, got %d", c.Breaker.MaxFailures)
		}
		if c.Breaker.OpenSeconds <= 0 {
			return fmt.Errorf("breaker.openSeconds must be positive, got %d", c.Breaker.OpenSeconds)
		}
	}

	if c.Export.Enabled {
		if _, err := url.ParseRequestURI(c.Export.PrometheusURL); err != nil {
			return fmt.Errorf("invalid export.prometheusUrl: %w", err)
		}
		if c.Export.PushIntervalSeconds <= 0 {
			return fmt.Errorf("export.pushIntervalSeconds must be positive, got %d", c.Export.PushIntervalSeconds)
		}
		if c.Export.BufferSize <= 0 {
			return fmt.Errorf("export.bufferSize must be positive, got %d", c.Export.BufferSize)
		}
		if c.Export.LookbackMinutes < 0 {
			return fmt.Errorf("export.lookbackMinutes cannot be negative, got %d", c.Export.LookbackMinutes)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := c.OpenTelemetry.Validate(); err != nil {
		return fmt.Errorf("opentelemetry validation failed: %w", err)
	}

	if err := c.Profiling.Validate(); err != nil {
		return fmt.Errorf("profiling validation failed: %w", err)
	}

	return nil
}

// Location resolves the display timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// APITimeout returns the per-request API timeout
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// ReloadInterval returns the period of the full reload job
func (c *Config) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalSeconds) * time.Second
}

// PumpRefreshInterval returns the period of the pump status job
func (c *Config) PumpRefreshInterval() time.Duration {
	return time.Duration(c.PumpRefreshIntervalSeconds) * time.Second
}

// Redacted returns a copy of the config with sensitive fields redacted for logging
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"apiUrl":                     redactURL(c.APIURL),
		"apiTimeoutSeconds":          c.APITimeoutSeconds,
		"listenPort":                 c.ListenPort,
		"reloadIntervalSeconds":      c.ReloadIntervalSeconds,
		"pumpRefreshIntervalSeconds": c.PumpRefreshIntervalSeconds,
		"wateringDeviceId":           c.WateringDeviceID,
		"timezone":                   c.Timezone,
		"breaker": map[string]interface{}{
			"enabled":     c.Breaker.Enabled,
			"maxFailures": c.Breaker.MaxFailures,
			"openSeconds": c.Breaker.OpenSeconds,
		},
		"export": map[string]interface{}{
			"enabled":             c.Export.Enabled,
			"prometheusUrl":       redactURL(c.Export.PrometheusURL),
			"prometheusUsername":  c.Export.PrometheusUsername,
			"prometheusPassword":  "***",
			"pushIntervalSeconds": c.Export.PushIntervalSeconds,
			"bufferSize":          c.Export.BufferSize,
			"lookbackMinutes":     c.Export.LookbackMinutes,
		},
		"logging": map[string]interface{}{
			"logFormat": c.Logging.Format,
			"logLevel":  c.Logging.Level,
		},
		"opentelemetry": map[string]interface{}{
			"enabled":        c.OpenTelemetry.Enabled,
			"serviceName":    c.OpenTelemetry.ServiceName,
			"serviceVersion": c.OpenTelemetry.ServiceVersion,
			"environment":    c.OpenTelemetry.Environment,
			"traces": map[string]interface{}{
				"enabled":       c.OpenTelemetry.Traces.Enabled,
				"endpointSet":   c.OpenTelemetry.TracesEndpoint() != "",
				"samplingRatio": c.OpenTelemetry.Traces.SamplingRatio,
			},
			"metrics": map[string]interface{}{
				"enabled":              c.OpenTelemetry.Metrics.Enabled,
				"endpointSet":          c.OpenTelemetry.MetricsEndpoint() != "",
				"intervalMillis":       c.OpenTelemetry.Metrics.IntervalMillis,
				"enableRuntimeMetrics": c.OpenTelemetry.Metrics.EnableRuntimeMetrics,
			},
		},
		"profiling": map[string]interface{}{
			"enabled":         c.Profiling.Enabled,
			"applicationName": c.Profiling.ApplicationName,
			"serverAddress":   c.Profiling.ServerAddress,
			"basicAuthSet":    c.Profiling.BasicAuthPassword != "",
		},
	}
}

// NewLogger creates a zap logger based on the configuration
func (c *Config) NewLogger() (*zap.Logger, error) {
	return c.Logging.NewLogger("autogrow")
}

// PrintConfig logs the configuration with secrets masked
func (c *Config) PrintConfig(logger *zap.Logger) {
	logger.Info("configuration loaded", zap.Any("config", c.Redacted()))
}

// redactURL removes credentials from URLs for logging
func redactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}
