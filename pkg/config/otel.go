package config

import (
	"fmt"
	"os"
	"strings"
)

// OpenTelemetryConfig contains OpenTelemetry exporter settings
type OpenTelemetryConfig struct {
	Enabled            bool              `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	ServiceName        string            `yaml:"serviceName" env:"OTEL_SERVICE_NAME" env-default:"autogrow-dashboard"`
	ServiceVersion     string            `yaml:"serviceVersion" env:"OTEL_SERVICE_VERSION" env-default:"1.0.0"`
	Environment        string            `yaml:"environment" env:"OTEL_ENVIRONMENT" env-default:"production"`
	Endpoint           string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Headers            map[string]string `yaml:"headers"`
	Traces             OTelTracesConfig  `yaml:"traces"`
	Metrics            OTelMetricsConfig `yaml:"metrics"`
	ResourceAttributes map[string]string `yaml:"resourceAttributes"`
}

// OTelTracesConfig contains trace export settings
type OTelTracesConfig struct {
	Enabled       bool              `yaml:"enabled" env:"OTEL_TRACES_ENABLED" env-default:"true"`
	Endpoint      string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	Headers       map[string]string `yaml:"headers"`
	SamplingRatio float64           `yaml:"samplingRatio" env:"OTEL_TRACES_SAMPLING_RATIO" env-default:"1.0"`
	BatchDelayMs  int               `yaml:"batchDelayMillis" env:"OTEL_BSP_SCHEDULE_DELAY" env-default:"5000"`
}

// OTelMetricsConfig contains metric export settings
type OTelMetricsConfig struct {
	Enabled              bool              `yaml:"enabled" env:"OTEL_METRICS_ENABLED" env-default:"true"`
	Endpoint             string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
	Headers              map[string]string `yaml:"headers"`
	IntervalMillis       int               `yaml:"intervalMillis" env:"OTEL_METRICS_INTERVAL" env-default:"30000"`
	EnableRuntimeMetrics bool              `yaml:"enableRuntimeMetrics" env:"OTEL_ENABLE_RUNTIME_METRICS" env-default:"true"`
}

// Validate checks the OpenTelemetry block; a disabled block is always valid
func (c *OpenTelemetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("opentelemetry service name is required when OpenTelemetry is enabled")
	}

	if c.Traces.Enabled {
		if c.TracesEndpoint() == "" {
			return fmt.Errorf("opentelemetry traces endpoint is required when traces are enabled")
		}
		if c.Traces.SamplingRatio < 0 || c.Traces.SamplingRatio > 1 {
			return fmt.Errorf("opentelemetry traces sampling ratio must be between 0 and 1, got: %f", c.Traces.SamplingRatio)
		}
		if c.Traces.BatchDelayMs < 0 {
			return fmt.Errorf("opentelemetry traces batch delay must be >= 0")
		}
	}

	if c.Metrics.Enabled {
		if c.MetricsEndpoint() == "" {
			return fmt.Errorf("opentelemetry metrics endpoint is required when metrics are enabled")
		}
		if c.Metrics.IntervalMillis < 1000 {
			return fmt.Errorf("opentelemetry metrics interval must be at least 1000ms (1 second)")
		}
	}

	return nil
}

// TracesEndpoint resolves the trace endpoint: block value, then the signal-specific env var,
// then the shared endpoint
func (c *OpenTelemetryConfig) TracesEndpoint() string {
	return firstNonEmpty(c.Traces.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"), c.Endpoint)
}

// MetricsEndpoint resolves the metric endpoint in the same order as TracesEndpoint
func (c *OpenTelemetryConfig) MetricsEndpoint() string {
	return firstNonEmpty(c.Metrics.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"), c.Endpoint)
}

// TracesHeaders returns trace export headers, falling back to the shared headers
func (c *OpenTelemetryConfig) TracesHeaders() map[string]string {
	if len(c.Traces.Headers) > 0 {
		return c.Traces.Headers
	}
	if h := ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_HEADERS")); len(h) > 0 {
		return h
	}
	return c.sharedHeaders()
}

// MetricsHeaders returns metric export headers, falling back to the shared headers
func (c *OpenTelemetryConfig) MetricsHeaders() map[string]string {
	if len(c.Metrics.Headers) > 0 {
		return c.Metrics.Headers
	}
	if h := ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_METRICS_HEADERS")); len(h) > 0 {
		return h
	}
	return c.sharedHeaders()
}

func (c *OpenTelemetryConfig) sharedHeaders() map[string]string {
	if len(c.Headers) > 0 {
		return c.Headers
	}
	return ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
}

// ParseHeaders parses "key1=value1,key2=value2"; malformed pairs are skipped
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
