package config

import (
	"testing"
)

func TestLoggingValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoggingConfig
		wantErr bool
	}{
		{"console info", LoggingConfig{Format: "console", Level: "info"}, false},
		{"mixed case is normalized", LoggingConfig{Format: " JSON ", Level: "Debug"}, false},
		{"logfmt", LoggingConfig{Format: "logfmt", Level: "warn"}, false},
		{"unknown format", LoggingConfig{Format: "xml", Level: "info"}, true},
		{"unknown level", LoggingConfig{Format: "json", Level: "trace"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggingNormalizes(t *testing.T) {
	cfg := LoggingConfig{Format: " JSON ", Level: "Debug"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Format != "json" || cfg.Level != "debug" {
		t.Errorf("got format=%q level=%q", cfg.Format, cfg.Level)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json", "logfmt"} {
		t.Run(format, func(t *testing.T) {
			cfg := LoggingConfig{Format: format, Level: "warn"}
			logger, err := cfg.NewLogger("test")
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if logger.Core().Enabled(-1) {
				t.Error("debug should be disabled at warn level")
			}
			if !logger.Core().Enabled(1) {
				t.Error("warn should be enabled at warn level")
			}
		})
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("authorization=Basic abc, x-scope-orgid=42,broken,=empty")
	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %v", got)
	}
	if got["authorization"] != "Basic abc" {
		t.Errorf("authorization = %q", got["authorization"])
	}
	if got["x-scope-orgid"] != "42" {
		t.Errorf("x-scope-orgid = %q", got["x-scope-orgid"])
	}
	if len(ParseHeaders("")) != 0 {
		t.Error("empty input should yield no headers")
	}
}

func TestOpenTelemetryValidate(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	valid := func() OpenTelemetryConfig {
		return OpenTelemetryConfig{
			Enabled:     true,
			ServiceName: "autogrow-dashboard",
			Endpoint:    "localhost:4318",
			Traces:      OTelTracesConfig{Enabled: true, SamplingRatio: 1},
			Metrics:     OTelMetricsConfig{Enabled: true, IntervalMillis: 30000},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*OpenTelemetryConfig)
		wantErr bool
	}{
		{"valid", func(c *OpenTelemetryConfig) {}, false},
		{"disabled ignores everything", func(c *OpenTelemetryConfig) { *c = OpenTelemetryConfig{} }, false},
		{"missing service name", func(c *OpenTelemetryConfig) { c.ServiceName = " " }, true},
		{"missing endpoint", func(c *OpenTelemetryConfig) { c.Endpoint = "" }, true},
		{"sampling ratio above one", func(c *OpenTelemetryConfig) { c.Traces.SamplingRatio = 1.5 }, true},
		{"metrics interval too short", func(c *OpenTelemetryConfig) { c.Metrics.IntervalMillis = 500 }, true},
		{"traces endpoint overrides shared", func(c *OpenTelemetryConfig) {
			c.Endpoint = ""
			c.Traces.Endpoint = "tempo:4318"
			c.Metrics.Enabled = false
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracesHeadersFallback(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_HEADERS", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "a=1")

	cfg := OpenTelemetryConfig{}
	if got := cfg.TracesHeaders(); got["a"] != "1" {
		t.Errorf("expected env headers, got %v", got)
	}

	cfg.Headers = map[string]string{"b": "2"}
	if got := cfg.TracesHeaders(); got["b"] != "2" || got["a"] != "" {
		t.Errorf("expected shared headers, got %v", got)
	}

	cfg.Traces.Headers = map[string]string{"c": "3"}
	if got := cfg.TracesHeaders(); got["c"] != "3" {
		t.Errorf("expected trace headers, got %v", got)
	}
}

func TestProfilingValidate(t *testing.T) {
	cfg := ProfilingConfig{Enabled: true, ApplicationName: "autogrow", ServerAddress: "http://pyroscope:4040", CPUProfile: true}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.CPUProfile = false
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when no profile type is enabled")
	}

	cfg = ProfilingConfig{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled profiling should validate, got %v", err)
	}
}
