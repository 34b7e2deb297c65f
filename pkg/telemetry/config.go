package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Config is the telemetry section of stowage.yaml.
type Config struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
}

// LoggingConfig selects where and how log lines are written.
type LoggingConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "console" for human output or "json".
	Format string `yaml:"format"`

	// Output is stdout, stderr or a file path opened for appending.
	Output string `yaml:"output"`

	// Caller adds file:line to every line.
	Caller bool `yaml:"caller"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is otlp, stdout or none. With none spans are sampled and
	// propagated but never leave the process.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address, e.g. localhost:4317.
	Endpoint string            `yaml:"endpoint"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers,omitempty"`

	// SampleRatio is the fraction of root spans kept, 0 to 1.
	SampleRatio float64 `yaml:"sample_ratio"`

	// Timeout bounds exporter connection and each export.
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`

	// ListenAddress starts a dedicated metrics listener. The API server
	// serves /metrics regardless.
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`

	// Buckets are the latency histogram buckets in seconds.
	Buckets []float64 `yaml:"buckets,omitempty"`
}

// EventsConfig controls the event publisher.
type EventsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`

	// Async delivers events on a background goroutine. Otherwise Publish
	// runs every subscriber before returning.
	Async bool `yaml:"async"`
}

// DefaultConfig returns console logging on stderr, metrics on, tracing off
// and asynchronous events.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "stowage",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			Insecure:    true,
			SampleRatio: 1,
			Timeout:     10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "stowage",
			Path:      "/metrics",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 1024,
			Async:      true,
		},
	}
}

// TestConfig keeps everything in process, logs errors only and delivers
// events synchronously.
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.Logging.Level = "error"
	cfg.Events.Async = false
	return cfg
}

var (
	logLevels = []string{"trace", "debug", "info", "warn", "error"}
	exporters = []string{"otlp", "stdout", "none"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.ServiceName == "" {
		add("service_name must be set")
	}
	if !oneOf(c.Logging.Level, logLevels) {
		add("logging.level %q is not one of %s", c.Logging.Level, strings.Join(logLevels, ", "))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		add("logging.format %q must be console or json", c.Logging.Format)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		add("tracing.sample_ratio %g is outside 0..1", c.Tracing.SampleRatio)
	}
	if c.Tracing.Enabled {
		if !oneOf(c.Tracing.Exporter, exporters) {
			add("tracing.exporter %q is not one of %s", c.Tracing.Exporter, strings.Join(exporters, ", "))
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
			add("tracing.endpoint is required by the otlp exporter")
		}
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("metrics.path %q must start with /", c.Metrics.Path)
	}
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		add("events.buffer_size must be positive, got %d", c.Events.BufferSize)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid telemetry config: %s", strings.Join(problems, "; "))
	}
	return nil
}
