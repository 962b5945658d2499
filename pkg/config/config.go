package config

import (
	"time"

	"github.com/ajitpratap0/imagepool/pkg/compression"
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/pool"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"go.uber.org/zap/zapcore"
)

// DefaultMaxMemoryMB is the memory budget pool defaults are derived from
// when none is configured.
const DefaultMaxMemoryMB = 512

// Config is the complete configuration of a process using imagepool.
type Config struct {
	// Name identifies the process in logs, metrics and traces.
	Name string `yaml:"name" json:"name"`
	// MaxMemoryMB is the memory budget pool caps are derived from.
	MaxMemoryMB int `yaml:"max_memory_mb" json:"max_memory_mb"`

	// Pools configures every pool the factory builds.
	Pools pool.FactoryConfig `yaml:"pools" json:"pools"`

	// Compression selects the codec for encoded payloads.
	Compression compression.Config `yaml:"compression" json:"compression"`

	// Monitor configures the memory pressure monitor.
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Logging configures the global zap logger.
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Observability configures metrics and tracing export.
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// MonitorConfig switches the pressure monitor on and sets its thresholds.
type MonitorConfig struct {
	Enabled              bool `yaml:"enabled" json:"enabled"`
	memory.MonitorConfig `yaml:",inline" json:",inline"`
}

// ObservabilityConfig contains metrics and tracing settings.
type ObservabilityConfig struct {
	// EnableMetrics serves Prometheus metrics on MetricsAddress.
	EnableMetrics  bool   `yaml:"enable_metrics" json:"enable_metrics"`
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address"`
	// EnableTracing exports trim spans to stdout.
	EnableTracing     bool    `yaml:"enable_tracing" json:"enable_tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
	// StatsInterval is how often pool snapshots are copied into gauges.
	StatsInterval time.Duration `yaml:"stats_interval" json:"stats_interval"`
}

// New returns a configuration with defaults sized for maxMemoryMB. An
// empty name means "imagepool".
func New(name string, maxMemoryMB int) *Config {
	if name == "" {
		name = "imagepool"
	}
	if maxMemoryMB <= 0 {
		maxMemoryMB = DefaultMaxMemoryMB
	}
	return &Config{
		Name:        name,
		MaxMemoryMB: maxMemoryMB,
		Pools:       pool.DefaultFactoryConfig(maxMemoryMB * pool.MiB),
		Compression: compression.DefaultConfig(),
		Monitor: MonitorConfig{
			Enabled:       true,
			MonitorConfig: memory.DefaultMonitorConfig(),
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			MetricsAddress:    ":9090",
			EnableTracing:     false,
			TracingSampleRate: 0.1,
			StatsInterval:     15 * time.Second,
		},
	}
}

// MaxMemoryBytes returns the memory budget in bytes.
func (c *Config) MaxMemoryBytes() int {
	return c.MaxMemoryMB * pool.MiB
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Name == "" {
		return invalid("name is required", "name", c.Name)
	}
	if c.MaxMemoryMB <= 0 {
		return invalid("max_memory_mb must be positive", "max_memory_mb", c.MaxMemoryMB)
	}
	if err := c.Pools.Validate(); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid pools section")
	}
	if err := c.Compression.Validate(); err != nil {
		return err
	}
	if c.Monitor.Enabled {
		if err := c.Monitor.Validate(); err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid monitor section")
		}
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return invalid("unknown log level", "level", c.Logging.Level)
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return invalid("unknown log encoding", "encoding", c.Logging.Encoding)
	}
	o := c.Observability
	if o.EnableMetrics && o.MetricsAddress == "" {
		return invalid("metrics_address is required when metrics are enabled", "metrics_address", o.MetricsAddress)
	}
	if o.TracingSampleRate < 0 || o.TracingSampleRate > 1 {
		return invalid("tracing_sample_rate must be within [0, 1]", "tracing_sample_rate", o.TracingSampleRate)
	}
	if o.StatsInterval < 0 {
		return invalid("stats_interval cannot be negative", "stats_interval", o.StatsInterval)
	}
	return nil
}

func invalid(message, key string, value interface{}) error {
	return poolerrors.New(poolerrors.ErrorTypeConfig, message).WithDetail(key, value)
}
