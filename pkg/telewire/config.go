package telewire

import (
	"github.com/sorenkai/telewire/internal/adapters/archive"
	"github.com/sorenkai/telewire/internal/adapters/mqtt"
	"github.com/sorenkai/telewire/internal/adapters/opcua"
	"github.com/sorenkai/telewire/internal/adapters/serialport"
	"github.com/sorenkai/telewire/internal/app/config"
	"github.com/sorenkai/telewire/internal/app/pipeline"
	"github.com/sorenkai/telewire/internal/resilience"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// AppConfig carries process-level settings (name, log level, emit interval).
	AppConfig = config.AppConfig
	// PipelineConfig controls batching, compression, and channel capacity.
	PipelineConfig = pipeline.Config
	// ResilienceConfig controls retry, breaker, and offline buffer thresholds.
	ResilienceConfig = resilience.Config
	// MQTTConfig configures the broker sink.
	MQTTConfig = mqtt.Config
	// SerialConfig configures the serial line sink.
	SerialConfig = serialport.Config
	// ArchiveConfig configures the Postgres archive sink.
	ArchiveConfig = archive.Config
	// OPCUAConfig holds connection + node details for the default collector.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig describes a monitored tag.
	OPCUANodeConfig = opcua.NodeConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the built-in defaults with no sinks enabled.
func DefaultConfig() *Config {
	return config.Default()
}
