// Package config loads the edge process configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sorenkai/telewire/internal/adapters/archive"
	"github.com/sorenkai/telewire/internal/adapters/mqtt"
	"github.com/sorenkai/telewire/internal/adapters/opcua"
	"github.com/sorenkai/telewire/internal/adapters/serialport"
	"github.com/sorenkai/telewire/internal/app/pipeline"
	"github.com/sorenkai/telewire/internal/resilience"
)

type Config struct {
	App        AppConfig          `yaml:"app"`
	Pipeline   pipeline.Config    `yaml:"pipeline"`
	Resilience resilience.Config  `yaml:"resilience"`
	MQTT       *mqtt.Config       `yaml:"mqtt"`
	Serial     *serialport.Config `yaml:"serial"`
	Archive    *archive.Config    `yaml:"archive"`
	OPCUA      *opcua.Config      `yaml:"opcua"`
	Metrics    MetricsConfig      `yaml:"metrics"`
}

type AppConfig struct {
	Name         string        `yaml:"name"`
	LogLevel     string        `yaml:"log_level"`
	EmitInterval time.Duration `yaml:"emit_interval"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the file at path, layers it over built-in defaults, applies
// TELEWIRE_* environment overrides and validates the result. Defaults are
// set before unmarshalling so an explicit `false` in the file still wins
// over a default of true.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration populated with the built-in defaults and
// no sinks or collectors enabled.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:         "telewire-edge",
			LogLevel:     "info",
			EmitInterval: time.Second,
		},
		Pipeline: pipeline.DefaultConfig(),
		Metrics:  MetricsConfig{Addr: ":9100"},
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "telewire-edge"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.EmitInterval <= 0 {
		c.App.EmitInterval = time.Second
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}

	c.Resilience.ApplyDefaults()
	if c.MQTT != nil {
		c.MQTT.ApplyDefaults()
	}
	if c.Serial != nil {
		c.Serial.ApplyDefaults()
	}
	if c.Archive != nil {
		c.Archive.ApplyDefaults()
	}
	if c.OPCUA != nil {
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) applyEnv() {
	if v, ok := envUint("TELEWIRE_BATCH_SIZE"); ok {
		c.Pipeline.BatchSize = int(v)
	}
	if v, ok := envDuration("TELEWIRE_BATCH_TIMEOUT"); ok {
		c.Pipeline.BatchTimeout = v
	}
	if v, ok := envBool("TELEWIRE_ENABLE_COMPRESSION"); ok {
		c.Pipeline.EnableCompression = v
	}
	if v, ok := envUint("TELEWIRE_CHANNEL_CAPACITY"); ok {
		c.Pipeline.ChannelCapacity = int(v)
	}
	if v, ok := envBool("TELEWIRE_ENABLE_RESILIENCE"); ok {
		c.Pipeline.EnableResilience = v
	}
	if v, ok := envUint("TELEWIRE_MAX_RETRIES"); ok {
		c.Resilience.MaxRetries = int(v)
	}
	if v, ok := envUint("TELEWIRE_FAILURE_THRESHOLD"); ok {
		c.Resilience.FailureThreshold = uint32(v)
	}
	if v, ok := envUint("TELEWIRE_BUFFER_SIZE"); ok {
		c.Resilience.BufferSize = int(v)
	}
	if v := os.Getenv("TELEWIRE_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("TELEWIRE_MQTT_BROKER_URL"); v != "" && c.MQTT != nil {
		c.MQTT.BrokerURL = v
	}
	if v := os.Getenv("TELEWIRE_ARCHIVE_CONN_STRING"); v != "" && c.Archive != nil {
		c.Archive.ConnString = v
	}
}

// Validate checks the assembled configuration. At least one sink section
// must be present: a pipeline with nowhere to deliver is a misconfiguration.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Resilience.Validate(); err != nil {
		return fmt.Errorf("resilience config: %w", err)
	}
	if c.MQTT == nil && c.Serial == nil && c.Archive == nil {
		return fmt.Errorf("at least one sink (mqtt, serial or archive) must be configured")
	}
	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt config: %w", err)
		}
	}
	if c.Serial != nil {
		if err := c.Serial.Validate(); err != nil {
			return fmt.Errorf("serial config: %w", err)
		}
	}
	if c.Archive != nil {
		if err := c.Archive.Validate(); err != nil {
			return fmt.Errorf("archive config: %w", err)
		}
	}
	if c.OPCUA != nil {
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	}
	return nil
}

func envUint(key string) (uint64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
