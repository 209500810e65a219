// Package resilience implements the failure-handling layer of the delivery
// pipeline: a circuit breaker gating dispatch attempts, a bounded offline
// buffer holding undelivered packets, and an exponential-backoff retry
// strategy for sink connection establishment.
package resilience

import (
	"errors"
	"time"
)

// ErrCircuitOpen is returned when an operation is rejected because the
// circuit breaker is open.
var ErrCircuitOpen = errors.New("telewire: circuit breaker open")

// ErrBufferFull is returned when the offline buffer rejects a packet. Callers
// must count and log the loss rather than swallow it.
var ErrBufferFull = errors.New("telewire: offline buffer full")

// ErrRetryExhausted is returned when a retried operation keeps failing past
// the configured attempt cap.
var ErrRetryExhausted = errors.New("telewire: retry exhausted")

// Config controls retry, circuit breaker, and offline buffer behavior.
type Config struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	FailureThreshold  uint32        `yaml:"failure_threshold"`
	HalfOpenTimeout   time.Duration `yaml:"half_open_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// ApplyDefaults fills unset fields with the standard thresholds.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.HalfOpenTimeout == 0 {
		c.HalfOpenTimeout = 30 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 1000
	}
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	if c.BackoffMultiplier < 1 {
		return errors.New("backoff_multiplier must be >= 1")
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer_size must be > 0")
	}
	if c.FailureThreshold == 0 {
		return errors.New("failure_threshold must be > 0")
	}
	return nil
}
