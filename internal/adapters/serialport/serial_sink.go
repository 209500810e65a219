// Package serialport delivers telemetry packets over a serial/UART link as
// newline-delimited JSON.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
	"github.com/sorenkai/telewire/internal/resilience"
)

// Config identifies the device and line settings.
type Config struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

func (c *Config) ApplyDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = 115200
	}
}

func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("device is required")
	}
	return nil
}

// Sink writes one JSON line per packet. Writes are serialized with a mutex so
// concurrent sends cannot interleave frames on the wire.
type Sink struct {
	cfg    Config
	mu     sync.Mutex
	port   serial.Port
	closed bool
}

// NewSink opens the device, retrying with the given strategy when provided
// (the device may enumerate late on embedded targets).
func NewSink(cfg Config, retry *resilience.RetryStrategy) (*Sink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{BaudRate: cfg.BaudRate}
	var port serial.Port
	open := func() error {
		var err error
		port, err = serial.Open(cfg.Device, mode)
		return err
	}

	var err error
	if retry != nil {
		err = retry.Do(context.Background(), open)
	} else {
		err = open()
	}
	if err != nil {
		return nil, fmt.Errorf("open serial device %s: %w", cfg.Device, err)
	}

	return &Sink{cfg: cfg, port: port}, nil
}

func (s *Sink) Name() string { return "serial" }

// Send frames the packet as one JSON line on the device.
func (s *Sink) Send(ctx context.Context, packet *domain.TelemetryPacket) error {
	if err := ctx.Err(); err != nil {
		return ports.NewTransportError(ports.TransportIo, s.Name(), err)
	}

	payload, err := packet.MarshalWire()
	if err != nil {
		return ports.NewTransportError(ports.TransportSerialization, s.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ports.NewTransportError(ports.TransportClosed, s.Name(), errors.New("sink closed"))
	}
	if _, err := s.port.Write(append(payload, '\n')); err != nil {
		return ports.NewTransportError(ports.TransportIo, s.Name(), err)
	}
	return nil
}

// Close releases the device. Further sends fail with a Closed error.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

var _ ports.Sink = (*Sink)(nil)
