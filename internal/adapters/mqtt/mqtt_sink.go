// Package mqtt delivers telemetry packets to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
	"github.com/sorenkai/telewire/internal/resilience"
)

// Config captures the runtime details required to talk to a broker.
type Config struct {
	BrokerURL      string        `yaml:"broker_url"`
	Topic          string        `yaml:"topic"`
	ClientID       string        `yaml:"client_id"`
	QoS            byte          `yaml:"qos"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "telemetry/system"
	}
	if c.ClientID == "" {
		c.ClientID = "telewire-" + uuid.NewString()[:8]
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker_url is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1, or 2, got %d", c.QoS)
	}
	return nil
}

// Sink publishes one JSON-encoded packet per Send call. Publish applies its
// own timeout; the pipeline relies on that instead of a central deadline.
type Sink struct {
	cfg    Config
	client pahomqtt.Client
	closed atomic.Bool
}

// NewSink connects to the broker, retrying the initial connect with the
// given strategy when one is provided.
func NewSink(cfg Config, retry *resilience.RetryStrategy) (*Sink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	connect := func() error {
		token := client.Connect()
		if !token.WaitTimeout(cfg.ConnectTimeout) {
			return fmt.Errorf("connect to %s timed out", cfg.BrokerURL)
		}
		return token.Error()
	}

	var err error
	if retry != nil {
		err = retry.Do(context.Background(), connect)
	} else {
		err = connect()
	}
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &Sink{cfg: cfg, client: client}, nil
}

func (s *Sink) Name() string { return "mqtt" }

// Send publishes the packet to the configured topic.
func (s *Sink) Send(ctx context.Context, packet *domain.TelemetryPacket) error {
	if s.closed.Load() {
		return ports.NewTransportError(ports.TransportClosed, s.Name(), errors.New("sink closed"))
	}
	if err := ctx.Err(); err != nil {
		return ports.NewTransportError(ports.TransportIo, s.Name(), err)
	}

	payload, err := packet.MarshalWire()
	if err != nil {
		return ports.NewTransportError(ports.TransportSerialization, s.Name(), err)
	}

	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, false, payload)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return ports.NewTransportError(ports.TransportIo, s.Name(),
			fmt.Errorf("publish to %s timed out after %s", s.cfg.Topic, s.cfg.PublishTimeout))
	}
	if err := token.Error(); err != nil {
		return ports.NewTransportError(ports.TransportIo, s.Name(), err)
	}
	return nil
}

// Close disconnects from the broker. Further sends fail with a Closed error.
func (s *Sink) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.client.Disconnect(250)
	}
}

var _ ports.Sink = (*Sink)(nil)
