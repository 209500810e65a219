package telewire

import (
	"context"
	"errors"
	"fmt"

	"github.com/sorenkai/telewire/internal/adapters/observability"
	"github.com/sorenkai/telewire/internal/app/pipeline"
	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
)

// ErrPipelineClosed is returned by Publish after the publisher is closed.
var ErrPipelineClosed = pipeline.ErrPipelineClosed

// PipelineHealth reports breaker state, offline buffer occupancy, and packets
// lost to a full buffer.
type PipelineHealth = pipeline.Health

// PublisherConfig configures the pipeline behind a Publisher. Zero values
// fall back to the built-in defaults.
type PublisherConfig struct {
	Pipeline      PipelineConfig
	Resilience    ResilienceConfig
	Observability Observability
}

func (c *PublisherConfig) applyDefaults() {
	if c.Pipeline.BatchSize == 0 && c.Pipeline.ChannelCapacity == 0 {
		c.Pipeline = pipeline.DefaultConfig()
	}
	c.Resilience.ApplyDefaults()
}

// Publisher exposes the batching/dispatch pipeline to external producers so
// any Go service can push packets while reusing the resilience machinery.
type Publisher struct {
	pipe   *pipeline.StreamingPipeline
	sender *pipeline.Sender
}

// NewPublisher wires a pipeline around the given sinks so callers can push
// arbitrary packets. At least one sink is required.
func NewPublisher(cfg *PublisherConfig, sinks ...Sink) (*Publisher, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("at least one sink is required")
	}
	conf := PublisherConfig{}
	if cfg != nil {
		conf = *cfg
	}
	conf.applyDefaults()

	obs := conf.Observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	portSinks := make([]ports.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			portSinks = append(portSinks, s)
		}
	}

	pipe, err := pipeline.New(conf.Pipeline, conf.Resilience, portSinks, obs)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		pipe:   pipe,
		sender: pipe.Sender(),
	}, nil
}

// Publish submits the packet, blocking for backpressure when the ingestion
// channel is full until space frees or ctx is done.
func (p *Publisher) Publish(ctx context.Context, packet *Packet) error {
	if packet == nil {
		return errNilPacket
	}
	return p.sender.Submit(ctx, packet)
}

// Sender hands out an additional producer handle for concurrent publishers.
// Each handle must be closed; the pipeline flushes and exits when the last
// one is.
func (p *Publisher) Sender() *pipeline.Sender {
	return p.sender.Clone()
}

// Health reports the underlying pipeline's resilience state.
func (p *Publisher) Health() PipelineHealth {
	return p.pipe.Health()
}

// Close releases the publisher's own handle and waits for the pipeline's
// final flush, respecting the provided context. Handles obtained via Sender
// must be closed by their owners first.
func (p *Publisher) Close(ctx context.Context) error {
	p.sender.Close()

	select {
	case <-p.pipe.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewPacket builds an empty packet with the given sequence number, ready for
// readings and diagnostics to be attached.
func NewPacket(sequence uint64) *Packet {
	return domain.NewTelemetryPacket(sequence)
}

var errNilPacket = errors.New("telewire: nil packet")
