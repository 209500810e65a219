package telewire

import (
	base "github.com/sorenkai/telewire/pkg/telewire"
)

// Re-exported errors for convenience.
var (
	ErrPipelineClosed    = base.ErrPipelineClosed
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/sorenkai/telewire directly.
type (
	Config            = base.Config
	AppConfig         = base.AppConfig
	PipelineConfig    = base.PipelineConfig
	ResilienceConfig  = base.ResilienceConfig
	MQTTConfig        = base.MQTTConfig
	SerialConfig      = base.SerialConfig
	ArchiveConfig     = base.ArchiveConfig
	OPCUAConfig       = base.OPCUAConfig
	OPCUANodeConfig   = base.OPCUANodeConfig
	MetricsConfig     = base.MetricsConfig
	Flow              = base.Flow
	FlowOption        = base.FlowOption
	StreamInOption    = base.StreamInOption
	StreamOutOption   = base.StreamOutOption
	EdgeRuntime       = base.EdgeRuntime
	EdgeRuntimeOption = base.EdgeRuntimeOption
	Packet            = base.Packet
	SensorReading     = base.SensorReading
	SensorData        = base.SensorData
	SystemHealth      = base.SystemHealth
	HealthStatus      = base.HealthStatus
	DiagnosticsReport = base.DiagnosticsReport
	DiagnosticEntry   = base.DiagnosticEntry
	PacketSink        = base.PacketSink
	Collector         = base.Collector
	Sink              = base.Sink
	TransportError    = base.TransportError
	Observability     = base.Observability
	Field             = base.Field
	CircuitState      = base.CircuitState
	PipelineHealth    = base.PipelineHealth
	Publisher         = base.Publisher
	PublisherConfig   = base.PublisherConfig
)

// Re-exported breaker states.
const (
	StateClosed   = base.StateClosed
	StateOpen     = base.StateOpen
	StateHalfOpen = base.StateHalfOpen
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn PacketSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Edge runtime and options.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	return base.NewEdgeRuntime(cfg, opts...)
}

func WithCollector(col Collector) EdgeRuntimeOption {
	return base.WithCollector(col)
}

func WithSink(s Sink) EdgeRuntimeOption {
	return base.WithSink(s)
}

func WithObservability(obs Observability) EdgeRuntimeOption {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn PacketSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan *Packet, func()) {
	return base.NewChannelSink(name, buffer)
}

// Embeddable publisher.
func NewPublisher(cfg *PublisherConfig, sinks ...Sink) (*Publisher, error) {
	return base.NewPublisher(cfg, sinks...)
}

// NewPacket builds an empty packet with the given sequence number.
func NewPacket(sequence uint64) *Packet {
	return base.NewPacket(sequence)
}
