package telewire

import (
	"github.com/sorenkai/telewire/internal/domain"
	"github.com/sorenkai/telewire/internal/ports"
	"github.com/sorenkai/telewire/internal/resilience"
)

// Packet is the aggregate telemetry unit that flows through the pipeline.
// It mirrors internal/domain.TelemetryPacket but is exported so custom sinks
// and embedders can reference it.
type Packet = domain.TelemetryPacket

// SensorReading is a single timestamped measurement from one component.
type SensorReading = domain.SensorReading

// SensorData is the tagged union of supported measurement kinds.
type SensorData = domain.SensorData

// SystemHealth is the device-level health snapshot carried by each packet.
type SystemHealth = domain.SystemHealth

// HealthStatus enumerates the coarse system states (HEALTHY, DEGRADED, ...).
type HealthStatus = domain.HealthStatus

// DiagnosticsReport summarizes recent diagnostic entries.
type DiagnosticsReport = domain.DiagnosticsReport

// DiagnosticEntry is one leveled diagnostic message.
type DiagnosticEntry = domain.DiagnosticEntry

// Collector streams readings from any data source (OPC UA, serial, simulators)
// into the pipeline.
type Collector = ports.Collector

// Sink delivers aggregated packets to any downstream system.
type Sink = ports.Sink

// TransportError classifies sink delivery failures.
type TransportError = ports.TransportError

// Observability emits metrics/logs about throughput, latency, and drops.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// CircuitState reports the dispatch circuit breaker position.
type CircuitState = resilience.CircuitState

// Re-exported breaker states for callers inspecting pipeline health.
const (
	StateClosed   = resilience.StateClosed
	StateOpen     = resilience.StateOpen
	StateHalfOpen = resilience.StateHalfOpen
)
