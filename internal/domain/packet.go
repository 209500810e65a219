// Package domain holds the canonical telemetry data model. Packets are
// immutable once constructed; anything that needs to hold onto one past the
// current dispatch cycle clones it first.
package domain

import (
	"encoding/json"
	"time"
)

// TelemetryPacket is one unit of telemetry: a health snapshot, the recent
// sensor readings, and a diagnostics snapshot. Its JSON encoding is the wire
// format consumed by downstream sinks and must stay field-stable.
type TelemetryPacket struct {
	Sequence       uint64            `json:"sequence"`
	Timestamp      time.Time         `json:"timestamp"`
	Health         SystemHealth      `json:"health"`
	SensorReadings []SensorReading   `json:"sensor_readings"`
	Diagnostics    DiagnosticsReport `json:"diagnostics"`
}

// NewTelemetryPacket returns an empty packet with the given sequence number.
func NewTelemetryPacket(sequence uint64) *TelemetryPacket {
	return &TelemetryPacket{
		Sequence:       sequence,
		Timestamp:      time.Now().UTC(),
		Health:         NewSystemHealth(),
		SensorReadings: nil,
		Diagnostics:    NewDiagnosticsReport(),
	}
}

// Clone deep-copies the packet.
func (p *TelemetryPacket) Clone() *TelemetryPacket {
	out := &TelemetryPacket{
		Sequence:    p.Sequence,
		Timestamp:   p.Timestamp,
		Health:      p.Health,
		Diagnostics: p.Diagnostics.Clone(),
	}
	if p.SensorReadings != nil {
		out.SensorReadings = make([]SensorReading, len(p.SensorReadings))
		copy(out.SensorReadings, p.SensorReadings)
	}
	return out
}

// MarshalWire encodes the packet to its wire JSON.
func (p *TelemetryPacket) MarshalWire() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalWire decodes a packet from wire JSON.
func UnmarshalWire(data []byte) (*TelemetryPacket, error) {
	var p TelemetryPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SizeBytes is the approximate encoded size, zero when encoding fails.
func (p *TelemetryPacket) SizeBytes() int {
	b, err := p.MarshalWire()
	if err != nil {
		return 0
	}
	return len(b)
}

// AggregatePacket collapses a batch into the single packet a sink receives
// per dispatch: sequence, health, and diagnostics come from the first packet,
// sensor readings are concatenated in batch order. Reusing the first packet's
// snapshots rather than merging is intentional and wire-compatible with
// existing consumers.
func AggregatePacket(batch []*TelemetryPacket) *TelemetryPacket {
	if len(batch) == 0 {
		return nil
	}
	first := batch[0]
	total := 0
	for _, p := range batch {
		total += len(p.SensorReadings)
	}
	readings := make([]SensorReading, 0, total)
	for _, p := range batch {
		readings = append(readings, p.SensorReadings...)
	}
	return &TelemetryPacket{
		Sequence:       first.Sequence,
		Timestamp:      time.Now().UTC(),
		Health:         first.Health,
		SensorReadings: readings,
		Diagnostics:    first.Diagnostics.Clone(),
	}
}
